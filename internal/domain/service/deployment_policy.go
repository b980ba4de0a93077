package service

import (
	"fmt"
	"strings"

	"github.com/dreschagin/quality-gate/internal/domain/entity"
	"github.com/dreschagin/quality-gate/internal/domain/valueobject"
)

// PolicyConfig - настройки решения о деплое
type PolicyConfig struct {
	EvidenceThreshold       float64
	FunctionalityThreshold  float64
	HealthThreshold         float64
	RequireAllGatesPassing  bool
	BlockOnCriticalFailures bool
}

func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		EvidenceThreshold:       85,
		FunctionalityThreshold:  95,
		HealthThreshold:         80,
		RequireAllGatesPassing:  true,
		BlockOnCriticalFailures: true,
	}
}

// GateInputs - результаты гейтов, доступные на момент решения.
// nil означает, что результат получить не удалось или гейт отключен.
type GateInputs struct {
	Evidence      *entity.QualityGateResult
	Functionality *entity.QualityGateResult
	Health        *entity.HealthStatus
	// Failures - ошибки гейтов, не давших результат; считаются критичными.
	Failures []string
}

// Decision - итог политики
type Decision struct {
	Approved        bool
	OverallScore    float64
	CriticalIssues  []string
	Warnings        []string
	Recommendations []string
	BlockedReason   string
}

// DeploymentPolicy принимает решение о допуске (Domain Service)
type DeploymentPolicy struct {
	cfg PolicyConfig
}

func NewDeploymentPolicy(cfg PolicyConfig) *DeploymentPolicy {
	return &DeploymentPolicy{cfg: cfg}
}

func (p *DeploymentPolicy) Config() PolicyConfig {
	return p.cfg
}

// Decide агрегирует гейты. Здоровье ниже порога дает только предупреждение,
// критичным оно становится лишь при overall == critical.
func (p *DeploymentPolicy) Decide(in GateInputs) Decision {
	d := Decision{
		CriticalIssues:  []string{},
		Warnings:        []string{},
		Recommendations: []string{},
	}

	var scores []float64
	var failedGates []string

	d.CriticalIssues = append(d.CriticalIssues, in.Failures...)

	if ev := in.Evidence; ev != nil {
		scores = append(scores, ev.Score)
		if ev.Score < p.cfg.EvidenceThreshold {
			d.CriticalIssues = append(d.CriticalIssues,
				fmt.Sprintf("Evidence quality score %.1f is below threshold %.1f", ev.Score, p.cfg.EvidenceThreshold))
		}
		for _, issue := range ev.Issues {
			d.Warnings = append(d.Warnings, "evidence: "+issue)
		}
		if !ev.Passed {
			failedGates = append(failedGates, entity.GateEvidence)
		}
		d.Recommendations = appendUnique(d.Recommendations, ev.Recommendations...)
	}

	if fn := in.Functionality; fn != nil {
		scores = append(scores, fn.Score)
		if fn.Score < p.cfg.FunctionalityThreshold {
			d.CriticalIssues = append(d.CriticalIssues,
				fmt.Sprintf("Functionality score %.1f is below threshold %.1f", fn.Score, p.cfg.FunctionalityThreshold))
		}
		for _, check := range fn.FailedCriticalChecks() {
			msg := "Critical functionality check failed: " + check.Name
			if check.Message != "" {
				msg += " (" + check.Message + ")"
			}
			d.CriticalIssues = append(d.CriticalIssues, msg)
		}
		if !fn.Passed {
			failedGates = append(failedGates, entity.GateFunctionality)
		}
		d.Recommendations = appendUnique(d.Recommendations, fn.Recommendations...)
	}

	if h := in.Health; h != nil {
		scores = append(scores, h.Score)
		switch {
		case h.Overall == valueobject.HealthCritical:
			d.CriticalIssues = append(d.CriticalIssues,
				fmt.Sprintf("System health is critical (score %.1f)", h.Score))
			failedGates = append(failedGates, entity.GateHealth)
		case h.Score < p.cfg.HealthThreshold:
			d.Warnings = append(d.Warnings,
				fmt.Sprintf("System health score %.1f is below threshold %.1f", h.Score, p.cfg.HealthThreshold))
		case h.Overall == valueobject.HealthWarning:
			d.Warnings = append(d.Warnings, fmt.Sprintf("System health is degraded (score %.1f)", h.Score))
		}
		d.Recommendations = appendUnique(d.Recommendations, h.Recommendations...)
	} else {
		d.Warnings = append(d.Warnings, "Health status unavailable")
	}

	if len(scores) > 0 {
		sum := 0.0
		for _, s := range scores {
			sum += s
		}
		d.OverallScore = valueobject.ClampScore(sum / float64(len(scores)))
	}

	blockedByCritical := p.cfg.BlockOnCriticalFailures && len(d.CriticalIssues) > 0
	blockedByGates := p.cfg.RequireAllGatesPassing && len(failedGates) > 0
	d.Approved = !blockedByCritical && !blockedByGates

	switch {
	case blockedByCritical:
		d.BlockedReason = d.CriticalIssues[0]
		d.Recommendations = appendUnique(d.Recommendations, "Resolve all critical issues before deploying")
	case blockedByGates:
		d.BlockedReason = "Quality gates failed: " + strings.Join(failedGates, ", ")
	}

	return d
}

func appendUnique(dst []string, items ...string) []string {
	for _, item := range items {
		dup := false
		for _, existing := range dst {
			if existing == item {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, item)
		}
	}
	return dst
}
