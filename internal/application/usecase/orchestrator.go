package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dreschagin/quality-gate/internal/application/alerting"
	"github.com/dreschagin/quality-gate/internal/application/monitoring"
	"github.com/dreschagin/quality-gate/internal/domain/entity"
	"github.com/dreschagin/quality-gate/internal/domain/service"
	"github.com/dreschagin/quality-gate/internal/domain/valueobject"
	"github.com/dreschagin/quality-gate/pkg/apperror"
	"github.com/dreschagin/quality-gate/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// OrchestratorDeps - компоненты, из которых собирается фасад
type OrchestratorDeps struct {
	Collector     *EvidenceCollector
	EvidenceGate  *service.EvidenceQualityGate
	Functionality *FunctionalityQualityGate
	Monitor       *monitoring.Monitor
	Alerts        *alerting.System
	Deployment    *DeploymentGateSystem
}

// QualityGateOrchestrator - фасад системы: жизненный цикл мониторинга,
// полная проверка качества, допуск к деплою и отчеты.
type QualityGateOrchestrator struct {
	deps   OrchestratorDeps
	logger *logger.Logger

	mu       sync.Mutex
	shutdown bool
}

// NewQualityGateOrchestrator проверяет зависимости и запускает мониторинг здоровья.
func NewQualityGateOrchestrator(deps OrchestratorDeps, logger *logger.Logger) (*QualityGateOrchestrator, error) {
	var missing []string
	if deps.Collector == nil {
		missing = append(missing, "evidence collector")
	}
	if deps.Functionality == nil {
		missing = append(missing, "functionality gate")
	}
	if deps.Monitor == nil {
		missing = append(missing, "health monitor")
	}
	if deps.Alerts == nil {
		missing = append(missing, "alert system")
	}
	if deps.Deployment == nil {
		missing = append(missing, "deployment gate")
	}
	if logger == nil {
		missing = append(missing, "logger")
	}
	if len(missing) > 0 {
		return nil, apperror.New("NewQualityGateOrchestrator", "missing "+strings.Join(missing, ", "), apperror.ErrSystemInitialization)
	}
	if deps.EvidenceGate == nil {
		deps.EvidenceGate = service.NewEvidenceQualityGate(service.DefaultEvidenceThresholds())
	}

	o := &QualityGateOrchestrator{deps: deps, logger: logger}

	deps.Monitor.OnAlert(func(alert entity.Alert) {
		logger.Warn("Health alert", "type", alert.Type, "severity", alert.Severity, "message", alert.Message)
	})
	deps.Monitor.StartMonitoring()

	logger.Info("Quality gate orchestrator initialized")
	return o, nil
}

// FullQualityReport - результат полной проверки вне семантики деплоя
type FullQualityReport struct {
	Passed        bool                      `json:"passed"`
	OverallScore  float64                   `json:"overall_score"`
	Evidence      *entity.QualityGateResult `json:"evidence,omitempty"`
	EvidenceKey   string                    `json:"evidence_key,omitempty"`
	Functionality *entity.QualityGateResult `json:"functionality,omitempty"`
	Health        *entity.HealthStatus      `json:"health,omitempty"`
	Issues        []string                  `json:"issues"`
	GeneratedAt   time.Time                 `json:"generated_at"`
	Duration      time.Duration             `json:"duration"`
}

// PerformFullQualityValidation прогоняет три сигнала параллельно, не записывая попытку деплоя.
func (o *QualityGateOrchestrator) PerformFullQualityValidation(ctx context.Context) (*FullQualityReport, error) {
	if o.isShutdown() {
		return nil, apperror.New("PerformFullQualityValidation", "orchestrator is shut down", apperror.ErrSystemInitialization)
	}

	startedAt := time.Now()
	report := &FullQualityReport{Issues: []string{}, GeneratedAt: startedAt}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		pkg, err := o.deps.Collector.CollectEvidencePackage(gctx)
		if err != nil {
			return fmt.Errorf("collect evidence: %w", err)
		}
		r := o.deps.EvidenceGate.ValidateEvidence(pkg)
		mu.Lock()
		report.Evidence = &r
		report.EvidenceKey = pkg.Key()
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		r := o.deps.Functionality.ValidateFunctionality(gctx)
		mu.Lock()
		report.Functionality = &r
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		status := o.deps.Monitor.GetCurrentHealthStatus()
		if status == nil {
			s, err := o.deps.Monitor.RunHealthCheck(gctx)
			if err != nil {
				return fmt.Errorf("health check: %w", err)
			}
			status = &s
		}
		mu.Lock()
		report.Health = status
		mu.Unlock()
		return nil
	})

	if err := g.Wait(); err != nil {
		o.logger.Error("Full quality validation failed", err)
		return nil, err
	}

	var scores []float64
	report.Passed = true
	for _, gate := range []*entity.QualityGateResult{report.Evidence, report.Functionality} {
		scores = append(scores, gate.Score)
		if !gate.Passed {
			report.Passed = false
		}
		for _, issue := range gate.Issues {
			report.Issues = append(report.Issues, gate.Gate+": "+issue)
		}
	}
	scores = append(scores, report.Health.Score)
	if report.Health.Overall == valueobject.HealthCritical {
		report.Passed = false
	}
	for _, issue := range report.Health.Issues {
		report.Issues = append(report.Issues, entity.GateHealth+": "+issue)
	}

	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	report.OverallScore = valueobject.ClampScore(sum / float64(len(scores)))
	report.Duration = time.Since(startedAt)

	severity := valueobject.SeverityLow
	if !report.Passed {
		severity = valueobject.SeverityMedium
	}
	alert := entity.NewAlert(entity.AlertQualityValidation, severity,
		fmt.Sprintf("Full quality validation finished (score %.1f, passed=%t)", report.OverallScore, report.Passed),
		entity.AlertDetails{Score: report.OverallScore, Issues: report.Issues})
	alert.Source = "orchestrator"
	if err := o.deps.Alerts.TriggerAlert(ctx, alert); err != nil {
		o.logger.Warn("Failed to emit quality validation alert", "error", err.Error())
	}

	return report, nil
}

// ValidateForDeployment делегирует DeploymentGateSystem.
func (o *QualityGateOrchestrator) ValidateForDeployment(ctx context.Context) (*entity.DeploymentValidationResult, error) {
	if o.isShutdown() {
		return nil, apperror.New("ValidateForDeployment", "orchestrator is shut down", apperror.ErrSystemInitialization)
	}
	return o.deps.Deployment.ValidateDeployment(ctx)
}

// SystemStatusReport - краткий статус системы
type SystemStatusReport struct {
	Status               valueobject.SystemStatus `json:"status"`
	HealthScore          float64                  `json:"health_score"`
	LastHealthCheck      *time.Time               `json:"last_health_check,omitempty"`
	Monitoring           bool                     `json:"monitoring"`
	ValidationInProgress bool                     `json:"validation_in_progress"`
	PendingEscalations   int                      `json:"pending_escalations"`
}

// GetSystemStatus выводит operational/degraded/critical из текущего HealthStatus.
// Без статуса система считается degraded.
func (o *QualityGateOrchestrator) GetSystemStatus() SystemStatusReport {
	report := SystemStatusReport{
		Status:               valueobject.StatusDegraded,
		Monitoring:           o.deps.Monitor.IsMonitoring(),
		ValidationInProgress: o.deps.Deployment.IsValidationInProgress(),
		PendingEscalations:   len(o.deps.Alerts.PendingEscalations()),
	}

	if status := o.deps.Monitor.GetCurrentHealthStatus(); status != nil {
		report.Status = valueobject.SystemStatusFor(status.Overall)
		report.HealthScore = status.Score
		ts := status.Timestamp
		report.LastHealthCheck = &ts
	}
	return report
}

// SystemHealthReport объединяет статистику деплоев, здоровье, алерты и качество доказательств.
type SystemHealthReport struct {
	Status          SystemStatusReport        `json:"status"`
	Health          *entity.HealthStatus      `json:"health,omitempty"`
	HealthTrend     []float64                 `json:"health_trend"`
	Deployments     DeploymentStats           `json:"deployments"`
	Alerts          alerting.Stats            `json:"alerts"`
	EvidenceQuality *entity.QualityGateResult `json:"evidence_quality,omitempty"`
	GeneratedAt     time.Time                 `json:"generated_at"`
}

const healthTrendSize = 10

func (o *QualityGateOrchestrator) GetSystemHealthReport(ctx context.Context) SystemHealthReport {
	report := SystemHealthReport{
		Status:      o.GetSystemStatus(),
		Health:      o.deps.Monitor.GetCurrentHealthStatus(),
		HealthTrend: []float64{},
		Deployments: o.deps.Deployment.Stats(),
		Alerts:      o.deps.Alerts.Stats(),
		GeneratedAt: time.Now(),
	}

	history := o.deps.Monitor.History()
	if len(history) > healthTrendSize {
		history = history[len(history)-healthTrendSize:]
	}
	for _, h := range history {
		report.HealthTrend = append(report.HealthTrend, h.Score)
	}

	pkg, err := o.deps.Collector.LatestPackage(ctx)
	switch {
	case err == nil:
		r := o.deps.EvidenceGate.ValidateEvidence(pkg)
		report.EvidenceQuality = &r
	case !errors.Is(err, apperror.ErrNotFound):
		o.logger.Warn("Failed to load latest evidence package", "error", err.Error())
	}

	return report
}

// IsSystemReady: мониторинг запущен, статус есть и он не critical.
func (o *QualityGateOrchestrator) IsSystemReady() bool {
	if o.isShutdown() || !o.deps.Monitor.IsMonitoring() {
		return false
	}
	status := o.deps.Monitor.GetCurrentHealthStatus()
	return status != nil && status.Overall != valueobject.HealthCritical
}

// Shutdown останавливает мониторинг, отменяет эскалации и шлет алерт. Идемпотентен.
func (o *QualityGateOrchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	if o.shutdown {
		o.mu.Unlock()
		return nil
	}
	o.shutdown = true
	o.mu.Unlock()

	o.logger.Info("Shutting down quality gate orchestrator")

	o.deps.Monitor.StopMonitoring()
	cancelled := o.deps.Alerts.CancelAllEscalations()

	alert := entity.NewAlert(entity.AlertSystemShutdown, valueobject.SeverityMedium,
		"Quality gate system shutting down",
		entity.AlertDetails{Attributes: map[string]string{"cancelled_escalations": fmt.Sprint(cancelled)}})
	alert.Source = "orchestrator"
	if err := o.deps.Alerts.TriggerAlert(ctx, alert); err != nil {
		o.logger.Warn("Failed to emit shutdown alert", "error", err.Error())
	}

	return nil
}

func (o *QualityGateOrchestrator) isShutdown() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.shutdown
}

// Components exposes the wired components for transport adapters.
func (o *QualityGateOrchestrator) Components() OrchestratorDeps {
	return o.deps
}
