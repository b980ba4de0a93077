package alerting

import (
	"fmt"
	"os"
	"time"

	"github.com/dreschagin/quality-gate/internal/application/port"
	"github.com/dreschagin/quality-gate/internal/domain/entity"
	"github.com/dreschagin/quality-gate/internal/domain/valueobject"
	"gopkg.in/yaml.v3"
)

// DefaultChannels возвращает каналы по severity, если ни одно правило не совпало
func DefaultChannels(severity valueobject.Severity) []string {
	switch severity {
	case valueobject.SeverityCritical, valueobject.SeverityHigh:
		return []string{port.ChannelConsole, port.ChannelNotification, port.ChannelStorage}
	case valueobject.SeverityMedium:
		return []string{port.ChannelConsole, port.ChannelStorage}
	default:
		return []string{port.ChannelConsole}
	}
}

// DefaultRules - встроенная маршрутизация без файла правил
func DefaultRules() []entity.AlertRule {
	return []entity.AlertRule{
		{
			ID:       "critical-health-check",
			Name:     "Critical health probe failed",
			Match:    entity.AlertMatch{Types: []string{entity.AlertCriticalHealthCheckFailed}},
			Channels: []string{port.ChannelConsole, port.ChannelNotification, port.ChannelStorage},
			Throttle: 2 * time.Minute,
			Escalation: &entity.EscalationRule{
				After:    10 * time.Minute,
				Channels: []string{port.ChannelNotification, port.ChannelStorage},
				Severity: valueobject.SeverityCritical,
			},
		},
		{
			ID:       "health-degradation",
			Name:     "Health degradation",
			Match:    entity.AlertMatch{Types: []string{entity.AlertHealthWarning, entity.AlertHealthCritical}},
			Channels: []string{port.ChannelConsole, port.ChannelNotification},
			Throttle: 5 * time.Minute,
			Escalation: &entity.EscalationRule{
				After:    15 * time.Minute,
				Channels: []string{port.ChannelNotification, port.ChannelStorage},
			},
		},
		{
			ID:       "deployment-blocked",
			Name:     "Deployment blocked",
			Match:    entity.AlertMatch{Types: []string{entity.AlertDeploymentBlocked, entity.AlertDeploymentValidationFailed}},
			Channels: []string{port.ChannelConsole, port.ChannelNotification, port.ChannelStorage},
		},
		{
			ID:       "deployment-approved",
			Name:     "Deployment approved",
			Match:    entity.AlertMatch{Types: []string{entity.AlertDeploymentApproved}},
			Channels: []string{port.ChannelConsole, port.ChannelStorage},
		},
	}
}

// ValidateRules проверяет ID правил, каналы и задержки эскалации
func ValidateRules(rules []entity.AlertRule) error {
	seen := make(map[string]bool, len(rules))
	for i, rule := range rules {
		if rule.ID == "" {
			return fmt.Errorf("rule #%d: id is required", i)
		}
		if seen[rule.ID] {
			return fmt.Errorf("rule %q: duplicate id", rule.ID)
		}
		seen[rule.ID] = true

		if len(rule.Channels) == 0 {
			return fmt.Errorf("rule %q: at least one channel is required", rule.ID)
		}
		if rule.Throttle < 0 {
			return fmt.Errorf("rule %q: throttle must not be negative", rule.ID)
		}
		for _, sev := range rule.Match.Severities {
			if err := sev.Validate(); err != nil {
				return fmt.Errorf("rule %q: %w", rule.ID, err)
			}
		}
		if rule.Match.MinSeverity != "" {
			if err := rule.Match.MinSeverity.Validate(); err != nil {
				return fmt.Errorf("rule %q: %w", rule.ID, err)
			}
		}
		if esc := rule.Escalation; esc != nil {
			if esc.After <= 0 {
				return fmt.Errorf("rule %q: escalation delay must be positive", rule.ID)
			}
			if len(esc.Channels) == 0 {
				return fmt.Errorf("rule %q: escalation requires channels", rule.ID)
			}
			if esc.Severity != "" {
				if err := esc.Severity.Validate(); err != nil {
					return fmt.Errorf("rule %q: escalation: %w", rule.ID, err)
				}
			}
		}
	}
	return nil
}

type rulesFile struct {
	Rules []entity.AlertRule `yaml:"rules"`
}

// ParseRules разбирает YAML документ с правилами
func ParseRules(data []byte) ([]entity.AlertRule, error) {
	var doc rulesFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse alert rules: %w", err)
	}
	if err := ValidateRules(doc.Rules); err != nil {
		return nil, err
	}
	return doc.Rules, nil
}

// LoadRulesFile читает правила из файла; пустой путь дает DefaultRules
func LoadRulesFile(path string) ([]entity.AlertRule, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read alert rules %s: %w", path, err)
	}
	return ParseRules(data)
}
