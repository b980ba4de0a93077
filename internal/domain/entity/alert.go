package entity

import (
	"strings"
	"time"

	"github.com/dreschagin/quality-gate/internal/domain/valueobject"
	"github.com/google/uuid"
)

// Известные типы алертов
const (
	AlertHealthWarning              = "health_warning"
	AlertHealthCritical             = "health_critical"
	AlertCriticalHealthCheckFailed  = "critical_health_check_failed"
	AlertDeploymentApproved         = "deployment_approved"
	AlertDeploymentBlocked          = "deployment_blocked"
	AlertDeploymentValidationFailed = "deployment_validation_failed"
	AlertSystemShutdown             = "system_shutdown"
	AlertQualityValidation          = "quality_validation"

	EscalatedPrefix = "escalated_"
)

// AlertDetails - структурированная нагрузка алерта.
// Заполняются только поля, относящиеся к типу алерта.
type AlertDetails struct {
	Score             float64              `json:"score,omitempty"`
	Gate              string               `json:"gate,omitempty"`
	Check             string               `json:"check,omitempty"`
	Error             string               `json:"error,omitempty"`
	Approved          bool                 `json:"approved,omitempty"`
	AttemptID         string               `json:"attempt_id,omitempty"`
	CriticalIssues    []string             `json:"critical_issues,omitempty"`
	Warnings          []string             `json:"warnings,omitempty"`
	Issues            []string             `json:"issues,omitempty"`
	OriginalType      string               `json:"original_type,omitempty"`
	OriginalSeverity  valueobject.Severity `json:"original_severity,omitempty"`
	OriginalTimestamp time.Time            `json:"original_timestamp,omitempty"`
	Attributes        map[string]string    `json:"attributes,omitempty"`
}

// Alert - значимое событие любой компоненты
type Alert struct {
	ID        string               `json:"id"`
	Type      string               `json:"type"`
	Severity  valueobject.Severity `json:"severity"`
	Message   string               `json:"message"`
	Details   AlertDetails         `json:"details"`
	Source    string               `json:"source,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
}

// NewAlert создает алерт с новым ID и текущим временем
func NewAlert(alertType string, severity valueobject.Severity, message string, details AlertDetails) Alert {
	return Alert{
		ID:        uuid.New().String(),
		Type:      alertType,
		Severity:  severity,
		Message:   message,
		Details:   details,
		Timestamp: time.Now(),
	}
}

// IsEscalated сообщает, что алерт порожден эскалацией
func (a Alert) IsEscalated() bool {
	return strings.HasPrefix(a.Type, EscalatedPrefix)
}

// AlertMatch - декларативный предикат правила. Пустые поля не ограничивают выборку.
type AlertMatch struct {
	Types        []string               `json:"types,omitempty" yaml:"types"`
	TypePrefixes []string               `json:"type_prefixes,omitempty" yaml:"type_prefixes"`
	Severities   []valueobject.Severity `json:"severities,omitempty" yaml:"severities"`
	MinSeverity  valueobject.Severity   `json:"min_severity,omitempty" yaml:"min_severity"`
}

// EscalationRule - отложенное повторное уведомление
type EscalationRule struct {
	After    time.Duration        `json:"after" yaml:"after"`
	Channels []string             `json:"channels" yaml:"channels"`
	Severity valueobject.Severity `json:"severity,omitempty" yaml:"severity"`
}

// EscalatedSeverity возвращает уровень эскалированного алерта.
// Без явного уровня исходный повышается на одну ступень.
func (e EscalationRule) EscalatedSeverity(original valueobject.Severity) valueobject.Severity {
	if e.Severity != "" {
		return e.Severity
	}
	return original.Escalate()
}

// AlertRule - политика маршрутизации алертов
type AlertRule struct {
	ID         string          `json:"id" yaml:"id"`
	Name       string          `json:"name" yaml:"name"`
	Match      AlertMatch      `json:"match" yaml:"match"`
	Channels   []string        `json:"channels" yaml:"channels"`
	Throttle   time.Duration   `json:"throttle" yaml:"throttle"`
	Escalation *EscalationRule `json:"escalation,omitempty" yaml:"escalation"`

	// Predicate дополняет Match программной проверкой; не сериализуется.
	Predicate func(Alert) bool `json:"-" yaml:"-"`
}

// Matches проверяет, подходит ли алерт под правило.
// Правило без критериев и предиката подходит под любой алерт.
func (r AlertRule) Matches(alert Alert) bool {
	m := r.Match
	if len(m.Types) > 0 || len(m.TypePrefixes) > 0 {
		if !containsString(m.Types, alert.Type) && !hasAnyPrefix(alert.Type, m.TypePrefixes) {
			return false
		}
	}
	if len(m.Severities) > 0 && !containsSeverity(m.Severities, alert.Severity) {
		return false
	}
	if m.MinSeverity != "" && !alert.Severity.AtLeast(m.MinSeverity) {
		return false
	}
	if r.Predicate != nil && !r.Predicate(alert) {
		return false
	}
	return true
}

// AlertRecord - запись истории обработки алерта
type AlertRecord struct {
	Alert         Alert             `json:"alert"`
	RuleIDs       []string          `json:"rule_ids,omitempty"`
	Channels      []string          `json:"channels"`
	Success       bool              `json:"success"`
	Throttled     bool              `json:"throttled"`
	ResponseTime  time.Duration     `json:"response_time"`
	Error         string            `json:"error,omitempty"`
	ChannelErrors map[string]string `json:"channel_errors,omitempty"`
	RecordedAt    time.Time         `json:"recorded_at"`
}

func containsString(items []string, v string) bool {
	for _, item := range items {
		if item == v {
			return true
		}
	}
	return false
}

func hasAnyPrefix(v string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(v, p) {
			return true
		}
	}
	return false
}

func containsSeverity(items []valueobject.Severity, v valueobject.Severity) bool {
	for _, item := range items {
		if item == v {
			return true
		}
	}
	return false
}
