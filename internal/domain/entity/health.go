package entity

import (
	"time"

	"github.com/dreschagin/quality-gate/internal/domain/valueobject"
)

// HealthCheckResult - результат одной health-проверки за тик
type HealthCheckResult struct {
	Name      string             `json:"name"`
	Healthy   bool               `json:"healthy"`
	Critical  bool               `json:"critical"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
	Error     string             `json:"error,omitempty"`
	Duration  time.Duration      `json:"duration"`
	Timestamp time.Time          `json:"timestamp"`
}

// HealthStatus - агрегированное здоровье на момент тика
type HealthStatus struct {
	Overall         valueobject.HealthLevel `json:"overall"`
	Score           float64                 `json:"score"`
	Checks          []HealthCheckResult     `json:"checks"`
	Issues          []string                `json:"issues"`
	Recommendations []string                `json:"recommendations"`
	Timestamp       time.Time               `json:"timestamp"`
}

// FailedCritical возвращает упавшие критичные проверки
func (s *HealthStatus) FailedCritical() []HealthCheckResult {
	var out []HealthCheckResult
	for _, check := range s.Checks {
		if check.Critical && !check.Healthy {
			out = append(out, check)
		}
	}
	return out
}
