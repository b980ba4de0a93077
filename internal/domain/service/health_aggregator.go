package service

import (
	"fmt"
	"time"

	"github.com/dreschagin/quality-gate/internal/domain/entity"
	"github.com/dreschagin/quality-gate/internal/domain/valueobject"
)

// HealthWarningScore - ниже этой оценки раунд считается warning
const HealthWarningScore = 80.0

// AggregateHealth сводит результаты проб в HealthStatus.
// critical, если упала любая критичная проба; warning при оценке ниже 80.
// Пустой набор проб дает warning с нулевой оценкой.
func AggregateHealth(results []entity.HealthCheckResult, now time.Time) entity.HealthStatus {
	status := entity.HealthStatus{
		Checks:          results,
		Issues:          []string{},
		Recommendations: []string{},
		Timestamp:       now,
	}

	if len(results) == 0 {
		status.Overall = valueobject.HealthWarning
		status.Issues = append(status.Issues, "No health checks registered")
		status.Recommendations = append(status.Recommendations, "Register at least one health probe")
		return status
	}

	healthy := 0
	criticalDown := false
	for _, r := range results {
		if r.Healthy {
			healthy++
			continue
		}

		issue := fmt.Sprintf("%s check failed", r.Name)
		if r.Error != "" {
			issue += ": " + r.Error
		}
		status.Issues = append(status.Issues, issue)

		if r.Critical {
			criticalDown = true
			status.Recommendations = append(status.Recommendations,
				fmt.Sprintf("Restore %s immediately; it is a critical dependency", r.Name))
		} else {
			status.Recommendations = append(status.Recommendations,
				fmt.Sprintf("Investigate degraded %s", r.Name))
		}
	}

	status.Score = valueobject.Percent(healthy, len(results))
	switch {
	case criticalDown:
		status.Overall = valueobject.HealthCritical
	case status.Score < HealthWarningScore:
		status.Overall = valueobject.HealthWarning
	default:
		status.Overall = valueobject.HealthHealthy
	}

	return status
}
