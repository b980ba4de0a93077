package entity

import "time"

const (
	GateEvidence      = "evidence"
	GateFunctionality = "functionality"
	GateHealth        = "health"
)

// CheckOutcome - результат отдельной проверки внутри гейта
type CheckOutcome struct {
	Name       string  `json:"name"`
	Passed     bool    `json:"passed"`
	Critical   bool    `json:"critical,omitempty"`
	Skipped    bool    `json:"skipped,omitempty"`
	Value      float64 `json:"value"`
	Message    string  `json:"message,omitempty"`
	DurationMs float64 `json:"duration_ms,omitempty"`
}

type GateDetails struct {
	Checks           []CheckOutcome `json:"checks"`
	CriticalFailures int            `json:"critical_failures"`
	Executed         int            `json:"executed"`
}

// QualityGateResult - итог одного гейта. Создается один раз и не изменяется.
type QualityGateResult struct {
	Gate            string      `json:"gate"`
	Passed          bool        `json:"passed"`
	Score           float64     `json:"score"`
	Issues          []string    `json:"issues"`
	Recommendations []string    `json:"recommendations"`
	Details         GateDetails `json:"details"`
	EvaluatedAt     time.Time   `json:"evaluated_at"`
}

// FailedCriticalChecks возвращает непройденные критичные проверки
func (r *QualityGateResult) FailedCriticalChecks() []CheckOutcome {
	var out []CheckOutcome
	for _, check := range r.Details.Checks {
		if check.Critical && !check.Passed && !check.Skipped {
			out = append(out, check)
		}
	}
	return out
}
