package entity

import "time"

// DeploymentValidationResult - одно решение о допуске к деплою
type DeploymentValidationResult struct {
	Approved        bool               `json:"approved"`
	OverallScore    float64            `json:"overall_score"`
	Evidence        *QualityGateResult `json:"evidence,omitempty"`
	Functionality   *QualityGateResult `json:"functionality,omitempty"`
	Health          *HealthStatus      `json:"health,omitempty"`
	CriticalIssues  []string           `json:"critical_issues"`
	Warnings        []string           `json:"warnings"`
	Recommendations []string           `json:"recommendations"`
	BlockedReason   string             `json:"blocked_reason,omitempty"`
	EvidenceKey     string             `json:"evidence_key,omitempty"`
	TimedOut        bool               `json:"timed_out,omitempty"`
	ValidatedAt     time.Time          `json:"validated_at"`
	Duration        time.Duration      `json:"duration"`
}

// DeploymentAttempt - аудиторская запись попытки деплоя
type DeploymentAttempt struct {
	ID            string                      `json:"id"`
	Timestamp     time.Time                   `json:"timestamp"`
	Approved      bool                        `json:"approved"`
	Result        *DeploymentValidationResult `json:"result"`
	Duration      time.Duration               `json:"duration"`
	BlockedReason string                      `json:"blocked_reason,omitempty"`
}
