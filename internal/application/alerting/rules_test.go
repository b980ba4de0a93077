package alerting

import (
	"testing"
	"time"

	"github.com/dreschagin/quality-gate/internal/domain/entity"
	"github.com/dreschagin/quality-gate/internal/domain/valueobject"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rulesYAML = `
rules:
  - id: deploy-blocked
    name: Deployment blocked
    match:
      types: [deployment_blocked]
    channels: [console, nats]
    throttle: 30s
  - id: critical
    match:
      min_severity: critical
    channels: [notification]
    escalation:
      after: 5m
      channels: [nats]
      severity: critical
`

func TestParseRules(t *testing.T) {
	rules, err := ParseRules([]byte(rulesYAML))
	require.NoError(t, err)
	require.Len(t, rules, 2)

	assert.Equal(t, "deploy-blocked", rules[0].ID)
	assert.Equal(t, 30*time.Second, rules[0].Throttle)
	assert.Equal(t, []string{"console", "nats"}, rules[0].Channels)

	require.NotNil(t, rules[1].Escalation)
	assert.Equal(t, 5*time.Minute, rules[1].Escalation.After)
	assert.Equal(t, valueobject.SeverityCritical, rules[1].Match.MinSeverity)
}

func TestValidateRules(t *testing.T) {
	tests := []struct {
		name  string
		rules []entity.AlertRule
	}{
		{"missing id", []entity.AlertRule{{Channels: []string{"console"}}}},
		{"duplicate id", []entity.AlertRule{{ID: "a", Channels: []string{"console"}}, {ID: "a", Channels: []string{"console"}}}},
		{"no channels", []entity.AlertRule{{ID: "a"}}},
		{"bad severity", []entity.AlertRule{{ID: "a", Channels: []string{"console"}, Match: entity.AlertMatch{MinSeverity: "urgent"}}}},
		{"zero escalation delay", []entity.AlertRule{{ID: "a", Channels: []string{"console"}, Escalation: &entity.EscalationRule{Channels: []string{"x"}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, ValidateRules(tt.rules))
		})
	}

	assert.NoError(t, ValidateRules(DefaultRules()))
}

func TestLoadRulesFile_EmptyPathUsesDefaults(t *testing.T) {
	rules, err := LoadRulesFile("")
	require.NoError(t, err)
	assert.Equal(t, len(DefaultRules()), len(rules))
}
