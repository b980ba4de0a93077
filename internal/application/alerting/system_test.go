package alerting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dreschagin/quality-gate/internal/domain/entity"
	"github.com/dreschagin/quality-gate/internal/domain/valueobject"
	"github.com/dreschagin/quality-gate/pkg/apperror"
	"github.com/dreschagin/quality-gate/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSystem(t *testing.T, rules []entity.AlertRule, clock *fakeClock, channels ...*fakeChannel) *System {
	t.Helper()
	s, err := NewSystem(Config{Rules: rules, Clock: clock}, logger.New("error"))
	require.NoError(t, err)
	for _, ch := range channels {
		s.RegisterChannel(ch)
	}
	t.Cleanup(func() { s.CancelAllEscalations() })
	return s
}

func TestTriggerAlert_ThrottlesSameRuleAndType(t *testing.T) {
	clock := newFakeClock()
	pager := newFakeChannel("pager")
	rules := []entity.AlertRule{{
		ID:       "api",
		Match:    entity.AlertMatch{Types: []string{"api_down"}},
		Channels: []string{"pager"},
		Throttle: time.Minute,
	}}
	s := newTestSystem(t, rules, clock, pager)

	require.NoError(t, s.TriggerAlert(context.Background(), entity.NewAlert("api_down", valueobject.SeverityHigh, "down", entity.AlertDetails{})))
	clock.Advance(30 * time.Second)
	require.NoError(t, s.TriggerAlert(context.Background(), entity.NewAlert("api_down", valueobject.SeverityHigh, "down", entity.AlertDetails{})))

	assert.Len(t, pager.Sent(), 1)

	records := s.History()
	require.Len(t, records, 2)
	assert.False(t, records[0].Throttled)
	assert.True(t, records[1].Throttled)
	assert.True(t, records[1].Success, "throttled alerts are no-op successes")
	assert.Equal(t, 1, s.Stats().Throttled)
	assert.Equal(t, 0, s.Stats().Failed)

	clock.Advance(31 * time.Second)
	require.NoError(t, s.TriggerAlert(context.Background(), entity.NewAlert("api_down", valueobject.SeverityHigh, "down", entity.AlertDetails{})))
	assert.Len(t, pager.Sent(), 2)
}

func TestTriggerAlert_ThrottleIsPerAlertType(t *testing.T) {
	clock := newFakeClock()
	pager := newFakeChannel("pager")
	rules := []entity.AlertRule{{
		ID:       "health",
		Match:    entity.AlertMatch{TypePrefixes: []string{"health_"}},
		Channels: []string{"pager"},
		Throttle: time.Minute,
	}}
	s := newTestSystem(t, rules, clock, pager)

	ctx := context.Background()
	require.NoError(t, s.TriggerAlert(ctx, entity.NewAlert(entity.AlertHealthWarning, valueobject.SeverityMedium, "w", entity.AlertDetails{})))
	require.NoError(t, s.TriggerAlert(ctx, entity.NewAlert(entity.AlertHealthCritical, valueobject.SeverityCritical, "c", entity.AlertDetails{})))

	assert.Len(t, pager.Sent(), 2)
}

func TestTriggerAlert_DefaultSeverityRouting(t *testing.T) {
	tests := []struct {
		severity valueobject.Severity
		want     map[string]int
	}{
		{valueobject.SeverityCritical, map[string]int{"console": 1, "notification": 1, "storage": 1}},
		{valueobject.SeverityHigh, map[string]int{"console": 1, "notification": 1, "storage": 1}},
		{valueobject.SeverityMedium, map[string]int{"console": 1, "notification": 0, "storage": 1}},
		{valueobject.SeverityLow, map[string]int{"console": 1, "notification": 0, "storage": 0}},
	}

	for _, tt := range tests {
		t.Run(tt.severity.String(), func(t *testing.T) {
			console, notification, storage := newFakeChannel("console"), newFakeChannel("notification"), newFakeChannel("storage")
			s := newTestSystem(t, []entity.AlertRule{}, newFakeClock(), console, notification, storage)

			require.NoError(t, s.TriggerAlert(context.Background(), entity.NewAlert("custom", tt.severity, "x", entity.AlertDetails{})))

			assert.Len(t, console.Sent(), tt.want["console"])
			assert.Len(t, notification.Sent(), tt.want["notification"])
			assert.Len(t, storage.Sent(), tt.want["storage"])
		})
	}
}

func TestTriggerAlert_ToleratesChannelFailure(t *testing.T) {
	console := newFakeChannel("console")
	broken := newFakeChannel("webhook")
	broken.err = errors.New("connection refused")
	pager := newFakeChannel("pager")
	rules := []entity.AlertRule{{ID: "all", Channels: []string{"webhook", "pager"}}}
	s := newTestSystem(t, rules, newFakeClock(), console, broken, pager)

	err := s.TriggerAlert(context.Background(), entity.NewAlert("build", valueobject.SeverityMedium, "x", entity.AlertDetails{}))
	require.NoError(t, err)

	assert.Len(t, pager.Sent(), 1)
	assert.Len(t, console.Sent(), 1, "console is the last-resort fallback")

	record := s.History()[0]
	assert.False(t, record.Success)
	assert.Contains(t, record.ChannelErrors, "webhook")
	assert.Contains(t, record.Channels, "console")
}

func TestTriggerAlert_AllChannelsUnavailable(t *testing.T) {
	pager := newFakeChannel("pager")
	pager.unavailable = true
	rules := []entity.AlertRule{{ID: "all", Channels: []string{"pager", "missing"}}}
	s := newTestSystem(t, rules, newFakeClock(), pager)

	err := s.TriggerAlert(context.Background(), entity.NewAlert("build", valueobject.SeverityMedium, "x", entity.AlertDetails{}))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrChannelUnavailable)
	assert.Empty(t, pager.Sent())

	record := s.History()[0]
	assert.False(t, record.Success)
	assert.Len(t, record.ChannelErrors, 2)
}

func TestTriggerAlert_RequiresType(t *testing.T) {
	s := newTestSystem(t, nil, newFakeClock())
	assert.Error(t, s.TriggerAlert(context.Background(), entity.Alert{Severity: valueobject.SeverityLow}))
}

func escalationRules(after time.Duration) []entity.AlertRule {
	return []entity.AlertRule{{
		ID:       "esc",
		Match:    entity.AlertMatch{Types: []string{"db_down"}},
		Channels: []string{"primary"},
		Escalation: &entity.EscalationRule{
			After:    after,
			Channels: []string{"oncall"},
		},
	}}
}

func TestEscalation_FiresOnceWithinWindow(t *testing.T) {
	primary, oncall := newFakeChannel("primary"), newFakeChannel("oncall")
	s := newTestSystem(t, escalationRules(100*time.Millisecond), newFakeClock(), primary, oncall)

	startedAt := time.Now()
	require.NoError(t, s.TriggerAlert(context.Background(), entity.NewAlert("db_down", valueobject.SeverityHigh, "db down", entity.AlertDetails{})))
	assert.Len(t, s.PendingEscalations(), 1)

	require.Eventually(t, func() bool { return len(oncall.Sent()) == 1 }, time.Second, 5*time.Millisecond)
	sent := oncall.Sent()[0]
	elapsed := sent.at.Sub(startedAt)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.LessOrEqual(t, elapsed, 150*time.Millisecond)

	assert.Equal(t, "escalated_db_down", sent.alert.Type)
	assert.Equal(t, valueobject.SeverityCritical, sent.alert.Severity)
	assert.Equal(t, "db_down", sent.alert.Details.OriginalType)

	time.Sleep(150 * time.Millisecond)
	assert.Len(t, oncall.Sent(), 1)
	assert.Empty(t, s.PendingEscalations())
	assert.Equal(t, 1, s.Stats().Escalated)
}

func TestEscalation_RearmReplacesTimer(t *testing.T) {
	primary, oncall := newFakeChannel("primary"), newFakeChannel("oncall")
	s := newTestSystem(t, escalationRules(80*time.Millisecond), newFakeClock(), primary, oncall)

	alert := entity.NewAlert("db_down", valueobject.SeverityHigh, "db down", entity.AlertDetails{})
	require.NoError(t, s.TriggerAlert(context.Background(), alert))
	time.Sleep(40 * time.Millisecond)
	require.NoError(t, s.TriggerAlert(context.Background(), alert))
	assert.Len(t, s.PendingEscalations(), 1)

	time.Sleep(200 * time.Millisecond)
	assert.Len(t, oncall.Sent(), 1)
}

func TestEscalation_AcknowledgeCancels(t *testing.T) {
	primary, oncall := newFakeChannel("primary"), newFakeChannel("oncall")
	s := newTestSystem(t, escalationRules(50*time.Millisecond), newFakeClock(), primary, oncall)

	alert := entity.NewAlert("db_down", valueobject.SeverityHigh, "db down", entity.AlertDetails{})
	require.NoError(t, s.TriggerAlert(context.Background(), alert))
	assert.Equal(t, 1, s.Acknowledge(alert.ID))

	time.Sleep(120 * time.Millisecond)
	assert.Empty(t, oncall.Sent())
}

func TestEscalation_SkippedForLowSeverity(t *testing.T) {
	primary, oncall := newFakeChannel("primary"), newFakeChannel("oncall")
	s := newTestSystem(t, escalationRules(20*time.Millisecond), newFakeClock(), primary, oncall)

	require.NoError(t, s.TriggerAlert(context.Background(), entity.NewAlert("db_down", valueobject.SeverityLow, "db slow", entity.AlertDetails{})))

	assert.Empty(t, s.PendingEscalations())
	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, oncall.Sent())
}

func TestCancelAllEscalations(t *testing.T) {
	primary, oncall := newFakeChannel("primary"), newFakeChannel("oncall")
	s := newTestSystem(t, escalationRules(50*time.Millisecond), newFakeClock(), primary, oncall)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.TriggerAlert(context.Background(), entity.NewAlert("db_down", valueobject.SeverityHigh, "db down", entity.AlertDetails{})))
	}
	assert.Equal(t, 3, s.CancelAllEscalations())

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, oncall.Sent())
}

func TestHistory_IsBounded(t *testing.T) {
	console := newFakeChannel("console")
	s, err := NewSystem(Config{Rules: []entity.AlertRule{}, HistorySize: 3}, logger.New("error"))
	require.NoError(t, err)
	s.RegisterChannel(console)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.TriggerAlert(context.Background(), entity.NewAlert("t", valueobject.SeverityLow, string(rune('a'+i)), entity.AlertDetails{})))
	}

	records := s.History()
	require.Len(t, records, 3)
	assert.Equal(t, "c", records[0].Alert.Message)
	assert.Equal(t, "e", records[2].Alert.Message)
}
