package valueobject

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeverity_Escalate(t *testing.T) {
	cases := map[Severity]Severity{
		SeverityLow:      SeverityMedium,
		SeverityMedium:   SeverityHigh,
		SeverityHigh:     SeverityCritical,
		SeverityCritical: SeverityCritical,
	}
	for in, want := range cases {
		assert.Equal(t, want, in.Escalate(), "escalate %s", in)
	}
}

func TestSeverity_Validate(t *testing.T) {
	for _, s := range AllSeverities() {
		assert.NoError(t, s.Validate())
	}
	assert.Error(t, Severity("urgent").Validate())
	assert.True(t, SeverityHigh.AtLeast(SeverityMedium))
	assert.False(t, SeverityLow.AtLeast(SeverityMedium))
}

func TestClampScore(t *testing.T) {
	assert.Equal(t, 0.0, ClampScore(-3))
	assert.Equal(t, 100.0, ClampScore(140))
	assert.Equal(t, 42.5, ClampScore(42.5))
	assert.Equal(t, 0.0, ClampScore(math.NaN()))
	assert.Equal(t, 50.0, Percent(1, 2))
	assert.Equal(t, 0.0, Percent(3, 0))
}

func TestSystemStatusFor(t *testing.T) {
	assert.Equal(t, StatusOperational, SystemStatusFor(HealthHealthy))
	assert.Equal(t, StatusDegraded, SystemStatusFor(HealthWarning))
	assert.Equal(t, StatusCritical, SystemStatusFor(HealthCritical))
	assert.Equal(t, StatusDegraded, SystemStatusFor(""))
}
