// Package alertchannel adapts infrastructure sinks to port.AlertChannel.
package alertchannel

import (
	"context"

	"github.com/dreschagin/quality-gate/internal/application/port"
	"github.com/dreschagin/quality-gate/internal/domain/entity"
	"github.com/dreschagin/quality-gate/internal/domain/valueobject"
	"github.com/dreschagin/quality-gate/pkg/logger"
)

// Console пишет алерты в лог. Всегда доступен и служит последним резервом.
type Console struct {
	log *logger.Logger
}

func NewConsole(log *logger.Logger) *Console {
	return &Console{log: log}
}

func (c *Console) Name() string      { return port.ChannelConsole }
func (c *Console) IsAvailable() bool { return true }

func (c *Console) Send(_ context.Context, alert entity.Alert) error {
	args := []interface{}{
		"alert_id", alert.ID,
		"type", alert.Type,
		"severity", alert.Severity,
	}
	if alert.Source != "" {
		args = append(args, "source", alert.Source)
	}
	if alert.Details.Score != 0 {
		args = append(args, "score", alert.Details.Score)
	}

	msg := "ALERT: " + alert.Message
	if alert.Severity.AtLeast(valueobject.SeverityHigh) {
		c.log.Error(msg, nil, args...)
	} else {
		c.log.Warn(msg, args...)
	}
	return nil
}
