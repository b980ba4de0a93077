package port

import (
	"context"

	"github.com/dreschagin/quality-gate/internal/domain/entity"
)

// Имена каналов по умолчанию
const (
	ChannelConsole      = "console"
	ChannelNotification = "notification"
	ChannelStorage      = "storage"
	ChannelNATS         = "nats"
)

// AlertChannel доставляет алерты (Port)
type AlertChannel interface {
	Name() string
	Send(ctx context.Context, alert entity.Alert) error
	IsAvailable() bool
}
