package alertchannel

import (
	"context"

	"github.com/dreschagin/quality-gate/internal/application/port"
	"github.com/dreschagin/quality-gate/internal/domain/entity"
)

// Notification рассылает алерты подключенным websocket клиентам.
type Notification struct {
	notifier port.NotificationService
}

func NewNotification(notifier port.NotificationService) *Notification {
	return &Notification{notifier: notifier}
}

func (n *Notification) Name() string { return port.ChannelNotification }

// IsAvailable is true only while somebody is listening.
func (n *Notification) IsAvailable() bool {
	return n.notifier != nil && n.notifier.ClientCount() > 0
}

func (n *Notification) Send(_ context.Context, alert entity.Alert) error {
	n.notifier.BroadcastAlert(alert)
	return nil
}
