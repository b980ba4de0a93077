package alertchannel

import (
	"context"

	"github.com/dreschagin/quality-gate/internal/application/port"
	"github.com/dreschagin/quality-gate/internal/domain/entity"
)

// connectivity сообщает о состоянии соединения брокера
type connectivity interface {
	IsConnected() bool
}

// Event публикует алерты в брокер сообщений (NATS) на subject "alert".
type Event struct {
	publisher port.EventPublisher
}

func NewEvent(publisher port.EventPublisher) *Event {
	return &Event{publisher: publisher}
}

func (e *Event) Name() string { return port.ChannelNATS }

func (e *Event) IsAvailable() bool {
	if e.publisher == nil {
		return false
	}
	if c, ok := e.publisher.(connectivity); ok {
		return c.IsConnected()
	}
	return true
}

func (e *Event) Send(ctx context.Context, alert entity.Alert) error {
	return e.publisher.PublishEvent(ctx, port.SubjectAlert, alert)
}
