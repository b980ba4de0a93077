package alertchannel

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dreschagin/quality-gate/internal/application/port"
	"github.com/dreschagin/quality-gate/internal/domain/entity"
)

// unavailableFor - пауза после ошибки записи, в течение которой канал недоступен
const unavailableFor = 30 * time.Second

// Storage сохраняет алерты в port.AlertRecordStore (Postgres).
type Storage struct {
	store      port.AlertRecordStore
	retryAfter atomic.Int64
	now        func() time.Time
}

func NewStorage(store port.AlertRecordStore) *Storage {
	return &Storage{store: store, now: time.Now}
}

func (s *Storage) Name() string { return port.ChannelStorage }

// IsAvailable is false for a short period after a failed write.
func (s *Storage) IsAvailable() bool {
	return s.store != nil && s.now().UnixNano() >= s.retryAfter.Load()
}

func (s *Storage) Send(ctx context.Context, alert entity.Alert) error {
	if err := s.store.SaveAlert(ctx, alert); err != nil {
		s.retryAfter.Store(s.now().Add(unavailableFor).UnixNano())
		return err
	}
	return nil
}
