package memory

import (
	"context"

	"github.com/dreschagin/quality-gate/internal/domain/entity"
	"github.com/dreschagin/quality-gate/pkg/history"
)

const defaultAlertCapacity = 1000

// AlertStore - ограниченный архив алертов в памяти, когда Postgres не настроен
type AlertStore struct {
	items *history.Buffer[entity.Alert]
}

func NewAlertStore(capacity int) *AlertStore {
	if capacity <= 0 {
		capacity = defaultAlertCapacity
	}
	return &AlertStore{items: history.New[entity.Alert](capacity)}
}

func (s *AlertStore) SaveAlert(_ context.Context, alert entity.Alert) error {
	s.items.Append(alert)
	return nil
}

// ListRecentAlerts возвращает последние алерты, новые первыми
func (s *AlertStore) ListRecentAlerts(_ context.Context, limit int) ([]entity.Alert, error) {
	items := s.items.Last(limit)
	out := make([]entity.Alert, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		out = append(out, items[i])
	}
	return out, nil
}
