// Package retention периодически удаляет устаревшие записи архивов.
package retention

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dreschagin/quality-gate/pkg/logger"
)

// Pruner удаляет записи старше before и возвращает их число
type Pruner interface {
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// Snapshot - состояние раннера для диагностики
type Snapshot struct {
	StartedAt    time.Time     `json:"started_at"`
	Interval     time.Duration `json:"interval"`
	MaxAge       time.Duration `json:"max_age"`
	LastRunAt    time.Time     `json:"last_run_at,omitempty"`
	LastError    string        `json:"last_error,omitempty"`
	LastRemoved  int64         `json:"last_removed"`
	TotalRemoved int64         `json:"total_removed"`
}

type Runner struct {
	name     string
	pruner   Pruner
	log      *logger.Logger
	interval time.Duration
	maxAge   time.Duration
	now      func() time.Time

	runMu sync.Mutex

	mu       sync.RWMutex
	snapshot Snapshot
}

func NewRunner(name string, pruner Pruner, log *logger.Logger, interval, maxAge time.Duration) *Runner {
	return &Runner{
		name:     name,
		pruner:   pruner,
		log:      log,
		interval: interval,
		maxAge:   maxAge,
		now:      time.Now,
		snapshot: Snapshot{StartedAt: time.Now(), Interval: interval, MaxAge: maxAge},
	}
}

// Start крутит RunOnce по тикеру до отмены ctx
func (r *Runner) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// ошибка уже сохранена и залогирована
			_, _ = r.RunOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Runner) RunOnce(ctx context.Context) (int64, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	queryCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	runAt := r.now()
	removed, err := r.pruner.DeleteOlderThan(queryCtx, runAt.Add(-r.maxAge))

	r.mu.Lock()
	r.snapshot.LastRunAt = runAt
	if err != nil {
		r.snapshot.LastError = err.Error()
	} else {
		r.snapshot.LastError = ""
		r.snapshot.LastRemoved = removed
		r.snapshot.TotalRemoved += removed
	}
	r.mu.Unlock()

	if err != nil {
		wrappedErr := fmt.Errorf("%s retention cycle failed: %w", r.name, err)
		r.log.Error("Retention cycle failed", wrappedErr, "archive", r.name)
		return 0, wrappedErr
	}

	if removed > 0 {
		r.log.Info("Retention cycle completed", "archive", r.name, "removed", removed, "max_age", r.maxAge.String())
	} else {
		r.log.Debug("Retention cycle completed, nothing to remove", "archive", r.name)
	}
	return removed, nil
}

func (r *Runner) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot
}
