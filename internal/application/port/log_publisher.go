package port

import (
	"context"

	"github.com/dreschagin/quality-gate/pkg/logger"
)

// LogPublisher ships log entries to an external observability platform.
type LogPublisher interface {
	logger.Publisher

	// Flush forces immediate publication of any buffered log entries.
	// Should be called during graceful shutdown to prevent data loss.
	Flush(ctx context.Context) error
}
