package port

import (
	"context"
	"time"
)

// GateMetric - одна точка метрики гейта для внешней системы наблюдаемости
type GateMetric struct {
	Name       string
	Value      float64
	Unit       string
	Dimensions map[string]string
	Timestamp  time.Time
}

// MetricsPublisher defines the interface for publishing gate metrics to external observability platforms.
type MetricsPublisher interface {
	// PublishBatch publishes multiple metrics in a single operation.
	// Implementations should handle batching constraints (e.g., CloudWatch's 1000 metrics/request limit).
	PublishBatch(ctx context.Context, metrics []GateMetric) error

	// Flush forces immediate publication of any buffered metrics.
	Flush(ctx context.Context) error
}
