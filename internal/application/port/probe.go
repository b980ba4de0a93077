package port

import (
	"context"
	"time"

	"github.com/dreschagin/quality-gate/internal/domain/entity"
)

// HealthProbeDefinition описывает health-пробу
type HealthProbeDefinition struct {
	Name string
	// Interval - как часто проба должна выполняться; ноль означает каждый тик.
	Interval  time.Duration
	Threshold float64
	Timeout   time.Duration
	Critical  bool
}

// HealthProbe - именованная проверка здоровья (Port)
type HealthProbe interface {
	Definition() HealthProbeDefinition
	Check(ctx context.Context) (entity.HealthCheckResult, error)
}

// FunctionalProbeDefinition описывает функциональную пробу
type FunctionalProbeDefinition struct {
	Name     string
	Timeout  time.Duration
	Critical bool
}

// FunctionalProbe - функциональная проверка приложения (Port).
// Возвращенная ошибка или превышение таймаута означает провал.
type FunctionalProbe interface {
	Definition() FunctionalProbeDefinition
	Run(ctx context.Context) error
}
