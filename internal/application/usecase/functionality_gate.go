package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/dreschagin/quality-gate/internal/application/port"
	"github.com/dreschagin/quality-gate/internal/domain/entity"
	"github.com/dreschagin/quality-gate/internal/domain/valueobject"
	"github.com/dreschagin/quality-gate/pkg/apperror"
	"github.com/dreschagin/quality-gate/pkg/logger"
)

// FunctionalityPassScore - минимальная оценка прохождения гейта
const FunctionalityPassScore = 95.0

const defaultFunctionalProbeTimeout = 30 * time.Second

// FunctionalityQualityGate последовательно прогоняет функциональные пробы.
// Первая упавшая критичная проба останавливает прогон.
type FunctionalityQualityGate struct {
	probes         []port.FunctionalProbe
	defaultTimeout time.Duration
	logger         *logger.Logger
}

func NewFunctionalityQualityGate(probes []port.FunctionalProbe, defaultTimeout time.Duration, logger *logger.Logger) *FunctionalityQualityGate {
	if defaultTimeout <= 0 {
		defaultTimeout = defaultFunctionalProbeTimeout
	}
	return &FunctionalityQualityGate{
		probes:         append([]port.FunctionalProbe(nil), probes...),
		defaultTimeout: defaultTimeout,
		logger:         logger,
	}
}

// ValidateFunctionality возвращает результат гейта; ошибки проб свернуты в issues.
func (g *FunctionalityQualityGate) ValidateFunctionality(ctx context.Context) entity.QualityGateResult {
	result := entity.QualityGateResult{
		Gate:            entity.GateFunctionality,
		Issues:          []string{},
		Recommendations: []string{},
		Details:         entity.GateDetails{Checks: []entity.CheckOutcome{}},
	}

	if len(g.probes) == 0 {
		result.Issues = append(result.Issues, "No functional probes registered")
		result.EvaluatedAt = time.Now()
		return result
	}

	passed := 0
	stopped := false
	for _, probe := range g.probes {
		def := probe.Definition()

		if stopped {
			result.Details.Checks = append(result.Details.Checks, entity.CheckOutcome{
				Name:     def.Name,
				Critical: def.Critical,
				Skipped:  true,
				Message:  "skipped after critical failure",
			})
			continue
		}

		startedAt := time.Now()
		err := g.runProbe(ctx, probe, def)
		elapsed := time.Since(startedAt)
		result.Details.Executed++

		outcome := entity.CheckOutcome{
			Name:       def.Name,
			Critical:   def.Critical,
			Passed:     err == nil,
			DurationMs: float64(elapsed.Milliseconds()),
		}

		if err == nil {
			passed++
			outcome.Value = 100
			result.Details.Checks = append(result.Details.Checks, outcome)
			continue
		}

		outcome.Message = err.Error()
		result.Details.Checks = append(result.Details.Checks, outcome)
		result.Issues = append(result.Issues, fmt.Sprintf("%s failed: %v", def.Name, err))
		result.Recommendations = append(result.Recommendations, fmt.Sprintf("Fix %s before deploying", def.Name))

		if def.Critical {
			result.Details.CriticalFailures++
			stopped = true
			g.logger.Warn("Critical functionality probe failed, stopping",
				"probe", def.Name, "error", fmt.Errorf("%v: %w", err, apperror.ErrCriticalProbeFailure).Error())
		} else {
			g.logger.Warn("Functionality probe failed", "probe", def.Name, "error", err.Error())
		}
	}

	result.Score = valueobject.Percent(passed, result.Details.Executed)
	result.Passed = result.Details.CriticalFailures == 0 && result.Score >= FunctionalityPassScore
	result.EvaluatedAt = time.Now()

	g.logger.Info("Functionality gate completed",
		"score", result.Score, "passed", result.Passed, "executed", result.Details.Executed)

	return result
}

// runProbe гоняет пробу против таймаута; таймаут и паника считаются провалом.
func (g *FunctionalityQualityGate) runProbe(ctx context.Context, probe port.FunctionalProbe, def port.FunctionalProbeDefinition) error {
	timeout := def.Timeout
	if timeout <= 0 {
		timeout = g.defaultTimeout
	}

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				errCh <- fmt.Errorf("probe panicked: %v", r)
			}
		}()
		errCh <- probe.Run(probeCtx)
	}()

	select {
	case err := <-errCh:
		return err
	case <-probeCtx.Done():
		if ctx.Err() != nil {
			return fmt.Errorf("cancelled: %w", ctx.Err())
		}
		return fmt.Errorf("timed out after %s", timeout)
	}
}

func (g *FunctionalityQualityGate) Probes() []port.FunctionalProbeDefinition {
	defs := make([]port.FunctionalProbeDefinition, 0, len(g.probes))
	for _, p := range g.probes {
		defs = append(defs, p.Definition())
	}
	return defs
}
