package system

import (
	"context"
	"fmt"
	"time"

	"github.com/dreschagin/quality-gate/internal/application/port"
	"github.com/dreschagin/quality-gate/internal/domain/entity"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
)

// PerformanceProbe проверяет загрузку CPU хоста (performance-metrics)
type PerformanceProbe struct {
	maxPercent float64
	window     time.Duration
	percent    func(ctx context.Context, interval time.Duration, perCPU bool) ([]float64, error)
	counts     func(logical bool) (int, error)
	loadAvg    func(ctx context.Context) (*load.AvgStat, error)
}

// NewPerformanceProbe создает пробу с окном замера в одну секунду
func NewPerformanceProbe(maxPercent float64) *PerformanceProbe {
	return &PerformanceProbe{
		maxPercent: maxPercent,
		window:     time.Second,
		percent:    cpu.PercentWithContext,
		counts:     cpu.Counts,
		loadAvg:    load.AvgWithContext,
	}
}

func (p *PerformanceProbe) Definition() port.HealthProbeDefinition {
	return port.HealthProbeDefinition{
		Name:      "performance-metrics",
		Threshold: p.maxPercent,
	}
}

func (p *PerformanceProbe) Check(ctx context.Context) (entity.HealthCheckResult, error) {
	percentages, err := p.percent(ctx, p.window, false)
	if err != nil {
		return entity.HealthCheckResult{}, fmt.Errorf("read cpu usage: %w", err)
	}
	if len(percentages) == 0 {
		return entity.HealthCheckResult{}, fmt.Errorf("cpu usage unavailable")
	}

	usage := percentages[0]
	metrics := map[string]float64{"cpu_percent": usage}

	if cores, err := p.counts(true); err == nil {
		metrics["cores"] = float64(cores)
	}
	// load average есть не на всех платформах
	if avg, err := p.loadAvg(ctx); err == nil && avg != nil {
		metrics["load1"] = avg.Load1
		metrics["load5"] = avg.Load5
	}

	result := entity.HealthCheckResult{
		Healthy: usage <= p.maxPercent,
		Metrics: metrics,
	}
	if !result.Healthy {
		result.Error = fmt.Sprintf("cpu usage %.1f%% exceeds %.1f%%", usage, p.maxPercent)
	}
	return result, nil
}
