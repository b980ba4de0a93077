// Package system содержит health-пробы хоста на gopsutil.
package system

import (
	"context"
	"fmt"
	"time"

	"github.com/dreschagin/quality-gate/internal/application/port"
	"github.com/dreschagin/quality-gate/internal/domain/entity"
	"github.com/shirou/gopsutil/v3/mem"
)

// MemoryProbe проверяет процент использования памяти
type MemoryProbe struct {
	maxPercent    float64
	virtualMemory func(ctx context.Context) (*mem.VirtualMemoryStat, error)
}

// NewMemoryProbe создает пробу memory-usage
func NewMemoryProbe(maxPercent float64) *MemoryProbe {
	return &MemoryProbe{
		maxPercent:    maxPercent,
		virtualMemory: mem.VirtualMemoryWithContext,
	}
}

func (p *MemoryProbe) Definition() port.HealthProbeDefinition {
	return port.HealthProbeDefinition{
		Name:      "memory-usage",
		Interval:  30 * time.Second,
		Threshold: p.maxPercent,
	}
}

// Check собирает статистику памяти и сравнивает с порогом
func (p *MemoryProbe) Check(ctx context.Context) (entity.HealthCheckResult, error) {
	vmStat, err := p.virtualMemory(ctx)
	if err != nil {
		return entity.HealthCheckResult{}, fmt.Errorf("read virtual memory: %w", err)
	}

	result := entity.HealthCheckResult{
		Healthy: vmStat.UsedPercent <= p.maxPercent,
		Metrics: map[string]float64{
			"used_percent": vmStat.UsedPercent,
			"total_mb":     float64(vmStat.Total / 1024 / 1024),
			"used_mb":      float64(vmStat.Used / 1024 / 1024),
			"free_mb":      float64(vmStat.Free / 1024 / 1024),
		},
	}
	if !result.Healthy {
		result.Error = fmt.Sprintf("memory usage %.1f%% exceeds %.1f%%", vmStat.UsedPercent, p.maxPercent)
	}
	return result, nil
}
