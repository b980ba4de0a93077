package system

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/dreschagin/quality-gate/internal/application/port"
	"github.com/dreschagin/quality-gate/internal/domain/entity"
	psnet "github.com/shirou/gopsutil/v3/net"
)

// NetworkProbe проверяет TCP-доступность целевого адреса и собирает счетчики интерфейсов
type NetworkProbe struct {
	address  string
	dialer   *net.Dialer
	counters func(ctx context.Context, pernic bool) ([]psnet.IOCountersStat, error)
}

// NewNetworkProbe создает пробу network-connectivity.
// address - host:port или URL, из которого берется host:port.
func NewNetworkProbe(address string) *NetworkProbe {
	return &NetworkProbe{
		address:  DialAddress(address),
		dialer:   &net.Dialer{},
		counters: psnet.IOCountersWithContext,
	}
}

func (p *NetworkProbe) Definition() port.HealthProbeDefinition {
	return port.HealthProbeDefinition{
		Name:     "network-connectivity",
		Critical: true,
	}
}

func (p *NetworkProbe) Check(ctx context.Context) (entity.HealthCheckResult, error) {
	if p.address == "" {
		return entity.HealthCheckResult{}, fmt.Errorf("network address is not configured")
	}

	startedAt := time.Now()
	conn, err := p.dialer.DialContext(ctx, "tcp", p.address)
	if err != nil {
		return entity.HealthCheckResult{}, fmt.Errorf("dial %s: %w", p.address, err)
	}
	_ = conn.Close()

	metrics := map[string]float64{
		"dial_ms": float64(time.Since(startedAt).Microseconds()) / 1000,
	}

	if stats, err := p.counters(ctx, false); err == nil && len(stats) > 0 {
		metrics["errors_in"] = float64(stats[0].Errin)
		metrics["errors_out"] = float64(stats[0].Errout)
		metrics["drops_in"] = float64(stats[0].Dropin)
	}

	return entity.HealthCheckResult{Healthy: true, Metrics: metrics}, nil
}

// DialAddress приводит URL или host:port к виду host:port
func DialAddress(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	if u.Port() != "" {
		return u.Host
	}
	switch u.Scheme {
	case "https":
		return net.JoinHostPort(u.Hostname(), "443")
	default:
		return net.JoinHostPort(u.Hostname(), "80")
	}
}
