package system

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryProbe(t *testing.T) {
	probe := NewMemoryProbe(80)
	probe.virtualMemory = func(context.Context) (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{UsedPercent: 91.5, Total: 8 << 30, Used: 7 << 30, Free: 1 << 30}, nil
	}

	res, err := probe.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Healthy)
	assert.Equal(t, 91.5, res.Metrics["used_percent"])
	assert.Equal(t, float64(8192), res.Metrics["total_mb"])
	assert.Contains(t, res.Error, "exceeds")

	probe.virtualMemory = func(context.Context) (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{UsedPercent: 40}, nil
	}
	res, err = probe.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Healthy)
	assert.Empty(t, res.Error)

	def := probe.Definition()
	assert.Equal(t, "memory-usage", def.Name)
	assert.False(t, def.Critical)
}

func TestMemoryProbe_ReadError(t *testing.T) {
	probe := NewMemoryProbe(80)
	probe.virtualMemory = func(context.Context) (*mem.VirtualMemoryStat, error) {
		return nil, errors.New("proc unavailable")
	}

	_, err := probe.Check(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "proc unavailable")
}

func TestPerformanceProbe(t *testing.T) {
	probe := NewPerformanceProbe(75)
	probe.percent = func(context.Context, time.Duration, bool) ([]float64, error) {
		return []float64{82}, nil
	}
	probe.counts = func(bool) (int, error) { return 4, nil }
	probe.loadAvg = func(context.Context) (*load.AvgStat, error) {
		return nil, errors.New("not implemented")
	}

	res, err := probe.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Healthy)
	assert.Equal(t, float64(4), res.Metrics["cores"])
	_, hasLoad := res.Metrics["load1"]
	assert.False(t, hasLoad)
	assert.Equal(t, "performance-metrics", probe.Definition().Name)
}

func TestPerformanceProbe_EmptyReading(t *testing.T) {
	probe := NewPerformanceProbe(75)
	probe.percent = func(context.Context, time.Duration, bool) ([]float64, error) {
		return nil, nil
	}

	_, err := probe.Check(context.Background())
	require.Error(t, err)
}

func TestNetworkProbe_Reachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	probe := NewNetworkProbe(ln.Addr().String())
	probe.counters = func(context.Context, bool) ([]psnet.IOCountersStat, error) {
		return []psnet.IOCountersStat{{Errin: 2, Errout: 1}}, nil
	}

	res, err := probe.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Healthy)
	assert.Equal(t, float64(2), res.Metrics["errors_in"])
	assert.True(t, probe.Definition().Critical)
}

func TestNetworkProbe_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	probe := NewNetworkProbe(addr)
	_, err = probe.Check(context.Background())
	require.Error(t, err)

	_, err = NewNetworkProbe("").Check(context.Background())
	require.Error(t, err)
}

func TestDialAddress(t *testing.T) {
	assert.Equal(t, "example.com:443", DialAddress("https://example.com/app"))
	assert.Equal(t, "localhost:3000", DialAddress("http://localhost:3000"))
	assert.Equal(t, "example.com:80", DialAddress("http://example.com"))
	assert.Equal(t, "10.0.0.1:5432", DialAddress("10.0.0.1:5432"))
	assert.Equal(t, "", DialAddress(""))
}
