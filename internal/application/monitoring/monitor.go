// Package monitoring runs the registered health probes on a fixed interval and
// keeps the aggregated HealthStatus history.
package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dreschagin/quality-gate/internal/application/port"
	"github.com/dreschagin/quality-gate/internal/domain/entity"
	"github.com/dreschagin/quality-gate/internal/domain/service"
	"github.com/dreschagin/quality-gate/internal/domain/valueobject"
	"github.com/dreschagin/quality-gate/internal/metrics"
	"github.com/dreschagin/quality-gate/pkg/history"
	"github.com/dreschagin/quality-gate/pkg/logger"
)

const (
	defaultInterval     = 10 * time.Second
	defaultProbeTimeout = 10 * time.Second
	defaultHistorySize  = 100
	alertTimeout        = 15 * time.Second
)

// AlertTrigger принимает алерты монитора (AlertSystem).
type AlertTrigger interface {
	TriggerAlert(ctx context.Context, alert entity.Alert) error
}

type Config struct {
	Interval     time.Duration
	ProbeTimeout time.Duration
	HistorySize  int
	Clock        port.Clock
	Metrics      *metrics.Metrics
	Notifier     port.NotificationService
	Alerts       AlertTrigger
}

// Monitor - HealthMonitoringSystem. Состояния: stopped -> monitoring -> stopped.
type Monitor struct {
	probes   []port.HealthProbe
	cfg      Config
	log      *logger.Logger
	notifier port.NotificationService
	alerts   AlertTrigger

	roundMu sync.Mutex

	mu         sync.RWMutex
	running    bool
	generation uint64
	cancel     context.CancelFunc
	done       chan struct{}
	current    *entity.HealthStatus
	lastResult map[string]entity.HealthCheckResult
	lastRun    map[string]time.Time
	callbacks  []func(entity.Alert)

	firstStatus     chan struct{}
	firstStatusOnce sync.Once

	history *history.Buffer[entity.HealthStatus]
}

func NewMonitor(probes []port.HealthProbe, cfg Config, log *logger.Logger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}
	if cfg.Clock == nil {
		cfg.Clock = port.SystemClock{}
	}

	return &Monitor{
		probes:      append([]port.HealthProbe(nil), probes...),
		cfg:         cfg,
		log:         log,
		notifier:    cfg.Notifier,
		alerts:      cfg.Alerts,
		lastResult:  make(map[string]entity.HealthCheckResult),
		lastRun:     make(map[string]time.Time),
		firstStatus: make(chan struct{}),
		history:     history.New[entity.HealthStatus](cfg.HistorySize),
	}
}

// StartMonitoring запускает цикл проверок. Повторный вызов - no-op.
func (m *Monitor) StartMonitoring() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		m.log.Info("Health monitoring already running")
		return
	}

	m.running = true
	m.generation++
	gen := m.generation
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	done := make(chan struct{})
	m.done = done
	m.mu.Unlock()

	m.log.Info("Health monitoring started", "interval", m.cfg.Interval.String(), "probes", len(m.probes))

	go m.loop(ctx, gen, done)
}

// StopMonitoring останавливает тикер; результаты незавершенного раунда отбрасываются.
func (m *Monitor) StopMonitoring() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.generation++
	cancel := m.cancel
	done := m.done
	m.cancel = nil
	m.done = nil
	m.mu.Unlock()

	cancel()
	<-done

	m.log.Info("Health monitoring stopped")
}

func (m *Monitor) IsMonitoring() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

func (m *Monitor) loop(ctx context.Context, gen uint64, done chan struct{}) {
	defer close(done)

	m.runRound(ctx, gen)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.runRound(ctx, gen)
		case <-ctx.Done():
			return
		}
	}
}

// RunHealthCheck выполняет один раунд по требованию.
func (m *Monitor) RunHealthCheck(ctx context.Context) (entity.HealthStatus, error) {
	m.mu.RLock()
	gen := m.generation
	m.mu.RUnlock()

	status, committed := m.runRound(ctx, gen)
	if !committed {
		return status, fmt.Errorf("health round discarded: %w", context.Canceled)
	}
	return status, nil
}

// GetCurrentHealthStatus возвращает последний статус или nil, если раундов еще не было.
func (m *Monitor) GetCurrentHealthStatus() *entity.HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil
	}
	status := *m.current
	status.Checks = append([]entity.HealthCheckResult(nil), m.current.Checks...)
	return &status
}

// AwaitStatus ждет первый статус не дольше wait.
func (m *Monitor) AwaitStatus(ctx context.Context, wait time.Duration) *entity.HealthStatus {
	if status := m.GetCurrentHealthStatus(); status != nil {
		return status
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-m.firstStatus:
	case <-timer.C:
	case <-ctx.Done():
	}
	return m.GetCurrentHealthStatus()
}

// OnAlert регистрирует callback на алерты монитора.
func (m *Monitor) OnAlert(callback func(entity.Alert)) {
	if callback == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

// History возвращает статусы от старых к новым.
func (m *Monitor) History() []entity.HealthStatus {
	return m.history.Items()
}

func (m *Monitor) Probes() []port.HealthProbeDefinition {
	defs := make([]port.HealthProbeDefinition, 0, len(m.probes))
	for _, p := range m.probes {
		defs = append(defs, p.Definition())
	}
	return defs
}

func (m *Monitor) runRound(ctx context.Context, gen uint64) (entity.HealthStatus, bool) {
	m.roundMu.Lock()
	defer m.roundMu.Unlock()

	now := m.cfg.Clock.Now()
	results := make([]entity.HealthCheckResult, len(m.probes))
	fresh := make([]bool, len(m.probes))

	var wg sync.WaitGroup
	for i, probe := range m.probes {
		def := probe.Definition()

		if cached, ok := m.reusable(def, now); ok {
			results[i] = cached
			continue
		}

		fresh[i] = true
		wg.Add(1)
		go func(i int, probe port.HealthProbe, def port.HealthProbeDefinition) {
			defer wg.Done()
			results[i] = m.runProbe(ctx, probe, def)
		}(i, probe, def)
	}
	wg.Wait()

	status := service.AggregateHealth(results, now)

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		m.log.Debug("Discarding health round from stopped monitor")
		return status, false
	}
	m.current = &status
	for i, r := range results {
		if fresh[i] {
			m.lastResult[r.Name] = r
			m.lastRun[r.Name] = now
		}
	}
	callbacks := make([]func(entity.Alert), len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.mu.Unlock()

	m.history.Append(status)
	m.firstStatusOnce.Do(func() { close(m.firstStatus) })

	m.cfg.Metrics.SetHealthScore(status.Score)
	for _, r := range results {
		if !r.Healthy {
			m.cfg.Metrics.IncProbeFailure(r.Name)
		}
	}
	if m.notifier != nil {
		m.notifier.BroadcastHealth(status)
	}

	m.log.Debug("Health round completed", "overall", status.Overall, "score", status.Score)

	m.raiseAlerts(status, callbacks)

	return status, true
}

func (m *Monitor) reusable(def port.HealthProbeDefinition, now time.Time) (entity.HealthCheckResult, bool) {
	if def.Interval <= m.cfg.Interval {
		return entity.HealthCheckResult{}, false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	last, ok := m.lastRun[def.Name]
	if !ok || now.Sub(last) >= def.Interval {
		return entity.HealthCheckResult{}, false
	}
	return m.lastResult[def.Name], true
}

// runProbe гоняет пробу против ее таймаута; паника и ошибка дают unhealthy.
func (m *Monitor) runProbe(ctx context.Context, probe port.HealthProbe, def port.HealthProbeDefinition) entity.HealthCheckResult {
	timeout := def.Timeout
	if timeout <= 0 {
		timeout = m.cfg.ProbeTimeout
	}

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	startedAt := time.Now()
	type outcome struct {
		result entity.HealthCheckResult
		err    error
	}
	ch := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: fmt.Errorf("probe panicked: %v", r)}
			}
		}()
		res, err := probe.Check(probeCtx)
		ch <- outcome{result: res, err: err}
	}()

	var res entity.HealthCheckResult
	select {
	case out := <-ch:
		res = out.result
		if out.err != nil {
			res.Healthy = false
			res.Error = out.err.Error()
		}
	case <-probeCtx.Done():
		res.Healthy = false
		res.Error = fmt.Sprintf("health check timed out after %s", timeout)
	}

	res.Name = def.Name
	res.Critical = def.Critical
	res.Duration = time.Since(startedAt)
	res.Timestamp = m.cfg.Clock.Now()
	return res
}

func (m *Monitor) raiseAlerts(status entity.HealthStatus, callbacks []func(entity.Alert)) {
	var alerts []entity.Alert

	for _, failed := range status.FailedCritical() {
		alert := entity.NewAlert(entity.AlertCriticalHealthCheckFailed, valueobject.SeverityCritical,
			fmt.Sprintf("Critical health check %s failed", failed.Name),
			entity.AlertDetails{Check: failed.Name, Error: failed.Error, Score: status.Score})
		alert.Source = "health-monitor"
		alerts = append(alerts, alert)
	}

	switch status.Overall {
	case valueobject.HealthCritical:
		alert := entity.NewAlert(entity.AlertHealthCritical, valueobject.SeverityCritical,
			fmt.Sprintf("System health is critical (score %.1f)", status.Score),
			entity.AlertDetails{Score: status.Score, Issues: status.Issues})
		alert.Source = "health-monitor"
		alerts = append(alerts, alert)
	case valueobject.HealthWarning:
		alert := entity.NewAlert(entity.AlertHealthWarning, valueobject.SeverityMedium,
			fmt.Sprintf("System health degraded (score %.1f)", status.Score),
			entity.AlertDetails{Score: status.Score, Issues: status.Issues})
		alert.Source = "health-monitor"
		alerts = append(alerts, alert)
	}

	for _, alert := range alerts {
		for _, cb := range callbacks {
			m.invokeCallback(cb, alert)
		}
		if m.alerts != nil {
			ctx, cancel := context.WithTimeout(context.Background(), alertTimeout)
			if err := m.alerts.TriggerAlert(ctx, alert); err != nil {
				m.log.Error("Failed to trigger health alert", err, "type", alert.Type)
			}
			cancel()
		}
	}
}

func (m *Monitor) invokeCallback(cb func(entity.Alert), alert entity.Alert) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Warn("Health alert callback panicked", "panic", r)
		}
	}()
	cb(alert)
}
