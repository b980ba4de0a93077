package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dreschagin/quality-gate/internal/application/port"
	"github.com/dreschagin/quality-gate/internal/domain/entity"
)

type fakeProvider struct {
	block    chan struct{}
	started  chan struct{}
	once     sync.Once
	failPerf bool
	panicJS  bool
}

func (p *fakeProvider) wait(ctx context.Context) error {
	if p.started != nil {
		p.once.Do(func() { close(p.started) })
	}
	if p.block == nil {
		return nil
	}
	select {
	case <-p.block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *fakeProvider) CaptureScreenshots(ctx context.Context) ([]entity.Screenshot, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	return []entity.Screenshot{{Name: "home", Width: 1920, Height: 1080, Quality: 0.9}}, nil
}

func (p *fakeProvider) MeasurePerformance(ctx context.Context) (*entity.PerformanceMetrics, error) {
	if p.failPerf {
		return nil, errors.New("lighthouse unavailable")
	}
	return &entity.PerformanceMetrics{LoadTimeMs: 900, LCPMs: 1200, FIDMs: 20, CLS: 0.01, CompositeScore: 95}, nil
}

func (p *fakeProvider) RunFunctionalTests(ctx context.Context) ([]entity.TestResult, error) {
	return []entity.TestResult{{Name: "smoke", Passed: true}}, nil
}

func (p *fakeProvider) ReplayUserJourney(ctx context.Context) ([]entity.UserJourneyEvidence, error) {
	if p.panicJS {
		panic("journey recorder crashed")
	}
	return []entity.UserJourneyEvidence{{Step: "open", Success: true}}, nil
}

func (p *fakeProvider) CheckBrowserCompatibility(ctx context.Context) ([]entity.BrowserCompatibilityReport, error) {
	reports := make([]entity.BrowserCompatibilityReport, 0, 4)
	for _, b := range []string{"chrome", "firefox", "safari", "edge"} {
		reports = append(reports, entity.BrowserCompatibilityReport{Browser: b, Tested: true, TotalTests: 5, PassedTests: 5})
	}
	return reports, nil
}

type memoryStorage struct {
	mu    sync.Mutex
	items map[string]*entity.EvidencePackage
	err   error
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{items: make(map[string]*entity.EvidencePackage)}
}

func (s *memoryStorage) Store(_ context.Context, key string, pkg *entity.EvidencePackage) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *pkg
	s.items[key] = &cp
	return nil
}

func (s *memoryStorage) Retrieve(_ context.Context, key string) (*entity.EvidencePackage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items[key], nil
}

type fakeCache struct {
	mu   sync.Mutex
	keys []string
}

func (c *fakeCache) Get(context.Context, string, interface{}) error { return errors.New("cache miss") }

func (c *fakeCache) Set(_ context.Context, key string, _ interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = append(c.keys, key)
	return nil
}

func (c *fakeCache) Delete(context.Context, string) error        { return nil }
func (c *fakeCache) DeletePattern(context.Context, string) error { return nil }
func (c *fakeCache) Close() error                                { return nil }

type funcProbe struct {
	def port.FunctionalProbeDefinition
	run func(ctx context.Context) error
	ran bool
}

func (p *funcProbe) Definition() port.FunctionalProbeDefinition { return p.def }

func (p *funcProbe) Run(ctx context.Context) error {
	p.ran = true
	return p.run(ctx)
}

func passProbe(name string, critical bool) *funcProbe {
	return &funcProbe{
		def: port.FunctionalProbeDefinition{Name: name, Critical: critical, Timeout: time.Second},
		run: func(context.Context) error { return nil },
	}
}

func failProbe(name string, critical bool) *funcProbe {
	return &funcProbe{
		def: port.FunctionalProbeDefinition{Name: name, Critical: critical, Timeout: time.Second},
		run: func(context.Context) error { return errors.New("unexpected status 500") },
	}
}

type stubFunctionality struct {
	result  entity.QualityGateResult
	block   chan struct{}
	entered chan struct{}
}

func (s *stubFunctionality) ValidateFunctionality(ctx context.Context) entity.QualityGateResult {
	if s.entered != nil {
		close(s.entered)
	}
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
		}
	}
	return s.result
}

type stubEvidenceGate struct {
	result entity.QualityGateResult
}

func (s stubEvidenceGate) ValidateEvidence(*entity.EvidencePackage) entity.QualityGateResult {
	return s.result
}

type stubHealth struct {
	mu         sync.Mutex
	status     *entity.HealthStatus
	afterStart *entity.HealthStatus
	monitoring bool
	starts     int
}

func (h *stubHealth) GetCurrentHealthStatus() *entity.HealthStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

func (h *stubHealth) IsMonitoring() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.monitoring
}

func (h *stubHealth) StartMonitoring() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.monitoring = true
	h.starts++
	h.status = h.afterStart
}

func (h *stubHealth) AwaitStatus(context.Context, time.Duration) *entity.HealthStatus {
	return h.GetCurrentHealthStatus()
}

type recordingAlerts struct {
	mu     sync.Mutex
	alerts []entity.Alert
}

func (r *recordingAlerts) TriggerAlert(_ context.Context, alert entity.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, alert)
	return nil
}

func (r *recordingAlerts) last() entity.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.alerts[len(r.alerts)-1]
}

type memoryAttempts struct {
	mu    sync.Mutex
	saved []entity.DeploymentAttempt
}

func (m *memoryAttempts) Save(_ context.Context, attempt entity.DeploymentAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, attempt)
	return nil
}

func (m *memoryAttempts) ListRecent(context.Context, port.AttemptQuery) (port.AttemptPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return port.AttemptPage{Items: append([]entity.DeploymentAttempt(nil), m.saved...)}, nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (p *recordingPublisher) PublishEvent(_ context.Context, subject string, _ interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type staticHealthProbe struct {
	name     string
	critical bool
	healthy  bool
}

func (p staticHealthProbe) Definition() port.HealthProbeDefinition {
	return port.HealthProbeDefinition{Name: p.name, Critical: p.critical, Timeout: time.Second}
}

func (p staticHealthProbe) Check(context.Context) (entity.HealthCheckResult, error) {
	if !p.healthy {
		return entity.HealthCheckResult{}, errors.New("probe failed")
	}
	return entity.HealthCheckResult{Name: p.name, Healthy: true, Critical: p.critical}, nil
}

type capturingChannel struct {
	name string

	mu     sync.Mutex
	alerts []entity.Alert
}

func (c *capturingChannel) Name() string      { return c.name }
func (c *capturingChannel) IsAvailable() bool { return true }

func (c *capturingChannel) Send(_ context.Context, alert entity.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, alert)
	return nil
}

func (c *capturingChannel) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.alerts))
	for _, a := range c.alerts {
		out = append(out, a.Type)
	}
	return out
}

type recordingMetrics struct {
	mu      sync.Mutex
	metrics []port.GateMetric
}

func (r *recordingMetrics) PublishBatch(_ context.Context, metrics []port.GateMetric) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = append(r.metrics, metrics...)
	return nil
}

func (r *recordingMetrics) Flush(context.Context) error { return nil }

func (r *recordingMetrics) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.metrics))
	for _, m := range r.metrics {
		out = append(out, m.Name)
	}
	return out
}
