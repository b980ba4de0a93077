package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dreschagin/quality-gate/internal/application/alerting"
	"github.com/dreschagin/quality-gate/internal/application/port"
	"github.com/dreschagin/quality-gate/internal/application/usecase"
	"github.com/dreschagin/quality-gate/internal/domain/entity"
	"github.com/dreschagin/quality-gate/internal/domain/valueobject"
	wsInfra "github.com/dreschagin/quality-gate/internal/infrastructure/notification/websocket"
	"github.com/dreschagin/quality-gate/internal/interfaces/http/handler"
	"github.com/dreschagin/quality-gate/internal/interfaces/http/middleware"
	"github.com/dreschagin/quality-gate/internal/metrics"
	"github.com/dreschagin/quality-gate/pkg/apperror"
	"github.com/dreschagin/quality-gate/pkg/config"
	"github.com/dreschagin/quality-gate/pkg/logger"
)

const testToken = "test-token"

type fakeGate struct {
	mu       sync.Mutex
	result   *entity.DeploymentValidationResult
	err      error
	ready    bool
	attempts []entity.DeploymentAttempt
}

func (g *fakeGate) ValidateForDeployment(context.Context) (*entity.DeploymentValidationResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.result, g.err
}

func (g *fakeGate) PerformFullQualityValidation(context.Context) (*usecase.FullQualityReport, error) {
	return &usecase.FullQualityReport{Passed: true, OverallScore: 97, Issues: []string{}}, nil
}

func (g *fakeGate) GetSystemStatus() usecase.SystemStatusReport {
	return usecase.SystemStatusReport{Status: valueobject.StatusOperational, HealthScore: 100, Monitoring: true}
}

func (g *fakeGate) GetSystemHealthReport(context.Context) usecase.SystemHealthReport {
	return usecase.SystemHealthReport{Status: g.GetSystemStatus(), HealthTrend: []float64{100}}
}

func (g *fakeGate) IsSystemReady() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ready
}

func (g *fakeGate) set(result *entity.DeploymentValidationResult, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.result, g.err = result, err
}

func (g *fakeGate) setReady(ready bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ready = ready
}

func (g *fakeGate) Attempts() []entity.DeploymentAttempt { return g.attempts }

type fakeHealth struct {
	current *entity.HealthStatus
	history []entity.HealthStatus
}

func (h *fakeHealth) GetCurrentHealthStatus() *entity.HealthStatus { return h.current }
func (h *fakeHealth) History() []entity.HealthStatus               { return h.history }
func (h *fakeHealth) RunHealthCheck(context.Context) (entity.HealthStatus, error) {
	return entity.HealthStatus{Overall: valueobject.HealthHealthy, Score: 100}, nil
}

type fakeAlerts struct {
	records []entity.AlertRecord
	acked   []string
}

func (a *fakeAlerts) Recent(n int) []entity.AlertRecord {
	if n < len(a.records) {
		return a.records[len(a.records)-n:]
	}
	return a.records
}
func (a *fakeAlerts) Stats() alerting.Stats { return alerting.Stats{Total: len(a.records)} }
func (a *fakeAlerts) PendingEscalations() []alerting.PendingEscalation {
	return nil
}
func (a *fakeAlerts) Acknowledge(id string) int {
	a.acked = append(a.acked, id)
	return 1
}

type fakeAttemptRepo struct {
	err error
}

func (r *fakeAttemptRepo) Save(context.Context, entity.DeploymentAttempt) error { return nil }
func (r *fakeAttemptRepo) ListRecent(_ context.Context, q port.AttemptQuery) (port.AttemptPage, error) {
	if r.err != nil {
		return port.AttemptPage{}, r.err
	}
	return port.AttemptPage{
		Items:      []entity.DeploymentAttempt{{ID: "from-repo", Approved: true}},
		NextCursor: "next-" + q.Cursor,
	}, nil
}

type testEnv struct {
	server *httptest.Server
	gate   *fakeGate
	alerts *fakeAlerts
}

func newTestServer(t *testing.T, repo port.DeploymentAttemptRepository) *testEnv {
	t.Helper()

	log := logger.New("error")
	registry := prometheus.NewRegistry()
	m, err := metrics.New(registry)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}

	gate := &fakeGate{
		result: &entity.DeploymentValidationResult{Approved: true, OverallScore: 95},
		ready:  true,
		attempts: []entity.DeploymentAttempt{
			{ID: "a1", Approved: false},
			{ID: "a2", Approved: true},
		},
	}
	alerts := &fakeAlerts{records: []entity.AlertRecord{
		{Alert: entity.Alert{ID: "x1", Type: "health_warning"}, Success: true},
		{Alert: entity.Alert{ID: "x2", Type: "deployment_blocked"}, Success: true},
	}}
	health := &fakeHealth{
		current: &entity.HealthStatus{Overall: valueobject.HealthHealthy, Score: 100},
		history: []entity.HealthStatus{{Score: 80}, {Score: 90}, {Score: 100}},
	}

	hub := wsInfra.NewHub(log)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	security := config.SecurityConfig{AuthEnabled: true, AuthToken: testToken, AllowedOrigins: []string{"*"}}
	router := NewRouter(RouterDeps{
		Gate:     handler.NewGateHandler(gate, log),
		Attempts: handler.NewAttemptHandler(gate, repo, log),
		Health:   handler.NewHealthHandler(health, log),
		Alerts:   handler.NewAlertHandler(alerts, nil, log),
		WebSocket: handler.NewWebSocketHandler(hub, security.AllowedOrigins,
			middleware.AuthConfig{Enabled: true, BearerToken: testToken}, log),
		Security:  security,
		RateLimit: config.RateLimitConfig{RPS: 1000, Burst: 1000},
		Metrics:   m,
		Gatherer:  registry,
	}, log)

	server := httptest.NewServer(router.Setup())
	t.Cleanup(server.Close)

	return &testEnv{server: server, gate: gate, alerts: alerts}
}

func (e *testEnv) do(t *testing.T, method, path string, authorized bool) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if authorized {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestRouter_ProbeEndpointsAreUnauthenticated(t *testing.T) {
	env := newTestServer(t, nil)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp := env.do(t, http.MethodGet, path, false)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200 for %s, got %d", path, resp.StatusCode)
		}
	}

	env.gate.setReady(false)
	resp := env.do(t, http.MethodGet, "/readyz", false)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when not ready, got %d", resp.StatusCode)
	}
}

func TestRouter_RequiresBearerToken(t *testing.T) {
	env := newTestServer(t, nil)

	resp := env.do(t, http.MethodGet, "/api/v1/system/status", false)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if resp.Header.Get("WWW-Authenticate") == "" {
		t.Fatalf("expected WWW-Authenticate header")
	}

	resp = env.do(t, http.MethodGet, "/api/v1/system/status", true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var status usecase.SystemStatusReport
	decode(t, resp, &status)
	if status.Status != valueobject.StatusOperational {
		t.Fatalf("unexpected status %q", status.Status)
	}
	if resp.Header.Get(middleware.RequestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}
}

func TestRouter_ValidateDeploymentStatusCodes(t *testing.T) {
	env := newTestServer(t, nil)

	resp := env.do(t, http.MethodPost, "/api/v1/deployments/validate", true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var result entity.DeploymentValidationResult
	decode(t, resp, &result)
	if !result.Approved || result.OverallScore != 95 {
		t.Fatalf("unexpected result %+v", result)
	}

	env.gate.set(nil, apperror.ErrValidationInProgress)
	resp = env.do(t, http.MethodPost, "/api/v1/deployments/validate", true)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}

	env.gate.set(&entity.DeploymentValidationResult{Approved: false, TimedOut: true, BlockedReason: "timeout"},
		fmt.Errorf("gate: %w", apperror.ErrValidationTimeout))
	resp = env.do(t, http.MethodPost, "/api/v1/deployments/validate", true)
	if resp.StatusCode != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", resp.StatusCode)
	}
	decode(t, resp, &result)
	if !result.TimedOut || result.Approved {
		t.Fatalf("expected blocked timed out result, got %+v", result)
	}

	resp = env.do(t, http.MethodGet, "/api/v1/deployments/validate", true)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET, got %d", resp.StatusCode)
	}
}

func TestRouter_AttemptsFromMemoryNewestFirst(t *testing.T) {
	env := newTestServer(t, nil)

	resp := env.do(t, http.MethodGet, "/api/v1/deployments/attempts?limit=1", true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var payload struct {
		Items  []entity.DeploymentAttempt `json:"items"`
		Source string                     `json:"source"`
	}
	decode(t, resp, &payload)
	if payload.Source != "memory" || len(payload.Items) != 1 || payload.Items[0].ID != "a2" {
		t.Fatalf("unexpected payload %+v", payload)
	}

	resp = env.do(t, http.MethodGet, "/api/v1/deployments/attempts?limit=abc", true)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestRouter_AttemptsFromRepository(t *testing.T) {
	env := newTestServer(t, &fakeAttemptRepo{})

	resp := env.do(t, http.MethodGet, "/api/v1/deployments/attempts?cursor=c1", true)
	var payload struct {
		Items      []entity.DeploymentAttempt `json:"items"`
		NextCursor string                     `json:"next_cursor"`
		Source     string                     `json:"source"`
	}
	decode(t, resp, &payload)
	if payload.Source != "repository" || payload.NextCursor != "next-c1" || payload.Items[0].ID != "from-repo" {
		t.Fatalf("unexpected payload %+v", payload)
	}

	env = newTestServer(t, &fakeAttemptRepo{err: fmt.Errorf("throttled")})
	resp = env.do(t, http.MethodGet, "/api/v1/deployments/attempts", true)
	decode(t, resp, &payload)
	if payload.Source != "memory" {
		t.Fatalf("expected memory fallback, got %q", payload.Source)
	}
}

func TestRouter_HealthAndQuality(t *testing.T) {
	env := newTestServer(t, nil)

	resp := env.do(t, http.MethodGet, "/api/v1/health?history=2", true)
	var health struct {
		Current *entity.HealthStatus  `json:"current"`
		History []entity.HealthStatus `json:"history"`
	}
	decode(t, resp, &health)
	if health.Current == nil || len(health.History) != 2 || health.History[1].Score != 100 {
		t.Fatalf("unexpected health payload %+v", health)
	}

	resp = env.do(t, http.MethodPost, "/api/v1/quality/validate", true)
	var report usecase.FullQualityReport
	decode(t, resp, &report)
	if !report.Passed || report.OverallScore != 97 {
		t.Fatalf("unexpected quality report %+v", report)
	}

	resp = env.do(t, http.MethodGet, "/api/v1/system/report", true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestRouter_AlertsListAndAcknowledge(t *testing.T) {
	env := newTestServer(t, nil)

	resp := env.do(t, http.MethodGet, "/api/v1/alerts?limit=1", true)
	var payload struct {
		Records []entity.AlertRecord `json:"records"`
		Stats   alerting.Stats       `json:"stats"`
	}
	decode(t, resp, &payload)
	if len(payload.Records) != 1 || payload.Records[0].Alert.ID != "x2" || payload.Stats.Total != 2 {
		t.Fatalf("unexpected alerts payload %+v", payload)
	}

	resp = env.do(t, http.MethodPost, "/api/v1/alerts/x2/ack", true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if len(env.alerts.acked) != 1 || env.alerts.acked[0] != "x2" {
		t.Fatalf("expected x2 acknowledged, got %v", env.alerts.acked)
	}

	resp = env.do(t, http.MethodGet, "/api/v1/alerts?source=archive", true)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 without archive, got %d", resp.StatusCode)
	}
}

func TestRouter_CompressesAPIResponses(t *testing.T) {
	env := newTestServer(t, nil)

	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/api/v1/system/status", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Accept-Encoding", "gzip")
	transport := &http.Transport{DisableCompression: true}
	resp, err := (&http.Client{Transport: transport, Timeout: 5 * time.Second}).Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if !strings.Contains(resp.Header.Get("Content-Encoding"), "gzip") {
		t.Fatalf("expected gzip encoding, got %q", resp.Header.Get("Content-Encoding"))
	}
}

func TestRouter_RecoversFromPanic(t *testing.T) {
	log := logger.New("error")
	h := middleware.Recovery(log)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestRouter_WebSocketRejectsUnknownSubscription(t *testing.T) {
	env := newTestServer(t, nil)

	resp := env.do(t, http.MethodGet, "/ws?types=alert,metrics", true)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown message type, got %d", resp.StatusCode)
	}
}
