package http

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dreschagin/quality-gate/internal/interfaces/http/handler"
	"github.com/dreschagin/quality-gate/internal/interfaces/http/middleware"
	"github.com/dreschagin/quality-gate/internal/metrics"
	"github.com/dreschagin/quality-gate/pkg/config"
	"github.com/dreschagin/quality-gate/pkg/logger"
)

// RouterDeps - обработчики и инфраструктура HTTP слоя
type RouterDeps struct {
	Gate      *handler.GateHandler
	Attempts  *handler.AttemptHandler
	Health    *handler.HealthHandler
	Alerts    *handler.AlertHandler
	WebSocket *handler.WebSocketHandler

	Security  config.SecurityConfig
	RateLimit config.RateLimitConfig
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
}

// Router настраивает маршруты приложения
type Router struct {
	mux    *http.ServeMux
	deps   RouterDeps
	logger *logger.Logger
}

// NewRouter создает новый router
func NewRouter(deps RouterDeps, logger *logger.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		deps:   deps,
		logger: logger,
	}
}

// Setup настраивает все маршруты
func (rt *Router) Setup() http.Handler {
	// Health endpoints без авторизации для probes
	rt.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	rt.mux.HandleFunc("GET /readyz", rt.deps.Gate.Ready)

	gatherer := rt.deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	rt.mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	auth := middleware.Auth(middleware.AuthConfig{
		Enabled:     rt.deps.Security.AuthEnabled,
		BearerToken: rt.deps.Security.AuthToken,
	}, rt.logger, rt.deps.Metrics)
	protect := func(h http.HandlerFunc) http.Handler { return auth(h) }

	// WebSocket сам проверяет токен: браузер не может прислать заголовок
	if rt.deps.WebSocket != nil {
		rt.mux.HandleFunc("GET /ws", rt.deps.WebSocket.HandleConnection)
	}

	rt.mux.Handle("POST /api/v1/deployments/validate", protect(rt.deps.Gate.ValidateDeployment))
	rt.mux.Handle("GET /api/v1/deployments/attempts", protect(rt.deps.Attempts.List))
	rt.mux.Handle("POST /api/v1/quality/validate", protect(rt.deps.Gate.ValidateQuality))
	rt.mux.Handle("GET /api/v1/system/status", protect(rt.deps.Gate.SystemStatus))
	rt.mux.Handle("GET /api/v1/system/report", protect(rt.deps.Gate.SystemReport))
	rt.mux.Handle("GET /api/v1/health", protect(rt.deps.Health.Current))
	rt.mux.Handle("GET /api/v1/alerts", protect(rt.deps.Alerts.List))
	rt.mux.Handle("POST /api/v1/alerts/{id}/ack", protect(rt.deps.Alerts.Acknowledge))

	// Применяем middleware
	var h http.Handler = rt.mux
	h = middleware.Compression(h)
	if rt.deps.RateLimit.RPS > 0 {
		limiter := middleware.NewRateLimiter(rt.deps.RateLimit.RPS, rt.deps.RateLimit.Burst)
		h = middleware.RateLimit(limiter, rt.deps.Metrics)(h)
	}
	h = rt.deps.Metrics.Middleware(h)
	h = middleware.Logger(rt.logger)(h)
	h = middleware.RequestID(h)
	h = middleware.Recovery(rt.logger)(h)

	return h
}
