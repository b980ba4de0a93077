package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "quality_gate"

// Outcome labels.
const (
	OutcomeApproved = "approved"
	OutcomeBlocked  = "blocked"
	OutcomeTimeout  = "timeout"
	OutcomeError    = "error"
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
)

// Metrics bundles prometheus collectors used by the gate service.
// All recording methods are safe on a nil receiver.
type Metrics struct {
	RequestsTotal      *prometheus.CounterVec
	RequestDurationSec *prometheus.HistogramVec
	AuthFailures       prometheus.Counter
	RateLimitDropped   prometheus.Counter

	ValidationsTotal      *prometheus.CounterVec
	ValidationDurationSec prometheus.Histogram
	GateScore             *prometheus.GaugeVec
	HealthScore           prometheus.Gauge
	HealthProbeFailures   *prometheus.CounterVec
	EvidenceCollections   *prometheus.CounterVec
	AlertDispatches       *prometheus.CounterVec
	AlertsThrottled       prometheus.Counter
	EscalationsPending    prometheus.Gauge
	EscalationsFired      prometheus.Counter
}

func New(registry prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "method", "status"}),
		RequestDurationSec: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
		AuthFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Total number of auth failures.",
		}),
		RateLimitDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_dropped_total",
			Help:      "Total number of requests dropped by rate limiter.",
		}),
		ValidationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deployment_validations_total",
			Help:      "Deployment validations partitioned by outcome.",
		}, []string{"outcome"}),
		ValidationDurationSec: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "deployment_validation_seconds",
			Help:      "Deployment validation latency in seconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 45, 60, 90},
		}),
		GateScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gate_score",
			Help:      "Most recent score per quality gate.",
		}, []string{"gate"}),
		HealthScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "health_score",
			Help:      "Most recent aggregated health score.",
		}),
		HealthProbeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "health_probe_failures_total",
			Help:      "Unhealthy health probe results per probe.",
		}, []string{"probe"}),
		EvidenceCollections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evidence_collections_total",
			Help:      "Evidence collections partitioned by outcome.",
		}, []string{"outcome"}),
		AlertDispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_dispatches_total",
			Help:      "Alert channel deliveries partitioned by channel and outcome.",
		}, []string{"channel", "outcome"}),
		AlertsThrottled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_throttled_total",
			Help:      "Alerts suppressed by a rule throttle window.",
		}),
		EscalationsPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "escalations_pending",
			Help:      "Number of armed escalation timers.",
		}),
		EscalationsFired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_fired_total",
			Help:      "Escalated alerts sent.",
		}),
	}

	collectors := []prometheus.Collector{
		m.RequestsTotal,
		m.RequestDurationSec,
		m.AuthFailures,
		m.RateLimitDropped,
		m.ValidationsTotal,
		m.ValidationDurationSec,
		m.GateScore,
		m.HealthScore,
		m.HealthProbeFailures,
		m.EvidenceCollections,
		m.AlertDispatches,
		m.AlertsThrottled,
		m.EscalationsPending,
		m.EscalationsFired,
	}
	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}

	return m, nil
}

func (m *Metrics) ObserveValidation(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	if duration < 0 {
		duration = 0
	}
	m.ValidationsTotal.WithLabelValues(outcome).Inc()
	m.ValidationDurationSec.Observe(duration.Seconds())
}

func (m *Metrics) SetGateScore(gate string, score float64) {
	if m == nil {
		return
	}
	m.GateScore.WithLabelValues(gate).Set(score)
}

func (m *Metrics) SetHealthScore(score float64) {
	if m == nil {
		return
	}
	m.HealthScore.Set(score)
}

func (m *Metrics) IncProbeFailure(probe string) {
	if m == nil {
		return
	}
	m.HealthProbeFailures.WithLabelValues(probe).Inc()
}

func (m *Metrics) IncEvidenceCollection(outcome string) {
	if m == nil {
		return
	}
	m.EvidenceCollections.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncAlertDispatch(channel, outcome string) {
	if m == nil {
		return
	}
	m.AlertDispatches.WithLabelValues(channel, outcome).Inc()
}

func (m *Metrics) IncThrottled() {
	if m == nil {
		return
	}
	m.AlertsThrottled.Inc()
}

func (m *Metrics) SetPendingEscalations(n int) {
	if m == nil {
		return
	}
	m.EscalationsPending.Set(float64(n))
}

func (m *Metrics) IncEscalationFired() {
	if m == nil {
		return
	}
	m.EscalationsFired.Inc()
}

func (m *Metrics) IncAuthFailure() {
	if m == nil {
		return
	}
	m.AuthFailures.Inc()
}

func (m *Metrics) IncRateLimitDropped() {
	if m == nil {
		return
	}
	m.RateLimitDropped.Inc()
}

func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedAt := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		status := strconv.Itoa(wrapped.statusCode)
		route := normalizeRoute(r.URL.Path)
		m.RequestsTotal.WithLabelValues(route, r.Method, status).Inc()
		m.RequestDurationSec.WithLabelValues(route, r.Method, status).Observe(time.Since(startedAt).Seconds())
	})
}

// normalizeRoute keeps label cardinality bounded.
func normalizeRoute(path string) string {
	switch {
	case path == "/ws", path == "/metrics", path == "/healthz", path == "/readyz":
		return path
	case strings.HasPrefix(path, "/api/v1/deployments/"):
		return "/api/v1/deployments/*"
	case strings.HasPrefix(path, "/api/v1/quality/"):
		return "/api/v1/quality/*"
	case strings.HasPrefix(path, "/api/v1/system/"):
		return "/api/v1/system/*"
	case path == "/api/v1" || strings.HasPrefix(path, "/api/v1/"):
		return "/api/v1/*"
	default:
		return "other"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

// Hijack passes websocket upgrades through wrapped ResponseWriter.
func (rw *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

func (rw *statusRecorder) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
