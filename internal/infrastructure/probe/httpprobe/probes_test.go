package httpprobe

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const page = `<!doctype html><html><head><meta name="viewport" content="width=device-width"><title>app</title></head>
<body><div><p>hello</p><img src="a.png"/></div></body></html>`

func newTargetServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, page)
	})
	mux.HandleFunc("/dashboard", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page)
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/"})
		fmt.Fprint(w, "ok")
	})
	mux.HandleFunc("/account", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("session"); err != nil || c.Value != "abc" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, "account")
	})
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"ok"}`)
	})
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method", http.StatusMethodNotAllowed)
			return
		}
		if r.ContentLength <= 2 {
			http.Error(w, "prompt is required", http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, `{"plan":"steps"}`)
	})
	mux.HandleFunc("/api/client-errors", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"count":0}`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(Target{
		BaseURL:          srv.URL + "/",
		APIHealthPath:    "/api/health",
		NavigationPaths:  []string{"/", "/dashboard"},
		JourneyPaths:     []string{"/login", "/account"},
		GenerationPath:   "/api/generate",
		FormPath:         "/api/generate",
		ClientErrorsPath: "/api/client-errors",
	}, srv.Client())
}

func TestFunctionalProbes_AllPass(t *testing.T) {
	client := newTestClient(newTargetServer(t))
	probes := FunctionalProbes(client, 5*time.Second, 5*time.Second)

	require.Len(t, probes, 8)
	names := make([]string, 0, len(probes))
	for i, probe := range probes {
		def := probe.Definition()
		names = append(names, def.Name)
		assert.Equal(t, i < 4, def.Critical, def.Name)
		assert.Equal(t, 5*time.Second, def.Timeout)
		assert.NoError(t, probe.Run(context.Background()), def.Name)
	}
	assert.Equal(t, []string{
		"application-load", "navigation", "user-journey", "ai-generation",
		"form-validation", "error-handling", "responsive-layout", "performance",
	}, names)
}

func TestFunctionalProbes_NavigationFailure(t *testing.T) {
	srv := newTargetServer(t)
	client := newTestClient(srv)
	client.target.NavigationPaths = []string{"/", "/missing"}

	err := client.checkNavigation(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestFunctionalProbes_JourneyNeedsCookies(t *testing.T) {
	client := newTestClient(newTargetServer(t))
	client.target.JourneyPaths = []string{"/account"}

	err := client.checkUserJourney(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "journey step 1")
}

func TestFunctionalProbes_PerformanceBudget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(30 * time.Millisecond)
		fmt.Fprint(w, page)
	}))
	defer srv.Close()

	client := NewClient(Target{BaseURL: srv.URL}, srv.Client())
	err := client.checkPerformance(context.Background(), 5*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "budget")
	assert.NoError(t, client.checkPerformance(context.Background(), 0))
}

func TestFunctionalProbes_ErrorHandlingRejects500(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(Target{BaseURL: srv.URL}, srv.Client())
	require.Error(t, client.checkErrorHandling(context.Background()))
	require.Error(t, client.checkApplicationLoad(context.Background()))
}

func TestHealthProbes_Healthy(t *testing.T) {
	client := newTestClient(newTargetServer(t))
	probes := HealthProbes(client, HealthThresholds{
		APILatencyMs:      1000,
		ErrorRatePercent:  5,
		DOMMaxElements:    100,
		ConsoleErrorLimit: 0,
	})

	require.Len(t, probes, 5)
	for _, probe := range probes {
		res, err := probe.Check(context.Background())
		require.NoError(t, err, probe.Definition().Name)
		assert.True(t, res.Healthy, "%s: %s", probe.Definition().Name, res.Error)
	}

	critical := map[string]bool{}
	for _, probe := range probes {
		critical[probe.Definition().Name] = probe.Definition().Critical
	}
	assert.Equal(t, map[string]bool{
		"application-load": true,
		"api-latency":      true,
		"error-rate":       true,
		"dom-size":         false,
		"console-errors":   false,
	}, critical)
}

func TestErrorRateHealth_CountsServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1)%2 == 0 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	probe := &errorRateHealth{client: NewClient(Target{BaseURL: srv.URL, APIHealthPath: "/"}, srv.Client()), maxPercent: 5, samples: 4}
	res, err := probe.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Healthy)
	assert.Equal(t, float64(50), res.Metrics["error_rate_percent"])
}

func TestDOMSizeHealth_OverLimit(t *testing.T) {
	client := newTestClient(newTargetServer(t))
	probe := &domSizeHealth{client: client, maxElements: 3}

	res, err := probe.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Healthy)
	assert.Equal(t, float64(8), res.Metrics["elements"])
}

func TestCountElements(t *testing.T) {
	n, err := CountElements(strings.NewReader(page))
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	n, err = CountElements(strings.NewReader(""))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestParseErrorCount(t *testing.T) {
	cases := map[string]float64{
		`{"count":3}`:               3,
		`[{"msg":"a"},{"msg":"b"}]`: 2,
		"7":                         7,
		"":                          0,
	}
	for body, want := range cases {
		got, err := ParseErrorCount([]byte(body))
		require.NoError(t, err, body)
		assert.Equal(t, want, got, body)
	}

	_, err := ParseErrorCount([]byte(`{"errors":[]}`))
	assert.Error(t, err)
	_, err = ParseErrorCount([]byte("nope"))
	assert.Error(t, err)
}

func TestAPILatencyHealth_Slow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(20 * time.Millisecond)
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	probe := &apiLatencyHealth{client: NewClient(Target{BaseURL: srv.URL, APIHealthPath: "/api"}, srv.Client()), maxMs: 1}
	res, err := probe.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Healthy)
	assert.Contains(t, res.Error, "exceeds")
}

func TestHealthProbe_ConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	probe := &applicationLoadHealth{client: NewClient(Target{BaseURL: url}, nil)}
	_, err := probe.Check(context.Background())
	require.Error(t, err)
}
