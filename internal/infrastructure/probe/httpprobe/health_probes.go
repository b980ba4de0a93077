package httpprobe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"github.com/dreschagin/quality-gate/internal/application/port"
	"github.com/dreschagin/quality-gate/internal/domain/entity"
)

// HealthThresholds - пороги health-проб
type HealthThresholds struct {
	APILatencyMs      float64
	ErrorRatePercent  float64
	DOMMaxElements    float64
	ConsoleErrorLimit float64
	// ErrorRateSamples - сколько запросов делает проба error-rate за раунд
	ErrorRateSamples int
}

// HealthProbes возвращает HTTP health-пробы в порядке регистрации
func HealthProbes(client *Client, thresholds HealthThresholds) []port.HealthProbe {
	if thresholds.ErrorRateSamples <= 0 {
		thresholds.ErrorRateSamples = 5
	}
	return []port.HealthProbe{
		&applicationLoadHealth{client: client},
		&apiLatencyHealth{client: client, maxMs: thresholds.APILatencyMs},
		&errorRateHealth{client: client, maxPercent: thresholds.ErrorRatePercent, samples: thresholds.ErrorRateSamples},
		&domSizeHealth{client: client, maxElements: thresholds.DOMMaxElements},
		&consoleErrorsHealth{client: client, limit: thresholds.ConsoleErrorLimit},
	}
}

type applicationLoadHealth struct {
	client *Client
}

func (p *applicationLoadHealth) Definition() port.HealthProbeDefinition {
	return port.HealthProbeDefinition{Name: "application-load", Critical: true}
}

func (p *applicationLoadHealth) Check(ctx context.Context) (entity.HealthCheckResult, error) {
	resp, err := p.client.Get(ctx, "/", nil)
	if err != nil {
		return entity.HealthCheckResult{}, err
	}

	res := entity.HealthCheckResult{
		Healthy: true,
		Metrics: map[string]float64{
			"status_code":   float64(resp.StatusCode),
			"load_ms":       ms(resp),
			"content_bytes": float64(len(resp.Body)),
		},
	}
	if err := expectSuccess(resp, "/"); err != nil {
		res.Healthy = false
		res.Error = err.Error()
	}
	return res, nil
}

type apiLatencyHealth struct {
	client *Client
	maxMs  float64
}

func (p *apiLatencyHealth) Definition() port.HealthProbeDefinition {
	return port.HealthProbeDefinition{Name: "api-latency", Threshold: p.maxMs, Critical: true}
}

func (p *apiLatencyHealth) Check(ctx context.Context) (entity.HealthCheckResult, error) {
	path := p.client.target.APIHealthPath
	resp, err := p.client.Get(ctx, path, nil)
	if err != nil {
		return entity.HealthCheckResult{}, err
	}

	latency := ms(resp)
	res := entity.HealthCheckResult{
		Healthy: true,
		Metrics: map[string]float64{"latency_ms": latency, "status_code": float64(resp.StatusCode)},
	}
	if err := expectSuccess(resp, path); err != nil {
		res.Healthy = false
		res.Error = err.Error()
	} else if latency > p.maxMs {
		res.Healthy = false
		res.Error = fmt.Sprintf("api latency %.0fms exceeds %.0fms", latency, p.maxMs)
	}
	return res, nil
}

type errorRateHealth struct {
	client     *Client
	maxPercent float64
	samples    int
}

func (p *errorRateHealth) Definition() port.HealthProbeDefinition {
	return port.HealthProbeDefinition{Name: "error-rate", Threshold: p.maxPercent, Critical: true}
}

// Check делает серию параллельных запросов к API и считает долю неуспешных
func (p *errorRateHealth) Check(ctx context.Context) (entity.HealthCheckResult, error) {
	path := p.client.target.APIHealthPath
	failed := make([]bool, p.samples)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.samples; i++ {
		i := i
		g.Go(func() error {
			resp, err := p.client.Get(gctx, path, nil)
			failed[i] = err != nil || resp.StatusCode >= 500
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return entity.HealthCheckResult{}, err
	}

	var failures int
	for _, f := range failed {
		if f {
			failures++
		}
	}
	rate := float64(failures) / float64(p.samples) * 100

	res := entity.HealthCheckResult{
		Healthy: rate <= p.maxPercent,
		Metrics: map[string]float64{
			"error_rate_percent": rate,
			"samples":            float64(p.samples),
			"failures":           float64(failures),
		},
	}
	if !res.Healthy {
		res.Error = fmt.Sprintf("error rate %.1f%% exceeds %.1f%%", rate, p.maxPercent)
	}
	return res, nil
}

type domSizeHealth struct {
	client      *Client
	maxElements float64
}

func (p *domSizeHealth) Definition() port.HealthProbeDefinition {
	return port.HealthProbeDefinition{Name: "dom-size", Threshold: p.maxElements}
}

func (p *domSizeHealth) Check(ctx context.Context) (entity.HealthCheckResult, error) {
	resp, err := p.client.Get(ctx, "/", nil)
	if err != nil {
		return entity.HealthCheckResult{}, err
	}
	if err := expectSuccess(resp, "/"); err != nil {
		return entity.HealthCheckResult{}, err
	}

	elements, err := CountElements(bytes.NewReader(resp.Body))
	if err != nil {
		return entity.HealthCheckResult{}, err
	}

	res := entity.HealthCheckResult{
		Healthy: float64(elements) <= p.maxElements,
		Metrics: map[string]float64{"elements": float64(elements)},
	}
	if !res.Healthy {
		res.Error = fmt.Sprintf("document has %d elements, limit %.0f", elements, p.maxElements)
	}
	return res, nil
}

// CountElements считает открывающие теги HTML-документа
func CountElements(r io.Reader) (int, error) {
	tokenizer := html.NewTokenizer(r)
	count := 0
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			if errors.Is(tokenizer.Err(), io.EOF) {
				return count, nil
			}
			return count, tokenizer.Err()
		case html.StartTagToken, html.SelfClosingTagToken:
			count++
		}
	}
}

type consoleErrorsHealth struct {
	client *Client
	limit  float64
}

func (p *consoleErrorsHealth) Definition() port.HealthProbeDefinition {
	return port.HealthProbeDefinition{Name: "console-errors", Threshold: p.limit}
}

// Check читает счетчик клиентских ошибок, который приложение отдает по ClientErrorsPath.
// Поддерживаются {"count": n}, JSON-массив и число в теле.
func (p *consoleErrorsHealth) Check(ctx context.Context) (entity.HealthCheckResult, error) {
	path := p.client.target.ClientErrorsPath
	resp, err := p.client.Get(ctx, path, nil)
	if err != nil {
		return entity.HealthCheckResult{}, err
	}
	if err := expectSuccess(resp, path); err != nil {
		return entity.HealthCheckResult{}, err
	}

	count, err := ParseErrorCount(resp.Body)
	if err != nil {
		return entity.HealthCheckResult{}, err
	}

	res := entity.HealthCheckResult{
		Healthy: count <= p.limit,
		Metrics: map[string]float64{"console_errors": count},
	}
	if !res.Healthy {
		res.Error = fmt.Sprintf("%.0f console errors reported, limit %.0f", count, p.limit)
	}
	return res, nil
}

// ParseErrorCount извлекает количество ошибок из тела ответа
func ParseErrorCount(body []byte) (float64, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return 0, nil
	}

	switch trimmed[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(body, &items); err != nil {
			return 0, fmt.Errorf("decode console errors: %w", err)
		}
		return float64(len(items)), nil
	case '{':
		var payload struct {
			Count *float64 `json:"count"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return 0, fmt.Errorf("decode console errors: %w", err)
		}
		if payload.Count == nil {
			return 0, fmt.Errorf("console errors payload has no count")
		}
		return *payload.Count, nil
	default:
		value, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, fmt.Errorf("decode console errors: %w", err)
		}
		return value, nil
	}
}

func ms(resp *Response) float64 {
	return float64(resp.Elapsed.Microseconds()) / 1000
}
