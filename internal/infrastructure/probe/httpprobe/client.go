// Package httpprobe реализует health- и функциональные пробы поверх HTTP
// против проверяемого приложения.
package httpprobe

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxBodyBytes = 4 << 20

// Target описывает проверяемое приложение
type Target struct {
	BaseURL          string
	APIHealthPath    string
	NavigationPaths  []string
	JourneyPaths     []string
	GenerationPath   string
	FormPath         string
	ClientErrorsPath string
}

// Response - прочитанный ответ с замером времени
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Elapsed    time.Duration
}

// Client выполняет запросы к целевому приложению
type Client struct {
	target Target
	http   *http.Client
}

// NewClient создает клиента. Таймауты задаются контекстом каждой пробы.
func NewClient(target Target, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	target.BaseURL = strings.TrimRight(target.BaseURL, "/")
	return &Client{target: target, http: httpClient}
}

func (c *Client) Target() Target {
	return c.target
}

func (c *Client) url(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.target.BaseURL + path
}

// Get выполняет GET и читает тело
func (c *Client) Get(ctx context.Context, path string, header http.Header) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, nil, header)
}

// PostJSON отправляет JSON-тело
func (c *Client) PostJSON(ctx context.Context, path string, body []byte) (*Response, error) {
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	return c.do(ctx, http.MethodPost, path, body, header)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, header http.Header) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	startedAt := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", method, path, err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		Elapsed:    time.Since(startedAt),
	}, nil
}

func expectSuccess(resp *Response, path string) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}
	return nil
}
