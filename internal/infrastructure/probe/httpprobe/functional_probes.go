package httpprobe

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dreschagin/quality-gate/internal/application/port"
)

const mobileUserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Mobile/15E148"

// FunctionalProbe - функциональная проба на основе функции
type FunctionalProbe struct {
	def port.FunctionalProbeDefinition
	run func(ctx context.Context) error
}

func (p *FunctionalProbe) Definition() port.FunctionalProbeDefinition { return p.def }

func (p *FunctionalProbe) Run(ctx context.Context) error { return p.run(ctx) }

// FunctionalProbes возвращает упорядоченный реестр функциональных проб.
// Первые четыре критичные.
func FunctionalProbes(client *Client, timeout, performanceBudget time.Duration) []port.FunctionalProbe {
	probe := func(name string, critical bool, run func(ctx context.Context) error) port.FunctionalProbe {
		return &FunctionalProbe{
			def: port.FunctionalProbeDefinition{Name: name, Timeout: timeout, Critical: critical},
			run: run,
		}
	}

	return []port.FunctionalProbe{
		probe("application-load", true, client.checkApplicationLoad),
		probe("navigation", true, client.checkNavigation),
		probe("user-journey", true, client.checkUserJourney),
		probe("ai-generation", true, client.checkGeneration),
		probe("form-validation", false, client.checkFormValidation),
		probe("error-handling", false, client.checkErrorHandling),
		probe("responsive-layout", false, client.checkResponsiveLayout),
		probe("performance", false, func(ctx context.Context) error {
			return client.checkPerformance(ctx, performanceBudget)
		}),
	}
}

func (c *Client) checkApplicationLoad(ctx context.Context) error {
	resp, err := c.Get(ctx, "/", nil)
	if err != nil {
		return err
	}
	if err := expectSuccess(resp, "/"); err != nil {
		return err
	}
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return fmt.Errorf("application returned an empty page")
	}
	return nil
}

func (c *Client) checkNavigation(ctx context.Context) error {
	for _, path := range c.target.NavigationPaths {
		resp, err := c.Get(ctx, path, nil)
		if err != nil {
			return err
		}
		if err := expectSuccess(resp, path); err != nil {
			return err
		}
	}
	return nil
}

// checkUserJourney проходит шаги сценария по порядку, перенося cookies между шагами
func (c *Client) checkUserJourney(ctx context.Context) error {
	var cookies []string
	for i, path := range c.target.JourneyPaths {
		header := http.Header{}
		for _, cookie := range cookies {
			header.Add("Cookie", cookie)
		}
		resp, err := c.Get(ctx, path, header)
		if err != nil {
			return fmt.Errorf("journey step %d: %w", i+1, err)
		}
		if err := expectSuccess(resp, path); err != nil {
			return fmt.Errorf("journey step %d: %w", i+1, err)
		}
		for _, set := range resp.Header.Values("Set-Cookie") {
			pair, _, _ := strings.Cut(set, ";")
			cookies = append(cookies, pair)
		}
	}
	return nil
}

func (c *Client) checkGeneration(ctx context.Context) error {
	body := []byte(`{"prompt":"Build a landing page with a signup form","requestId":"` + uuid.NewString() + `"}`)
	resp, err := c.PostJSON(ctx, c.target.GenerationPath, body)
	if err != nil {
		return err
	}
	if err := expectSuccess(resp, c.target.GenerationPath); err != nil {
		return err
	}
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return fmt.Errorf("generation returned an empty response")
	}
	return nil
}

// checkFormValidation отправляет пустую форму и ожидает отказ 4xx
func (c *Client) checkFormValidation(ctx context.Context) error {
	resp, err := c.PostJSON(ctx, c.target.FormPath, []byte(`{}`))
	if err != nil {
		return err
	}
	if resp.StatusCode < 400 || resp.StatusCode >= 500 {
		return fmt.Errorf("invalid form submission returned status %d, want 4xx", resp.StatusCode)
	}
	return nil
}

// checkErrorHandling запрашивает несуществующую страницу и ожидает 404
func (c *Client) checkErrorHandling(ctx context.Context) error {
	path := "/__quality-gate-missing-" + uuid.NewString()
	resp, err := c.Get(ctx, path, nil)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("missing page returned status %d, want 404", resp.StatusCode)
	}
	return nil
}

func (c *Client) checkResponsiveLayout(ctx context.Context) error {
	header := http.Header{}
	header.Set("User-Agent", mobileUserAgent)
	resp, err := c.Get(ctx, "/", header)
	if err != nil {
		return err
	}
	if err := expectSuccess(resp, "/"); err != nil {
		return err
	}
	if !bytes.Contains(bytes.ToLower(resp.Body), []byte(`name="viewport"`)) {
		return fmt.Errorf("page has no viewport meta tag")
	}
	return nil
}

func (c *Client) checkPerformance(ctx context.Context, budget time.Duration) error {
	resp, err := c.Get(ctx, "/", nil)
	if err != nil {
		return err
	}
	if err := expectSuccess(resp, "/"); err != nil {
		return err
	}
	if budget > 0 && resp.Elapsed > budget {
		return fmt.Errorf("page loaded in %s, budget %s", resp.Elapsed.Round(time.Millisecond), budget)
	}
	return nil
}
