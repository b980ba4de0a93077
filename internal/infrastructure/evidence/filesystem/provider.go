// Package filesystem читает отчеты о доказательствах, которые CI-пайплайн
// складывает в каталог EVIDENCE_DIR.
package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dreschagin/quality-gate/internal/domain/entity"
)

// Имена файлов отчетов в каталоге доказательств
const (
	ScreenshotsFile = "screenshots.json"
	PerformanceFile = "performance.json"
	TestsFile       = "test-results.json"
	JourneyFile     = "user-journey.json"
	BrowsersFile    = "browser-compatibility.json"
)

// Provider реализует port.EvidenceProvider поверх JSON-файлов
type Provider struct {
	dir string
}

func NewProvider(dir string) *Provider {
	return &Provider{dir: dir}
}

func (p *Provider) Dir() string {
	return p.dir
}

func (p *Provider) CaptureScreenshots(ctx context.Context) ([]entity.Screenshot, error) {
	var out []entity.Screenshot
	if err := p.read(ctx, ScreenshotsFile, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Provider) MeasurePerformance(ctx context.Context) (*entity.PerformanceMetrics, error) {
	var out entity.PerformanceMetrics
	if err := p.read(ctx, PerformanceFile, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *Provider) RunFunctionalTests(ctx context.Context) ([]entity.TestResult, error) {
	var out []entity.TestResult
	if err := p.read(ctx, TestsFile, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Provider) ReplayUserJourney(ctx context.Context) ([]entity.UserJourneyEvidence, error) {
	var out []entity.UserJourneyEvidence
	if err := p.read(ctx, JourneyFile, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Provider) CheckBrowserCompatibility(ctx context.Context) ([]entity.BrowserCompatibilityReport, error) {
	var out []entity.BrowserCompatibilityReport
	if err := p.read(ctx, BrowsersFile, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Provider) read(ctx context.Context, name string, dst interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := filepath.Join(p.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read evidence report %s: %w", name, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode evidence report %s: %w", name, err)
	}
	return nil
}
