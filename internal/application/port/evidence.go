package port

import (
	"context"

	"github.com/dreschagin/quality-gate/internal/domain/entity"
)

// EvidenceProvider поставляет сырые доказательства (Port).
// Конкретный захват браузера/DOM находится за пределами ядра.
type EvidenceProvider interface {
	CaptureScreenshots(ctx context.Context) ([]entity.Screenshot, error)
	MeasurePerformance(ctx context.Context) (*entity.PerformanceMetrics, error)
	RunFunctionalTests(ctx context.Context) ([]entity.TestResult, error)
	ReplayUserJourney(ctx context.Context) ([]entity.UserJourneyEvidence, error)
	CheckBrowserCompatibility(ctx context.Context) ([]entity.BrowserCompatibilityReport, error)
}

// EvidenceStorage - key-value хранилище пакетов, ключ - ISO-время сбора.
type EvidenceStorage interface {
	Store(ctx context.Context, key string, pkg *entity.EvidencePackage) error
	// Retrieve возвращает (nil, nil), если пакета с таким ключом нет.
	Retrieve(ctx context.Context, key string) (*entity.EvidencePackage, error)
}
