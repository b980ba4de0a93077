package entity

import "time"

// Screenshot описывает один снимок экрана из пакета доказательств
type Screenshot struct {
	Name       string    `json:"name"`
	URL        string    `json:"url,omitempty"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Quality    float64   `json:"quality"`
	CapturedAt time.Time `json:"captured_at"`
}

// PerformanceMetrics - web vitals и композитная оценка производительности
type PerformanceMetrics struct {
	LoadTimeMs     float64 `json:"load_time_ms"`
	LCPMs          float64 `json:"lcp_ms"`
	FIDMs          float64 `json:"fid_ms"`
	CLS            float64 `json:"cls"`
	CompositeScore float64 `json:"composite_score"`
}

// TestResult - результат одного функционального теста
type TestResult struct {
	Name       string  `json:"name"`
	Passed     bool    `json:"passed"`
	DurationMs float64 `json:"duration_ms"`
	Error      string  `json:"error,omitempty"`
}

// UserJourneyEvidence - результат одного шага пользовательского сценария
type UserJourneyEvidence struct {
	Step       string  `json:"step"`
	Success    bool    `json:"success"`
	DurationMs float64 `json:"duration_ms"`
	Error      string  `json:"error,omitempty"`
}

// BrowserCompatibilityReport - результат прогона в одном браузере
type BrowserCompatibilityReport struct {
	Browser     string `json:"browser"`
	Version     string `json:"version,omitempty"`
	Tested      bool   `json:"tested"`
	TotalTests  int    `json:"total_tests"`
	PassedTests int    `json:"passed_tests"`
}

// EvidencePackage - собранные за один прогон доказательства (Aggregate Root).
// Неизменяем после создания.
type EvidencePackage struct {
	ID                   string                       `json:"id"`
	CollectedAt          time.Time                    `json:"collected_at"`
	Screenshots          []Screenshot                 `json:"screenshots"`
	PerformanceMetrics   *PerformanceMetrics          `json:"performance_metrics,omitempty"`
	TestResults          []TestResult                 `json:"test_results"`
	UserJourneyProof     []UserJourneyEvidence        `json:"user_journey_proof"`
	BrowserCompatibility []BrowserCompatibilityReport `json:"browser_compatibility"`
	CollectionDuration   time.Duration                `json:"collection_duration"`
	CollectionErrors     map[string]string            `json:"collection_errors,omitempty"`
}

// Key возвращает ключ хранения пакета: ISO-время сбора в UTC.
func (p *EvidencePackage) Key() string {
	return EvidenceKey(p.CollectedAt)
}

// EvidenceKey форматирует время сбора как ключ хранилища.
func EvidenceKey(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
