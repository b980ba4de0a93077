package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/dreschagin/quality-gate/internal/domain/entity"
	"github.com/dreschagin/quality-gate/internal/domain/valueobject"
)

// Веса категорий в процентных пунктах, в сумме 100
const (
	weightScreenshots = 20
	weightPerformance = 25
	weightTests       = 25
	weightJourney     = 15
	weightBrowser     = 15

	// EvidencePassScore - минимальная оценка прохождения гейта
	EvidencePassScore = 80.0
)

const (
	CheckScreenshots = "screenshots"
	CheckPerformance = "performance"
	CheckTestResults = "test_results"
	CheckUserJourney = "user_journey"
	CheckBrowsers    = "browser_compatibility"
)

// EvidenceThresholds - фиксированная таблица порогов по категориям
type EvidenceThresholds struct {
	MinWidth              int
	MinHeight             int
	MinScreenshotQuality  float64
	MinScreenshotPassRate float64
	MaxLoadTimeMs         float64
	MaxLCPMs              float64
	MaxFIDMs              float64
	MaxCLS                float64
	MinCompositeScore     float64
	MinTestPassRate       float64
	MinJourneySuccessRate float64
	RequiredBrowsers      []string
	MinBrowserPassRate    float64
}

func DefaultEvidenceThresholds() EvidenceThresholds {
	return EvidenceThresholds{
		MinWidth:              1200,
		MinHeight:             800,
		MinScreenshotQuality:  0.8,
		MinScreenshotPassRate: 90,
		MaxLoadTimeMs:         3000,
		MaxLCPMs:              2500,
		MaxFIDMs:              100,
		MaxCLS:                0.1,
		MinCompositeScore:     85,
		MinTestPassRate:       95,
		MinJourneySuccessRate: 95,
		RequiredBrowsers:      []string{"chrome", "firefox", "safari", "edge"},
		MinBrowserPassRate:    90,
	}
}

// EvidenceQualityGate оценивает пакет доказательств (Domain Service).
// Чистая функция: не выполняет ввода-вывода.
type EvidenceQualityGate struct {
	thresholds EvidenceThresholds
	now        func() time.Time
}

func NewEvidenceQualityGate(thresholds EvidenceThresholds) *EvidenceQualityGate {
	return &EvidenceQualityGate{thresholds: thresholds, now: time.Now}
}

// categoryVerdict - итог одной категории
type categoryVerdict struct {
	name           string
	weight         int
	passed         bool
	value          float64
	issues         []string
	recommendation string
}

// ValidateEvidence проверяет пять категорий независимо и считает взвешенную оценку.
// Отсутствующие данные категории считаются провалом, а не пропуском.
func (g *EvidenceQualityGate) ValidateEvidence(pkg *entity.EvidencePackage) entity.QualityGateResult {
	if pkg == nil {
		pkg = &entity.EvidencePackage{}
	}

	verdicts := []categoryVerdict{
		g.checkScreenshots(pkg.Screenshots),
		g.checkPerformance(pkg.PerformanceMetrics),
		g.checkTests(pkg.TestResults),
		g.checkJourney(pkg.UserJourneyProof),
		g.checkBrowsers(pkg.BrowserCompatibility),
	}

	result := entity.QualityGateResult{
		Gate:            entity.GateEvidence,
		Issues:          []string{},
		Recommendations: []string{},
		EvaluatedAt:     g.now(),
	}

	points := 0
	for _, v := range verdicts {
		outcome := entity.CheckOutcome{Name: v.name, Passed: v.passed, Value: v.value}
		if v.passed {
			points += v.weight
		} else {
			outcome.Message = strings.Join(v.issues, "; ")
			result.Issues = append(result.Issues, v.issues...)
			if v.recommendation != "" {
				result.Recommendations = append(result.Recommendations, v.recommendation)
			}
		}
		result.Details.Checks = append(result.Details.Checks, outcome)
	}

	result.Details.Executed = len(verdicts)
	result.Score = valueobject.ClampScore(float64(points))
	result.Passed = result.Score >= EvidencePassScore && len(result.Issues) == 0
	return result
}

func (g *EvidenceQualityGate) checkScreenshots(shots []entity.Screenshot) categoryVerdict {
	v := categoryVerdict{
		name:           CheckScreenshots,
		weight:         weightScreenshots,
		recommendation: fmt.Sprintf("Capture screenshots at %dx%d or higher with quality >= %.1f", g.thresholds.MinWidth, g.thresholds.MinHeight, g.thresholds.MinScreenshotQuality),
	}
	if len(shots) == 0 {
		v.issues = []string{"No screenshots provided"}
		return v
	}

	valid := 0
	for _, s := range shots {
		if s.Width >= g.thresholds.MinWidth && s.Height >= g.thresholds.MinHeight && s.Quality >= g.thresholds.MinScreenshotQuality {
			valid++
		}
	}
	v.value = valueobject.Percent(valid, len(shots))
	if v.value < g.thresholds.MinScreenshotPassRate {
		v.issues = []string{fmt.Sprintf("Screenshot pass rate %.1f%% is below the required %.1f%%", v.value, g.thresholds.MinScreenshotPassRate)}
		return v
	}
	v.passed = true
	return v
}

func (g *EvidenceQualityGate) checkPerformance(m *entity.PerformanceMetrics) categoryVerdict {
	v := categoryVerdict{
		name:           CheckPerformance,
		weight:         weightPerformance,
		recommendation: "Optimize page load, LCP, FID and layout stability before deploying",
	}
	if m == nil {
		v.issues = []string{"Performance metrics missing"}
		return v
	}

	t := g.thresholds
	if m.LoadTimeMs > t.MaxLoadTimeMs {
		v.issues = append(v.issues, fmt.Sprintf("Load time %.0fms exceeds %.0fms", m.LoadTimeMs, t.MaxLoadTimeMs))
	}
	if m.LCPMs > t.MaxLCPMs {
		v.issues = append(v.issues, fmt.Sprintf("LCP %.0fms exceeds %.0fms", m.LCPMs, t.MaxLCPMs))
	}
	if m.FIDMs > t.MaxFIDMs {
		v.issues = append(v.issues, fmt.Sprintf("FID %.0fms exceeds %.0fms", m.FIDMs, t.MaxFIDMs))
	}
	if m.CLS > t.MaxCLS {
		v.issues = append(v.issues, fmt.Sprintf("CLS %.3f exceeds %.3f", m.CLS, t.MaxCLS))
	}
	if m.CompositeScore < t.MinCompositeScore {
		v.issues = append(v.issues, fmt.Sprintf("Performance score %.1f%% is below the required %.1f%%", m.CompositeScore, t.MinCompositeScore))
	}
	v.value = m.CompositeScore
	v.passed = len(v.issues) == 0
	return v
}

func (g *EvidenceQualityGate) checkTests(results []entity.TestResult) categoryVerdict {
	v := categoryVerdict{
		name:           CheckTestResults,
		weight:         weightTests,
		recommendation: "Fix failing functional tests",
	}
	passed := 0
	for _, r := range results {
		if r.Passed {
			passed++
		}
	}
	v.value = valueobject.Percent(passed, len(results))
	if len(results) == 0 || v.value < g.thresholds.MinTestPassRate {
		v.issues = []string{fmt.Sprintf("Test pass rate %.1f%% is below the required %.1f%%", v.value, g.thresholds.MinTestPassRate)}
		return v
	}
	v.passed = true
	return v
}

func (g *EvidenceQualityGate) checkJourney(steps []entity.UserJourneyEvidence) categoryVerdict {
	v := categoryVerdict{
		name:           CheckUserJourney,
		weight:         weightJourney,
		recommendation: "Investigate failing user journey steps",
	}
	ok := 0
	for _, s := range steps {
		if s.Success {
			ok++
		}
	}
	v.value = valueobject.Percent(ok, len(steps))
	if len(steps) == 0 || v.value < g.thresholds.MinJourneySuccessRate {
		v.issues = []string{fmt.Sprintf("User journey success rate %.1f%% is below the required %.1f%%", v.value, g.thresholds.MinJourneySuccessRate)}
		return v
	}
	v.passed = true
	return v
}

func (g *EvidenceQualityGate) checkBrowsers(reports []entity.BrowserCompatibilityReport) categoryVerdict {
	v := categoryVerdict{
		name:           CheckBrowsers,
		weight:         weightBrowser,
		recommendation: "Run the compatibility suite on " + strings.Join(g.thresholds.RequiredBrowsers, ", "),
	}

	tested := make(map[string]bool, len(reports))
	total, passed := 0, 0
	for _, r := range reports {
		if r.Tested {
			tested[strings.ToLower(r.Browser)] = true
		}
		total += r.TotalTests
		passed += r.PassedTests
	}

	var missing []string
	for _, b := range g.thresholds.RequiredBrowsers {
		if !tested[b] {
			missing = append(missing, b)
		}
	}
	if len(missing) > 0 {
		v.issues = append(v.issues, "Browser compatibility not verified for: "+strings.Join(missing, ", "))
	}

	v.value = valueobject.Percent(passed, total)
	if v.value < g.thresholds.MinBrowserPassRate {
		v.issues = append(v.issues, fmt.Sprintf("Browser compatibility pass rate %.1f%% is below the required %.1f%%", v.value, g.thresholds.MinBrowserPassRate))
	}
	v.passed = len(v.issues) == 0
	return v
}
