package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dreschagin/quality-gate/internal/application/port"
	"github.com/dreschagin/quality-gate/internal/domain/entity"
	"github.com/dreschagin/quality-gate/internal/domain/service"
	"github.com/dreschagin/quality-gate/internal/domain/valueobject"
	"github.com/dreschagin/quality-gate/internal/metrics"
	"github.com/dreschagin/quality-gate/pkg/apperror"
	"github.com/dreschagin/quality-gate/pkg/history"
	"github.com/dreschagin/quality-gate/pkg/logger"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	defaultValidationTimeout = 60 * time.Second
	defaultHealthWait        = 3 * time.Second
	defaultAttemptHistory    = 50
	sideEffectTimeout        = 10 * time.Second
)

// EvidenceSource - источник свежего пакета доказательств. Уже идущий сбор
// (например, из полной проверки) не отклоняет валидацию: она ждет его пакет.
type EvidenceSource interface {
	CollectOrJoin(ctx context.Context) (*entity.EvidencePackage, error)
}

// EvidenceValidator - оценка пакета доказательств (EvidenceQualityGate)
type EvidenceValidator interface {
	ValidateEvidence(pkg *entity.EvidencePackage) entity.QualityGateResult
}

// FunctionalityValidator - функциональный гейт
type FunctionalityValidator interface {
	ValidateFunctionality(ctx context.Context) entity.QualityGateResult
}

// HealthSource - текущее здоровье системы (HealthMonitoringSystem)
type HealthSource interface {
	GetCurrentHealthStatus() *entity.HealthStatus
	IsMonitoring() bool
	StartMonitoring()
	AwaitStatus(ctx context.Context, wait time.Duration) *entity.HealthStatus
}

// AlertTrigger - приемник алертов (AlertSystem)
type AlertTrigger interface {
	TriggerAlert(ctx context.Context, alert entity.Alert) error
}

type DeploymentGateConfig struct {
	Policy                    service.PolicyConfig
	EvidenceValidationEnabled bool
	Timeout                   time.Duration
	HealthWait                time.Duration
	HistorySize               int
}

// DeploymentGateDeps - зависимости DeploymentGateSystem. Repository, Publisher,
// Notifier, Metrics и Observability необязательны.
type DeploymentGateDeps struct {
	Evidence      EvidenceSource
	EvidenceGate  EvidenceValidator
	Functionality FunctionalityValidator
	Health        HealthSource
	Alerts        AlertTrigger
	Repository    port.DeploymentAttemptRepository
	Publisher     port.EventPublisher
	Notifier      port.NotificationService
	Metrics       *metrics.Metrics
	Observability port.MetricsPublisher
}

// DeploymentGateSystem принимает решение о деплое. Одновременно выполняется
// не более одной валидации.
type DeploymentGateSystem struct {
	deps   DeploymentGateDeps
	cfg    DeploymentGateConfig
	policy *service.DeploymentPolicy
	logger *logger.Logger

	mu         sync.Mutex
	inProgress bool

	attempts *history.Buffer[entity.DeploymentAttempt]
}

func NewDeploymentGateSystem(deps DeploymentGateDeps, cfg DeploymentGateConfig, logger *logger.Logger) *DeploymentGateSystem {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultValidationTimeout
	}
	if cfg.HealthWait <= 0 {
		cfg.HealthWait = defaultHealthWait
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultAttemptHistory
	}
	if deps.EvidenceGate == nil {
		deps.EvidenceGate = service.NewEvidenceQualityGate(service.DefaultEvidenceThresholds())
	}

	return &DeploymentGateSystem{
		deps:     deps,
		cfg:      cfg,
		policy:   service.NewDeploymentPolicy(cfg.Policy),
		logger:   logger,
		attempts: history.New[entity.DeploymentAttempt](cfg.HistorySize),
	}
}

// gateResults collects gate outputs until sealed by the deadline.
type gateResults struct {
	mu            sync.Mutex
	sealed        bool
	evidence      *entity.QualityGateResult
	evidenceKey   string
	functionality *entity.QualityGateResult
	health        *entity.HealthStatus
	failures      []string
}

func (r *gateResults) update(fn func(r *gateResults)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.sealed {
		fn(r)
	}
}

func (r *gateResults) seal() service.GateInputs {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
	return service.GateInputs{
		Evidence:      r.evidence,
		Functionality: r.functionality,
		Health:        r.health,
		Failures:      append([]string(nil), r.failures...),
	}
}

// ValidateDeployment прогоняет гейты параллельно под общим таймаутом и выносит решение.
// При таймауте возвращает заблокированный результат вместе с ErrValidationTimeout.
func (d *DeploymentGateSystem) ValidateDeployment(ctx context.Context) (*entity.DeploymentValidationResult, error) {
	d.mu.Lock()
	if d.inProgress {
		d.mu.Unlock()
		return nil, apperror.New("DeploymentGateSystem.ValidateDeployment", "validation rejected", apperror.ErrValidationInProgress)
	}
	d.inProgress = true
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.inProgress = false
		d.mu.Unlock()
	}()

	startedAt := time.Now()
	d.logger.Info("Deployment validation started", "timeout", d.cfg.Timeout.String())

	runCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	results := &gateResults{}

	// 1-2. Гейты параллельно под общим таймаутом
	var g errgroup.Group
	if d.cfg.EvidenceValidationEnabled && d.deps.Evidence != nil {
		g.Go(func() error {
			d.runEvidenceGate(runCtx, results)
			return nil
		})
	}
	if d.deps.Functionality != nil {
		g.Go(func() error {
			r := d.deps.Functionality.ValidateFunctionality(runCtx)
			results.update(func(res *gateResults) { res.functionality = &r })
			return nil
		})
	}
	if d.deps.Health != nil {
		g.Go(func() error {
			status := d.currentHealth(runCtx)
			results.update(func(res *gateResults) { res.health = status })
			return nil
		})
	}

	finished := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-runCtx.Done():
	}
	if err := runCtx.Err(); err != nil {
		return d.fail(ctx, err, results.seal(), startedAt)
	}

	// 3-4. Агрегация и решение
	inputs := results.seal()
	decision := d.policy.Decide(inputs)
	result := d.buildResult(inputs, decision, startedAt)
	result.EvidenceKey = results.evidenceKey

	// 5. Запись попытки и алерт
	attempt := d.record(result)
	d.announce(result, attempt)

	outcome := metrics.OutcomeApproved
	if !result.Approved {
		outcome = metrics.OutcomeBlocked
	}
	d.deps.Metrics.ObserveValidation(outcome, result.Duration)

	d.logger.Info("Deployment validation completed",
		"approved", result.Approved,
		"score", fmt.Sprintf("%.1f", result.OverallScore),
		"critical_issues", len(result.CriticalIssues),
		"duration", result.Duration.String(),
	)

	return result, nil
}

func (d *DeploymentGateSystem) runEvidenceGate(ctx context.Context, results *gateResults) {
	pkg, err := d.deps.Evidence.CollectOrJoin(ctx)
	if err != nil {
		d.logger.Error("Evidence collection failed", err)
		results.update(func(res *gateResults) {
			res.failures = append(res.failures, "Evidence collection failed: "+err.Error())
		})
		return
	}
	r := d.deps.EvidenceGate.ValidateEvidence(pkg)
	results.update(func(res *gateResults) {
		res.evidence = &r
		res.evidenceKey = pkg.Key()
	})
}

// currentHealth читает статус; без статуса запускает мониторинг и ждет недолго.
func (d *DeploymentGateSystem) currentHealth(ctx context.Context) *entity.HealthStatus {
	if status := d.deps.Health.GetCurrentHealthStatus(); status != nil {
		return status
	}
	if !d.deps.Health.IsMonitoring() {
		d.deps.Health.StartMonitoring()
	}
	return d.deps.Health.AwaitStatus(ctx, d.cfg.HealthWait)
}

func (d *DeploymentGateSystem) buildResult(inputs service.GateInputs, decision service.Decision, startedAt time.Time) *entity.DeploymentValidationResult {
	return &entity.DeploymentValidationResult{
		Approved:        decision.Approved,
		OverallScore:    decision.OverallScore,
		Evidence:        inputs.Evidence,
		Functionality:   inputs.Functionality,
		Health:          inputs.Health,
		CriticalIssues:  decision.CriticalIssues,
		Warnings:        decision.Warnings,
		Recommendations: decision.Recommendations,
		BlockedReason:   decision.BlockedReason,
		ValidatedAt:     startedAt,
		Duration:        time.Since(startedAt),
	}
}

// fail builds a blocked result for an aborted run. Only a timeout is recorded
// and announced: a run cancelled by the caller is not an attempt.
func (d *DeploymentGateSystem) fail(parent context.Context, cause error, partial service.GateInputs, startedAt time.Time) (*entity.DeploymentValidationResult, error) {
	timedOut := errors.Is(cause, context.DeadlineExceeded) && parent.Err() == nil

	reason := "Deployment validation cancelled"
	if timedOut {
		reason = fmt.Sprintf("Deployment validation timed out after %s", d.cfg.Timeout)
	}
	partial.Failures = append(partial.Failures, reason)

	decision := d.policy.Decide(partial)
	result := d.buildResult(partial, decision, startedAt)
	result.Approved = false
	result.TimedOut = timedOut
	result.BlockedReason = reason

	if !timedOut {
		d.deps.Metrics.ObserveValidation(metrics.OutcomeError, result.Duration)
		d.logger.Warn("Deployment validation cancelled by caller", "error", cause.Error())
		return result, apperror.New("DeploymentGateSystem.ValidateDeployment", reason, cause)
	}

	attempt := d.record(result)

	alert := entity.NewAlert(entity.AlertDeploymentValidationFailed, valueobject.SeverityCritical, reason, entity.AlertDetails{
		AttemptID:      attempt.ID,
		Score:          result.OverallScore,
		CriticalIssues: result.CriticalIssues,
		Error:          cause.Error(),
	})
	alert.Source = "deployment-gate"
	d.trigger(alert)

	d.deps.Metrics.ObserveValidation(metrics.OutcomeTimeout, result.Duration)
	d.logger.Error("Deployment validation aborted", cause, "attempt_id", attempt.ID)

	return result, apperror.New("DeploymentGateSystem.ValidateDeployment", reason, apperror.ErrValidationTimeout)
}

func (d *DeploymentGateSystem) record(result *entity.DeploymentValidationResult) entity.DeploymentAttempt {
	attempt := entity.DeploymentAttempt{
		ID:            uuid.New().String(),
		Timestamp:     result.ValidatedAt,
		Approved:      result.Approved,
		Result:        result,
		Duration:      result.Duration,
		BlockedReason: result.BlockedReason,
	}
	d.attempts.Append(attempt)

	if d.deps.Repository != nil {
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()
		if err := d.deps.Repository.Save(ctx, attempt); err != nil {
			d.logger.Error("Failed to persist deployment attempt", err, "attempt_id", attempt.ID)
		}
	}
	return attempt
}

// announce fires the decision alert and publishes the decision event.
func (d *DeploymentGateSystem) announce(result *entity.DeploymentValidationResult, attempt entity.DeploymentAttempt) {
	details := entity.AlertDetails{
		Approved:       result.Approved,
		AttemptID:      attempt.ID,
		Score:          result.OverallScore,
		CriticalIssues: result.CriticalIssues,
		Warnings:       result.Warnings,
	}

	var alert entity.Alert
	subject := port.SubjectDeploymentApproved
	if result.Approved {
		alert = entity.NewAlert(entity.AlertDeploymentApproved, valueobject.SeverityLow,
			fmt.Sprintf("Deployment approved (score %.1f)", result.OverallScore), details)
	} else {
		subject = port.SubjectDeploymentBlocked
		alert = entity.NewAlert(entity.AlertDeploymentBlocked, valueobject.SeverityHigh,
			fmt.Sprintf("Deployment blocked: %s", result.BlockedReason), details)
	}
	alert.Source = "deployment-gate"
	d.trigger(alert)

	if result.Evidence != nil {
		d.deps.Metrics.SetGateScore(entity.GateEvidence, result.Evidence.Score)
	}
	if result.Functionality != nil {
		d.deps.Metrics.SetGateScore(entity.GateFunctionality, result.Functionality.Score)
	}
	if result.Health != nil {
		d.deps.Metrics.SetGateScore(entity.GateHealth, result.Health.Score)
	}

	if d.deps.Notifier != nil {
		d.deps.Notifier.BroadcastDeployment(*result)
	}

	d.publishScores(result)

	if d.deps.Publisher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()
		if err := d.deps.Publisher.PublishEvent(ctx, subject, attempt); err != nil {
			d.logger.Warn("Failed to publish deployment decision", "subject", subject, "error", err.Error())
		}
	}
}

// publishScores отправляет оценки гейтов во внешнюю систему метрик.
func (d *DeploymentGateSystem) publishScores(result *entity.DeploymentValidationResult) {
	if d.deps.Observability == nil {
		return
	}

	decision := "blocked"
	if result.Approved {
		decision = "approved"
	}
	point := func(name string, value float64) port.GateMetric {
		return port.GateMetric{
			Name:       name,
			Value:      value,
			Unit:       "%",
			Dimensions: map[string]string{"Decision": decision},
			Timestamp:  result.ValidatedAt,
		}
	}

	batch := []port.GateMetric{point("overall_score", result.OverallScore)}
	if result.Evidence != nil {
		batch = append(batch, point(entity.GateEvidence+"_score", result.Evidence.Score))
	}
	if result.Functionality != nil {
		batch = append(batch, point(entity.GateFunctionality+"_score", result.Functionality.Score))
	}
	if result.Health != nil {
		batch = append(batch, point(entity.GateHealth+"_score", result.Health.Score))
	}
	approved := 0.0
	if result.Approved {
		approved = 1
	}
	batch = append(batch, port.GateMetric{Name: "deployment_approved", Value: approved, Unit: "count", Timestamp: result.ValidatedAt})

	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()
	if err := d.deps.Observability.PublishBatch(ctx, batch); err != nil {
		d.logger.Warn("Failed to publish gate metrics", "error", err.Error())
	}
}

func (d *DeploymentGateSystem) trigger(alert entity.Alert) {
	if d.deps.Alerts == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()
	if err := d.deps.Alerts.TriggerAlert(ctx, alert); err != nil {
		d.logger.Error("Failed to trigger deployment alert", err, "type", alert.Type)
	}
}

func (d *DeploymentGateSystem) IsValidationInProgress() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inProgress
}

// Attempts возвращает попытки от старых к новым.
func (d *DeploymentGateSystem) Attempts() []entity.DeploymentAttempt {
	return d.attempts.Items()
}

func (d *DeploymentGateSystem) Config() DeploymentGateConfig {
	return d.cfg
}

// DeploymentStats summarises the attempt history.
type DeploymentStats struct {
	Total           int                       `json:"total"`
	Approved        int                       `json:"approved"`
	Blocked         int                       `json:"blocked"`
	TimedOut        int                       `json:"timed_out"`
	ApprovalRate    float64                   `json:"approval_rate"`
	AverageScore    float64                   `json:"average_score"`
	AverageDuration time.Duration             `json:"average_duration"`
	LastAttempt     *entity.DeploymentAttempt `json:"last_attempt,omitempty"`
}

func (d *DeploymentGateSystem) Stats() DeploymentStats {
	attempts := d.attempts.Items()
	stats := DeploymentStats{Total: len(attempts)}
	if len(attempts) == 0 {
		return stats
	}

	var scoreSum float64
	var durationSum time.Duration
	for _, a := range attempts {
		if a.Approved {
			stats.Approved++
		} else {
			stats.Blocked++
		}
		if a.Result != nil {
			scoreSum += a.Result.OverallScore
			if a.Result.TimedOut {
				stats.TimedOut++
			}
		}
		durationSum += a.Duration
	}

	stats.ApprovalRate = valueobject.Percent(stats.Approved, stats.Total)
	stats.AverageScore = scoreSum / float64(stats.Total)
	stats.AverageDuration = durationSum / time.Duration(stats.Total)
	last := attempts[len(attempts)-1]
	stats.LastAttempt = &last
	return stats
}
