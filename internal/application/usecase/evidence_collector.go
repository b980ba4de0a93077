package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dreschagin/quality-gate/internal/application/port"
	"github.com/dreschagin/quality-gate/internal/domain/entity"
	"github.com/dreschagin/quality-gate/internal/metrics"
	"github.com/dreschagin/quality-gate/pkg/apperror"
	"github.com/dreschagin/quality-gate/pkg/logger"
	"github.com/google/uuid"
)

// LatestEvidenceCacheKey - ключ последнего пакета в кэше
const LatestEvidenceCacheKey = "evidence:latest"

const (
	taskScreenshots = "screenshots"
	taskPerformance = "performance"
	taskTests       = "functional_tests"
	taskJourney     = "user_journey"
	taskBrowsers    = "browser_compatibility"
	taskStorage     = "storage"

	storeTimeout = 10 * time.Second
)

type EvidenceCollectorConfig struct {
	// Timeout ограничивает весь сбор; ноль - без ограничения.
	Timeout time.Duration
}

// EvidenceCollector собирает пакет доказательств из провайдера
type EvidenceCollector struct {
	provider port.EvidenceProvider
	storage  port.EvidenceStorage
	cache    port.Cache
	metrics  *metrics.Metrics
	cfg      EvidenceCollectorConfig
	logger   *logger.Logger

	mu     sync.Mutex
	flight *collectionFlight

	latestMu sync.RWMutex
	latest   *entity.EvidencePackage
}

// NewEvidenceCollector создает коллектор. cache и m могут быть nil.
func NewEvidenceCollector(
	provider port.EvidenceProvider,
	storage port.EvidenceStorage,
	cache port.Cache,
	m *metrics.Metrics,
	cfg EvidenceCollectorConfig,
	logger *logger.Logger,
) *EvidenceCollector {
	return &EvidenceCollector{
		provider: provider,
		storage:  storage,
		cache:    cache,
		metrics:  m,
		cfg:      cfg,
		logger:   logger,
	}
}

// collectionFlight - текущий сбор; done закрывается после записи pkg.
// Сбор идет на контексте, отвязанном от вызывающих, и отменяется,
// только когда его перестали ждать все участники.
type collectionFlight struct {
	done    chan struct{}
	pkg     *entity.EvidencePackage
	cancel  context.CancelFunc
	waiters int
}

// partialPackage accumulates task results until sealed.
type partialPackage struct {
	mu     sync.Mutex
	sealed bool
	pkg    entity.EvidencePackage
	done   map[string]bool
	errs   map[string]string
}

func (p *partialPackage) apply(task string, err error, fn func(pkg *entity.EvidencePackage)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sealed {
		return
	}
	p.done[task] = true
	if err != nil {
		p.errs[task] = err.Error()
		return
	}
	fn(&p.pkg)
}

// seal freezes the package; unfinished tasks are recorded as errors.
func (p *partialPackage) seal(tasks []string, reason string) entity.EvidencePackage {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sealed = true
	for _, task := range tasks {
		if !p.done[task] {
			p.errs[task] = reason
		}
	}
	pkg := p.pkg
	if len(p.errs) > 0 {
		pkg.CollectionErrors = make(map[string]string, len(p.errs))
		for k, v := range p.errs {
			pkg.CollectionErrors[k] = v
		}
	}
	return pkg
}

// CollectEvidencePackage запускает пять задач сбора параллельно.
// Упавшая задача дает пустой результат, а не ошибку всего сбора.
// Пока идет другой сбор, вызов отклоняется с ErrCollectionInProgress.
func (c *EvidenceCollector) CollectEvidencePackage(ctx context.Context) (*entity.EvidencePackage, error) {
	c.mu.Lock()
	if c.flight != nil {
		c.mu.Unlock()
		return nil, apperror.New("EvidenceCollector.CollectEvidencePackage", "collection rejected", apperror.ErrCollectionInProgress)
	}
	flight := c.beginLocked(ctx)
	c.mu.Unlock()

	return c.wait(ctx, flight, "EvidenceCollector.CollectEvidencePackage")
}

// CollectOrJoin собирает пакет, а если сбор уже идет, дожидается его и
// возвращает его пакет. Отмена контекста того, кто начал сбор, не прерывает
// сбор, пока его ждут другие.
func (c *EvidenceCollector) CollectOrJoin(ctx context.Context) (*entity.EvidencePackage, error) {
	c.mu.Lock()
	flight := c.flight
	if flight != nil {
		flight.waiters++
		c.logger.Info("Evidence collection already running, waiting for its package")
	} else {
		flight = c.beginLocked(ctx)
	}
	c.mu.Unlock()

	return c.wait(ctx, flight, "EvidenceCollector.CollectOrJoin")
}

// beginLocked стартует сбор; вызывается под c.mu.
func (c *EvidenceCollector) beginLocked(ctx context.Context) *collectionFlight {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	flight := &collectionFlight{done: make(chan struct{}), cancel: cancel, waiters: 1}
	c.flight = flight
	go c.run(runCtx, flight)
	return flight
}

func (c *EvidenceCollector) wait(ctx context.Context, flight *collectionFlight, op string) (*entity.EvidencePackage, error) {
	select {
	case <-flight.done:
		if flight.pkg == nil {
			return nil, apperror.New(op, "running collection produced no package", apperror.ErrCollectionInProgress)
		}
		pkg := *flight.pkg
		return &pkg, nil
	case <-ctx.Done():
		c.leave(flight)
		return nil, apperror.New(op, "wait for evidence collection", ctx.Err())
	}
}

// leave снимает участника; последний ушедший отменяет сбор и освобождает слот.
func (c *EvidenceCollector) leave(flight *collectionFlight) {
	c.mu.Lock()
	defer c.mu.Unlock()
	flight.waiters--
	if flight.waiters > 0 {
		return
	}
	flight.cancel()
	if c.flight == flight {
		c.flight = nil
	}
}

func (c *EvidenceCollector) run(ctx context.Context, flight *collectionFlight) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Evidence collection panicked", fmt.Errorf("panic: %v", r))
		}
		c.mu.Lock()
		if c.flight == flight {
			c.flight = nil
		}
		c.mu.Unlock()
		flight.cancel()
		close(flight.done)
	}()

	pkg := c.collect(ctx)
	flight.pkg = &pkg
}

func (c *EvidenceCollector) collect(ctx context.Context) entity.EvidencePackage {
	startedAt := time.Now()
	runCtx := ctx
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	partial := &partialPackage{
		pkg: entity.EvidencePackage{
			Screenshots:          []entity.Screenshot{},
			TestResults:          []entity.TestResult{},
			UserJourneyProof:     []entity.UserJourneyEvidence{},
			BrowserCompatibility: []entity.BrowserCompatibilityReport{},
		},
		done: make(map[string]bool),
		errs: make(map[string]string),
	}

	tasks := map[string]func(ctx context.Context) error{
		taskScreenshots: func(ctx context.Context) error {
			shots, err := c.provider.CaptureScreenshots(ctx)
			partial.apply(taskScreenshots, err, func(p *entity.EvidencePackage) { p.Screenshots = nonNil(shots) })
			return err
		},
		taskPerformance: func(ctx context.Context) error {
			perf, err := c.provider.MeasurePerformance(ctx)
			partial.apply(taskPerformance, err, func(p *entity.EvidencePackage) { p.PerformanceMetrics = perf })
			return err
		},
		taskTests: func(ctx context.Context) error {
			results, err := c.provider.RunFunctionalTests(ctx)
			partial.apply(taskTests, err, func(p *entity.EvidencePackage) { p.TestResults = nonNil(results) })
			return err
		},
		taskJourney: func(ctx context.Context) error {
			steps, err := c.provider.ReplayUserJourney(ctx)
			partial.apply(taskJourney, err, func(p *entity.EvidencePackage) { p.UserJourneyProof = nonNil(steps) })
			return err
		},
		taskBrowsers: func(ctx context.Context) error {
			reports, err := c.provider.CheckBrowserCompatibility(ctx)
			partial.apply(taskBrowsers, err, func(p *entity.EvidencePackage) { p.BrowserCompatibility = nonNil(reports) })
			return err
		},
	}
	names := []string{taskScreenshots, taskPerformance, taskTests, taskJourney, taskBrowsers}

	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(name string, task func(ctx context.Context) error) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					partial.apply(name, fmt.Errorf("panic: %v", r), nil)
				}
			}()
			if err := task(runCtx); err != nil {
				c.logger.Warn("Evidence task failed", "task", name, "error", err.Error())
			}
		}(name, tasks[name])
	}

	allDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(allDone)
	}()

	reason := ""
	select {
	case <-allDone:
	case <-runCtx.Done():
		reason = "collection deadline exceeded: " + runCtx.Err().Error()
		c.logger.Warn("Evidence collection hit deadline", "timeout", c.cfg.Timeout.String())
	}

	pkg := partial.seal(names, reason)
	pkg.ID = uuid.New().String()
	pkg.CollectedAt = startedAt
	pkg.CollectionDuration = time.Since(startedAt)

	c.logger.Info("Evidence collection completed",
		"duration", pkg.CollectionDuration.String(),
		"screenshots", len(pkg.Screenshots),
		"tests", len(pkg.TestResults),
		"failed_tasks", len(pkg.CollectionErrors),
	)

	c.persist(&pkg)

	if len(pkg.CollectionErrors) > 0 {
		c.metrics.IncEvidenceCollection(metrics.OutcomeFailure)
	} else {
		c.metrics.IncEvidenceCollection(metrics.OutcomeSuccess)
	}

	c.latestMu.Lock()
	c.latest = &pkg
	c.latestMu.Unlock()

	return pkg
}

// persist stores the package and caches it as latest; failures are recorded, not returned.
func (c *EvidenceCollector) persist(pkg *entity.EvidencePackage) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if c.storage != nil {
		if err := c.storage.Store(ctx, pkg.Key(), pkg); err != nil {
			c.logger.Error("Failed to persist evidence package", err, "key", pkg.Key())
			if pkg.CollectionErrors == nil {
				pkg.CollectionErrors = make(map[string]string)
			}
			pkg.CollectionErrors[taskStorage] = err.Error()
		}
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, LatestEvidenceCacheKey, pkg); err != nil {
			c.logger.Warn("Failed to cache latest evidence package", "error", err.Error())
		}
	}
}

func (c *EvidenceCollector) IsCollecting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flight != nil
}

// LatestPackage возвращает последний пакет: из памяти, затем из кэша.
func (c *EvidenceCollector) LatestPackage(ctx context.Context) (*entity.EvidencePackage, error) {
	c.latestMu.RLock()
	latest := c.latest
	c.latestMu.RUnlock()
	if latest != nil {
		pkg := *latest
		return &pkg, nil
	}

	if c.cache == nil {
		return nil, apperror.ErrNotFound
	}
	var pkg entity.EvidencePackage
	if err := c.cache.Get(ctx, LatestEvidenceCacheKey, &pkg); err != nil {
		return nil, fmt.Errorf("latest evidence package: %w", errors.Join(apperror.ErrNotFound, err))
	}
	return &pkg, nil
}

// Retrieve читает пакет по ключу (ISO-время сбора).
func (c *EvidenceCollector) Retrieve(ctx context.Context, key string) (*entity.EvidencePackage, error) {
	if c.storage == nil {
		return nil, apperror.ErrNotFound
	}
	pkg, err := c.storage.Retrieve(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("retrieve evidence %s: %w", key, err)
	}
	if pkg == nil {
		return nil, apperror.ErrNotFound
	}
	return pkg, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
