// Package bootstrap собирает компоненты quality gate из конфигурации.
// Используется и HTTP-сервисом, и CLI.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dreschagin/quality-gate/internal/application/alerting"
	"github.com/dreschagin/quality-gate/internal/application/monitoring"
	"github.com/dreschagin/quality-gate/internal/application/port"
	"github.com/dreschagin/quality-gate/internal/application/usecase"
	"github.com/dreschagin/quality-gate/internal/domain/entity"
	"github.com/dreschagin/quality-gate/internal/domain/service"
	"github.com/dreschagin/quality-gate/internal/infrastructure/alertchannel"
	"github.com/dreschagin/quality-gate/internal/infrastructure/evidence/filesystem"
	wsInfra "github.com/dreschagin/quality-gate/internal/infrastructure/notification/websocket"
	"github.com/dreschagin/quality-gate/internal/infrastructure/probe/httpprobe"
	"github.com/dreschagin/quality-gate/internal/infrastructure/probe/system"
	httpInterface "github.com/dreschagin/quality-gate/internal/interfaces/http"
	"github.com/dreschagin/quality-gate/internal/interfaces/http/handler"
	"github.com/dreschagin/quality-gate/internal/interfaces/http/middleware"
	"github.com/dreschagin/quality-gate/internal/metrics"
	"github.com/dreschagin/quality-gate/pkg/config"
	"github.com/dreschagin/quality-gate/pkg/logger"
)

const initTimeout = 30 * time.Second

// App - собранное приложение
type App struct {
	Config   *config.Config
	Logger   *logger.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Hub          *wsInfra.Hub
	Alerts       *alerting.System
	Monitor      *monitoring.Monitor
	Collector    *usecase.EvidenceCollector
	Deployment   *usecase.DeploymentGateSystem
	Orchestrator *usecase.QualityGateOrchestrator

	// Attempts равен nil, если DynamoDB не настроен
	Attempts port.DeploymentAttemptRepository
	// AlertArchive - Postgres или ограниченный архив в памяти
	AlertArchive port.AlertRecordStore

	closers []closer
}

type closer struct {
	name string
	fn   func(ctx context.Context) error
}

// Options управляют тем, что поднимается помимо ядра
type Options struct {
	// Probes подменяют HTTP/system пробы (тесты, CLI без целевого приложения)
	HealthProbes     []port.HealthProbe
	FunctionalProbes []port.FunctionalProbe
	// Provider подменяет filesystem-провайдер доказательств
	Provider port.EvidenceProvider
}

// Build поднимает адаптеры согласно конфигурации и собирает оркестратор.
// При ошибке уже открытые ресурсы закрываются.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger, opts Options) (_ *App, err error) {
	app := &App{Config: cfg, Logger: log}
	defer func() {
		if err != nil {
			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if closeErr := app.Close(closeCtx); closeErr != nil {
				log.Warn("Failed to release resources after init error", "error", closeErr.Error())
			}
		}
	}()

	initCtx, cancel := context.WithTimeout(ctx, initTimeout)
	defer cancel()

	app.Registry = prometheus.NewRegistry()
	app.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if app.Metrics, err = metrics.New(app.Registry); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	// 1. Observability
	observability, err := app.initCloudWatch(initCtx)
	if err != nil {
		return nil, err
	}

	// 2. Инфраструктура
	publisher := app.initNATS()
	cache := app.initRedis(initCtx)

	storage, err := app.initEvidenceStorage(initCtx)
	if err != nil {
		return nil, err
	}
	if app.Attempts, err = app.initAttemptRepository(initCtx); err != nil {
		return nil, err
	}
	if app.AlertArchive, err = app.initAlertArchive(initCtx); err != nil {
		return nil, err
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	app.Hub = wsInfra.NewHub(log)
	go app.Hub.Run(hubCtx)
	app.addCloser("websocket hub", func(context.Context) error {
		stopHub()
		return nil
	})

	// 3. Алерты
	rules, err := loadRules(cfg.Alerts.RulesFile)
	if err != nil {
		return nil, err
	}
	app.Alerts, err = alerting.NewSystem(alerting.Config{
		Rules:       rules,
		HistorySize: cfg.Alerts.HistorySize,
		Metrics:     app.Metrics,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("init alert system: %w", err)
	}
	app.Alerts.RegisterChannel(alertchannel.NewConsole(log))
	app.Alerts.RegisterChannel(alertchannel.NewNotification(app.Hub))
	app.Alerts.RegisterChannel(alertchannel.NewStorage(app.AlertArchive))
	if publisher != nil {
		app.Alerts.RegisterChannel(alertchannel.NewEvent(publisher))
	}

	// 4. Пробы и гейты
	target := httpprobe.NewClient(httpprobe.Target{
		BaseURL:          cfg.Target.BaseURL,
		APIHealthPath:    cfg.Target.APIHealthPath,
		NavigationPaths:  cfg.Target.NavigationPaths,
		JourneyPaths:     cfg.Target.JourneyPaths,
		GenerationPath:   cfg.Target.GenerationPath,
		FormPath:         cfg.Target.FormPath,
		ClientErrorsPath: cfg.Target.ClientErrorsPath,
	}, &http.Client{Transport: http.DefaultTransport})

	healthProbes := opts.HealthProbes
	if healthProbes == nil {
		healthProbes = HealthProbes(cfg, target)
	}
	functionalProbes := opts.FunctionalProbes
	if functionalProbes == nil {
		functionalProbes = httpprobe.FunctionalProbes(target, cfg.Target.ProbeTimeout, cfg.Target.PerformanceBudget)
	}

	app.Monitor = monitoring.NewMonitor(healthProbes, monitoring.Config{
		Interval:     cfg.Health.Interval,
		ProbeTimeout: cfg.Health.ProbeTimeout,
		HistorySize:  cfg.Health.HistorySize,
		Metrics:      app.Metrics,
		Notifier:     app.Hub,
		Alerts:       app.Alerts,
	}, log)
	app.addCloser("health monitor", func(context.Context) error {
		app.Monitor.StopMonitoring()
		return nil
	})

	provider := opts.Provider
	if provider == nil {
		provider = filesystem.NewProvider(cfg.Evidence.Dir)
	}
	app.Collector = usecase.NewEvidenceCollector(provider, storage, cache, app.Metrics,
		usecase.EvidenceCollectorConfig{Timeout: cfg.Evidence.CollectionTimeout}, log)

	functionality := usecase.NewFunctionalityQualityGate(functionalProbes, cfg.Target.ProbeTimeout, log)
	evidenceGate := service.NewEvidenceQualityGate(service.DefaultEvidenceThresholds())

	app.Deployment = usecase.NewDeploymentGateSystem(usecase.DeploymentGateDeps{
		Evidence:      app.Collector,
		EvidenceGate:  evidenceGate,
		Functionality: functionality,
		Health:        app.Monitor,
		Alerts:        app.Alerts,
		Repository:    app.Attempts,
		Publisher:     publisher,
		Notifier:      app.Hub,
		Metrics:       app.Metrics,
		Observability: observability,
	}, usecase.DeploymentGateConfig{
		Policy: service.PolicyConfig{
			EvidenceThreshold:       cfg.Gate.EvidenceThreshold,
			FunctionalityThreshold:  cfg.Gate.FunctionalityThreshold,
			HealthThreshold:         cfg.Gate.HealthThreshold,
			RequireAllGatesPassing:  cfg.Gate.RequireAllGatesPassing,
			BlockOnCriticalFailures: cfg.Gate.BlockOnCriticalFailures,
		},
		EvidenceValidationEnabled: cfg.Gate.EvidenceValidationEnabled,
		Timeout:                   cfg.Gate.ValidationTimeout,
		HealthWait:                cfg.Gate.HealthWait,
		HistorySize:               cfg.Gate.AttemptHistorySize,
	}, log)

	// 5. Фасад: запускает мониторинг
	app.Orchestrator, err = usecase.NewQualityGateOrchestrator(usecase.OrchestratorDeps{
		Collector:     app.Collector,
		EvidenceGate:  evidenceGate,
		Functionality: functionality,
		Monitor:       app.Monitor,
		Alerts:        app.Alerts,
		Deployment:    app.Deployment,
	}, log)
	if err != nil {
		return nil, err
	}
	app.addCloser("orchestrator", app.Orchestrator.Shutdown)

	log.Info("Quality gate assembled",
		"health_probes", len(healthProbes),
		"functional_probes", len(functionalProbes),
		"channels", fmt.Sprint(app.Alerts.Channels()),
	)
	return app, nil
}

// HealthProbes возвращает пробы здоровья в порядке регистрации:
// application-load, api-latency, error-rate, performance-metrics, memory-usage,
// dom-size, console-errors, network-connectivity.
func HealthProbes(cfg *config.Config, target *httpprobe.Client) []port.HealthProbe {
	httpProbes := httpprobe.HealthProbes(target, httpprobe.HealthThresholds{
		APILatencyMs:      cfg.Health.APILatencyMs,
		ErrorRatePercent:  cfg.Health.ErrorRatePercent,
		DOMMaxElements:    cfg.Health.DOMMaxElements,
		ConsoleErrorLimit: cfg.Health.ConsoleErrorLimit,
	})

	address := cfg.Health.NetworkAddress
	if address == "" {
		address = cfg.Target.BaseURL
	}

	probes := make([]port.HealthProbe, 0, len(httpProbes)+3)
	probes = append(probes, httpProbes[:3]...)
	probes = append(probes,
		system.NewPerformanceProbe(cfg.Health.CPUPercent),
		system.NewMemoryProbe(cfg.Health.MemoryPercent),
	)
	probes = append(probes, httpProbes[3:]...)
	probes = append(probes, system.NewNetworkProbe(address))
	return probes
}

// Router собирает HTTP-обработчики поверх App
func (a *App) Router() http.Handler {
	authConfig := middleware.AuthConfig{
		Enabled:     a.Config.Security.AuthEnabled,
		BearerToken: a.Config.Security.AuthToken,
	}

	router := httpInterface.NewRouter(httpInterface.RouterDeps{
		Gate:      handler.NewGateHandler(a.Orchestrator, a.Logger),
		Attempts:  handler.NewAttemptHandler(a.Deployment, a.Attempts, a.Logger),
		Health:    handler.NewHealthHandler(a.Monitor, a.Logger),
		Alerts:    handler.NewAlertHandler(a.Alerts, a.AlertArchive, a.Logger),
		WebSocket: handler.NewWebSocketHandler(a.Hub, a.Config.Security.AllowedOrigins, authConfig, a.Logger),
		Security:  a.Config.Security,
		RateLimit: a.Config.RateLimit,
		Metrics:   a.Metrics,
		Gatherer:  a.Registry,
	}, a.Logger)

	return router.Setup()
}

// Close освобождает ресурсы в обратном порядке создания
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) addCloser(name string, fn func(ctx context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

func loadRules(path string) ([]entity.AlertRule, error) {
	if path == "" {
		return nil, nil
	}
	rules, err := alerting.LoadRulesFile(path)
	if err != nil {
		return nil, fmt.Errorf("load alert rules: %w", err)
	}
	return rules, nil
}
