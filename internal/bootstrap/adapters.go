package bootstrap

import (
	"context"
	"fmt"
	"net"

	"github.com/dreschagin/quality-gate/internal/application/port"
	redisCache "github.com/dreschagin/quality-gate/internal/infrastructure/cache/redis"
	natsInfra "github.com/dreschagin/quality-gate/internal/infrastructure/messaging/nats"
	"github.com/dreschagin/quality-gate/internal/infrastructure/observability/cloudwatch"
	dynamodbRepo "github.com/dreschagin/quality-gate/internal/infrastructure/persistence/dynamodb"
	"github.com/dreschagin/quality-gate/internal/infrastructure/persistence/postgres"
	"github.com/dreschagin/quality-gate/internal/infrastructure/storage/memory"
	s3storage "github.com/dreschagin/quality-gate/internal/infrastructure/storage/s3"
	"github.com/dreschagin/quality-gate/internal/retention"
)

// initCloudWatch поднимает публикацию метрик и логов. Ошибка инициализации фатальна.
func (a *App) initCloudWatch(ctx context.Context) (port.MetricsPublisher, error) {
	cw := a.Config.CloudWatch

	if cw.LogsEnabled {
		logs, err := cloudwatch.NewLogsPublisher(ctx, cloudwatch.LogsPublisherConfig{
			LogGroupName:    cw.LogGroupName,
			LogStreamName:   cw.LogStreamName,
			Region:          cw.Region,
			Endpoint:        cw.Endpoint,
			AccessKeyID:     cw.AccessKeyID,
			SecretAccessKey: cw.SecretAccessKey,
			BufferSize:      cw.LogsBufferSize,
			FlushInterval:   cw.FlushInterval,
			AutoCreate:      true,
		})
		if err != nil {
			return nil, fmt.Errorf("init cloudwatch logs publisher: %w", err)
		}
		var logPublisher port.LogPublisher = logs
		a.Logger.SetLogPublisher(logPublisher)
		a.addCloser("cloudwatch logs", func(ctx context.Context) error {
			a.Logger.SetLogPublisher(nil)
			return logs.Close(ctx)
		})
		a.Logger.Info("CloudWatch logs publisher initialized", "group", cw.LogGroupName)
	} else {
		a.Logger.Debug("CloudWatch logs publishing is disabled")
	}

	if !cw.MetricsEnabled {
		a.Logger.Debug("CloudWatch metrics publishing is disabled")
		return nil, nil
	}

	publisher, err := cloudwatch.NewMetricsPublisher(ctx, cloudwatch.MetricsPublisherConfig{
		Namespace:         cw.MetricsNamespace,
		Region:            cw.Region,
		Endpoint:          cw.Endpoint,
		AccessKeyID:       cw.AccessKeyID,
		SecretAccessKey:   cw.SecretAccessKey,
		DefaultDimensions: cw.MetricsDimensions,
		BufferSize:        cw.MetricsBufferSize,
		FlushInterval:     cw.FlushInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("init cloudwatch metrics publisher: %w", err)
	}
	a.addCloser("cloudwatch metrics", publisher.Close)
	a.Logger.Info("CloudWatch metrics publisher initialized", "namespace", cw.MetricsNamespace)
	return publisher, nil
}

// initNATS: брокер необязателен, при ошибке подключения работаем без событий
func (a *App) initNATS() port.EventPublisher {
	if !a.Config.NATS.Enabled {
		a.Logger.Debug("NATS event publishing is disabled")
		return nil
	}

	publisher, err := natsInfra.NewNATSPublisher(a.Config.NATS.URL, a.Config.NATS.SubjectPrefix, a.Logger)
	if err != nil {
		a.Logger.Warn("Failed to connect to NATS, continuing without event publishing", "error", err.Error())
		return nil
	}
	a.addCloser("nats", func(context.Context) error { return publisher.Close() })
	a.Logger.Info("NATS event publisher initialized", "url", a.Config.NATS.URL)
	return publisher
}

// initRedis: кэш необязателен
func (a *App) initRedis(ctx context.Context) port.Cache {
	rc := a.Config.Redis
	if !rc.Enabled {
		return nil
	}

	cache, err := redisCache.NewRedisCache(ctx, redisCache.Config{
		Host:         rc.Host,
		Port:         rc.Port,
		Password:     rc.Password,
		DB:           rc.DB,
		TTL:          rc.TTL,
		PoolSize:     rc.PoolSize,
		MinIdleConns: rc.MinIdleConns,
		DialTimeout:  rc.DialTimeout,
		ReadTimeout:  rc.ReadTimeout,
		WriteTimeout: rc.WriteTimeout,
	})
	if err != nil {
		a.Logger.Warn("Failed to connect to Redis, continuing without cache",
			"addr", net.JoinHostPort(rc.Host, rc.Port), "error", err.Error())
		return nil
	}
	a.addCloser("redis", func(context.Context) error { return cache.Close() })
	a.Logger.Info("Redis cache initialized", "addr", net.JoinHostPort(rc.Host, rc.Port))
	return cache
}

func (a *App) initEvidenceStorage(ctx context.Context) (port.EvidenceStorage, error) {
	sc := a.Config.S3
	if !sc.Enabled {
		a.Logger.Warn("S3 storage is disabled, evidence packages are kept in memory")
		return memory.NewEvidenceStorage(), nil
	}

	storage, err := s3storage.NewEvidenceStorage(ctx, s3storage.Config{
		Bucket:          sc.Bucket,
		Region:          sc.Region,
		Endpoint:        sc.Endpoint,
		AccessKeyID:     sc.AccessKeyID,
		SecretAccessKey: sc.SecretAccessKey,
		UsePathStyle:    sc.UsePathStyle,
		KeyPrefix:       sc.KeyPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("init evidence storage: %w", err)
	}
	a.Logger.Info("Evidence storage initialized", "provider", "s3", "bucket", sc.Bucket)
	return storage, nil
}

func (a *App) initAttemptRepository(ctx context.Context) (port.DeploymentAttemptRepository, error) {
	dc := a.Config.Dynamo
	if !dc.Enabled {
		a.Logger.Debug("DynamoDB attempt log is disabled, attempts are kept in memory only")
		return nil, nil
	}

	repo, err := dynamodbRepo.NewAttemptRepository(ctx, dynamodbRepo.Config{
		TableName:       dc.TableAttempts,
		Region:          dc.Region,
		Endpoint:        dc.Endpoint,
		AccessKeyID:     dc.AccessKeyID,
		SecretAccessKey: dc.SecretAccessKey,
		StrongReads:     dc.StrongReads,
		Retention:       dc.Retention,
	})
	if err != nil {
		return nil, fmt.Errorf("init attempt repository: %w", err)
	}
	a.Logger.Info("Deployment attempt repository initialized", "provider", "dynamodb", "table", dc.TableAttempts)
	return repo, nil
}

// initAlertArchive: Postgres, если включен, иначе ограниченный архив в памяти
func (a *App) initAlertArchive(ctx context.Context) (port.AlertRecordStore, error) {
	dbc := a.Config.Database
	if !dbc.Enabled {
		return memory.NewAlertStore(a.Config.Alerts.HistorySize), nil
	}

	db, err := postgres.Open(ctx, dbc.DSN(), dbc.MaxOpenConns, dbc.MaxIdleConns, dbc.ConnMaxLifetime, dbc.ConnMaxIdleTime)
	if err != nil {
		return nil, fmt.Errorf("init alert archive: %w", err)
	}
	a.addCloser("postgres", func(context.Context) error { return db.Close() })

	store := postgres.NewAlertStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("init alert archive schema: %w", err)
	}

	if ac := a.Config.Alerts; ac.Retention > 0 && ac.RetentionInterval > 0 {
		runner := retention.NewRunner("alerts", store, a.Logger, ac.RetentionInterval, ac.Retention)
		if _, err := runner.RunOnce(ctx); err != nil {
			a.Logger.Warn("Initial alert retention cycle failed", "error", err.Error())
		}
		runCtx, stop := context.WithCancel(context.Background())
		go runner.Start(runCtx)
		a.addCloser("alert retention", func(context.Context) error {
			stop()
			return nil
		})
	}

	a.Logger.Info("Alert archive initialized", "provider", "postgres")
	return store, nil
}
