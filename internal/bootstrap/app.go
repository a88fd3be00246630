// Package bootstrap assembles the engine's components from configuration.
// The server and the syncctl CLI share it so both run the same object graph.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	appintegration "github.com/erp/syncengine/internal/application/integration"
	"github.com/erp/syncengine/internal/domain/integration"
	"github.com/erp/syncengine/internal/infrastructure/cache"
	"github.com/erp/syncengine/internal/infrastructure/config"
	"github.com/erp/syncengine/internal/infrastructure/event"
	"github.com/erp/syncengine/internal/infrastructure/external"
	"github.com/erp/syncengine/internal/infrastructure/persistence"
	"github.com/erp/syncengine/internal/infrastructure/scheduler"
	"github.com/erp/syncengine/internal/infrastructure/telemetry"
)

// Deps are the already opened resources the engine is built on
type Deps struct {
	Logger *zap.Logger
	DB     *gorm.DB
	// Redis is optional; without it locks, cache invalidation and events stay in process
	Redis         *redis.Client
	MeterProvider *telemetry.MeterProvider
	Prometheus    *telemetry.PrometheusCollector
}

// App is the assembled engine
type App struct {
	Config        *config.Config
	Logger        *zap.Logger
	DB            *gorm.DB
	Redis         *redis.Client
	MeterProvider *telemetry.MeterProvider
	Prometheus    *telemetry.PrometheusCollector

	Hub       *event.Hub
	Bus       *event.InMemoryEventBus
	Scheduler *scheduler.Scheduler

	SyncJobs      *appintegration.SyncJobs
	SyncRuns      *appintegration.SyncRunService
	FailedRecords *appintegration.FailedRecordService
	Adjustments   *appintegration.PendingAdjustmentService
	Mappings      *appintegration.MappingService
	Reconciler    *appintegration.StartupReconciler

	mappingCache *cache.InMemoryMappingCache
	invalidator  *cache.RedisMappingInvalidator
	relay        *event.RedisEventRelay

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closers []func(ctx context.Context) error
}

// Build wires repositories, clients and services on top of deps
func Build(ctx context.Context, cfg *config.Config, deps Deps) (*App, error) {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if deps.DB == nil {
		return nil, errors.New("bootstrap: database is required")
	}

	app := &App{
		Config:        cfg,
		Logger:        log,
		DB:            deps.DB,
		Redis:         deps.Redis,
		MeterProvider: deps.MeterProvider,
		Prometheus:    deps.Prometheus,
	}
	if app.MeterProvider == nil {
		mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{Enabled: false}, log)
		if err != nil {
			return nil, err
		}
		app.MeterProvider = mp
	}
	if app.Prometheus == nil {
		app.Prometheus = telemetry.NewPrometheusCollector(false)
	}

	metrics, err := telemetry.NewSyncMetrics(app.MeterProvider, app.Prometheus)
	if err != nil {
		return nil, fmt.Errorf("create sync metrics: %w", err)
	}

	// Repositories
	runRepo := persistence.NewGormSyncRunRepository(deps.DB)
	failedRepo := persistence.NewGormFailedRecordRepository(deps.DB)
	adjustmentRepo := persistence.NewGormPendingAdjustmentRepository(deps.DB)
	mappingRepo := persistence.NewGormMappingRepository(deps.DB)

	// Events: the bus fans out to the SSE hub and, with Redis, to other instances
	serializer := event.NewIntegrationEventSerializer()
	app.Hub = event.NewHub(serializer,
		event.WithHubMaxClients(cfg.Events.SSEMaxClients),
		event.WithHubBufferSize(cfg.Events.SSEBufferSize),
		event.WithHubLogger(log.Named("hub")),
	)
	app.Bus = event.NewInMemoryEventBus(log.Named("events"))
	app.Bus.Subscribe(app.Hub)
	if deps.Redis != nil {
		app.relay = event.NewRedisEventRelay(deps.Redis, serializer,
			event.WithRelayChannel(cfg.Events.RelayChannel),
			event.WithRelayLogger(log.Named("relay")),
		)
		app.Bus.Subscribe(app.relay)
	}

	// Mapping cache and resolver
	app.mappingCache = cache.NewInMemoryMappingCache(
		cache.WithTTL(cfg.Cache.MappingTTL),
		cache.WithCleanupInterval(cfg.Cache.CleanupInterval),
		cache.WithLogger(log.Named("mapping_cache")),
	)
	var broadcaster integration.MappingInvalidationBroadcaster
	if deps.Redis != nil {
		app.invalidator = cache.NewRedisMappingInvalidator(deps.Redis,
			cache.WithInvalidationChannel(cfg.Cache.InvalidationChannel),
			cache.WithInvalidatorLogger(log.Named("mapping_invalidation")),
		)
		broadcaster = app.invalidator
	}
	resolver := appintegration.NewMappingResolver(mappingRepo, app.mappingCache, log)
	app.Mappings = appintegration.NewMappingService(mappingRepo, resolver, broadcaster, log)

	// External systems
	source, err := external.NewSourceClient(clientConfig("source", cfg.Source), log.Named("source"))
	if err != nil {
		return nil, fmt.Errorf("create source client: %w", err)
	}
	target, err := external.NewTargetClient(clientConfig("target", cfg.Target), log.Named("target"))
	if err != nil {
		return nil, fmt.Errorf("create target client: %w", err)
	}

	// Services
	pipelineCfg := appintegration.PipelineConfig{PushBatchSize: cfg.Sync.PushBatchSize}
	if cfg.Sync.ApprovalThreshold != "" {
		threshold, err := decimal.NewFromString(cfg.Sync.ApprovalThreshold)
		if err != nil {
			return nil, fmt.Errorf("invalid sync.approval_threshold %q: %w", cfg.Sync.ApprovalThreshold, err)
		}
		pipelineCfg.ApprovalThreshold = &threshold
	}

	app.Adjustments = appintegration.NewPendingAdjustmentService(adjustmentRepo, log)
	app.Adjustments.SetEventPublisher(app.Bus)
	app.Adjustments.SetMetrics(metrics)

	pipeline := appintegration.NewRecordPipeline(resolver, target, app.Adjustments, pipelineCfg, log)
	if cfg.Sync.ApplyApprovedToTarget {
		app.Adjustments.SetApplier(appintegration.NewTargetAdjustmentApplier(pipeline, failedRepo, log))
	}

	retry := appintegration.NewRetryEngine(failedRepo, pipeline, metrics, appintegration.RetryConfig{
		BatchSize:  cfg.Retry.BatchSize,
		MaxRetries: cfg.Retry.MaxRetries,
		BaseDelay:  cfg.Retry.BaseDelay,
		MaxDelay:   cfg.Retry.MaxDelay,
	}, log)
	orchestrator := appintegration.NewSyncOrchestrator(runRepo, failedRepo, source, pipeline, metrics,
		appintegration.OrchestratorConfig{InitialLookback: cfg.Sync.InitialLookback}, log)

	app.FailedRecords = appintegration.NewFailedRecordService(failedRepo, retry, log)
	app.SyncRuns = appintegration.NewSyncRunService(runRepo, failedRepo, adjustmentRepo)
	app.Reconciler = appintegration.NewStartupReconciler(runRepo, failedRepo, cfg.Reconcile.StaleAfter, log)

	// Scheduling: manual and scheduled executions share the guard
	guardOpts := []scheduler.JobGuardOption{}
	if deps.Redis != nil {
		guardOpts = append(guardOpts,
			scheduler.WithLocker(redislock.New(deps.Redis)),
			scheduler.WithLockTTL(cfg.Scheduler.LockTTL),
			scheduler.WithLockPrefix(cfg.Scheduler.LockPrefix),
		)
	}
	guard := scheduler.NewJobGuard(log.Named("scheduler"), guardOpts...)
	app.Scheduler = scheduler.NewScheduler(guard, nil, log.Named("scheduler"))

	scope, err := integration.ParseSyncScope(cfg.Scheduler.SyncScope)
	if err != nil {
		return nil, fmt.Errorf("invalid scheduler.sync_scope: %w", err)
	}
	app.SyncJobs = appintegration.NewSyncJobs(orchestrator, retry, app.Scheduler, scope)

	if cfg.Scheduler.Enabled {
		app.Scheduler.Register(scheduler.IntervalTriggerConfig{
			Name:       appintegration.JobNameSync,
			Interval:   cfg.Scheduler.SyncInterval,
			RunOnStart: cfg.Scheduler.RunOnStart,
			Timeout:    cfg.Scheduler.JobTimeout,
		}, app.SyncJobs.ScheduledSync)
		app.Scheduler.Register(scheduler.IntervalTriggerConfig{
			Name:     appintegration.JobNameRetry,
			Interval: cfg.Scheduler.RetryInterval,
			Timeout:  cfg.Scheduler.JobTimeout,
		}, app.SyncJobs.ScheduledRetry)
	}

	return app, nil
}

func clientConfig(name string, c config.ExternalAPIConfig) external.ClientConfig {
	return external.ClientConfig{
		Name:           name,
		BaseURL:        c.BaseURL,
		APIKey:         c.APIKey,
		Timeout:        c.Timeout,
		RateLimit:      c.RateLimit,
		RateLimitBurst: c.RateLimitBurst,
		MaxAttempts:    c.MaxAttempts,
		PageSize:       c.PageSize,
	}
}

// Start repairs state left by a previous process, starts the cross-instance
// subscriptions and then the scheduled triggers
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	if err := a.Bus.Start(ctx); err != nil {
		return err
	}

	if a.Config.Reconcile.Enabled {
		result, err := a.Reconciler.Reconcile(ctx)
		if err != nil {
			return fmt.Errorf("startup reconciliation: %w", err)
		}
		a.Logger.Info("Startup reconciliation finished",
			zap.Int64("runs_reset", result.RunsReset),
			zap.Int64("records_released", result.RecordsReleased))
	}

	if a.relay != nil {
		a.subscribe("event relay", func(ready chan<- struct{}) error {
			return a.relay.Subscribe(ctx, a.Hub, ready)
		})
	}
	if a.invalidator != nil {
		a.subscribe("mapping invalidation", func(ready chan<- struct{}) error {
			return a.invalidator.Subscribe(ctx, a.mappingCache, ready)
		})
	}

	return a.Scheduler.Start(ctx)
}

// subscribe runs fn in the background and waits until it is subscribed or has failed
func (a *App) subscribe(name string, fn func(ready chan<- struct{}) error) {
	ready := make(chan struct{})
	done := make(chan struct{})
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer close(done)
		if err := fn(ready); err != nil && !errors.Is(err, context.Canceled) {
			a.Logger.Error("Subscription stopped", zap.String("subscription", name), zap.Error(err))
		}
	}()
	select {
	case <-ready:
	case <-done:
	}
}

// Shutdown stops the triggers, waits for running jobs within ctx and then
// releases every resource in reverse opening order
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error

	if err := a.Scheduler.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.cancel != nil {
		a.cancel()
	}
	a.Hub.Close()
	if a.relay != nil {
		errs = append(errs, a.relay.Close())
	}
	if a.invalidator != nil {
		errs = append(errs, a.invalidator.Close())
	}
	a.wg.Wait()
	errs = append(errs, a.mappingCache.Close())
	errs = append(errs, a.Bus.Stop(ctx))

	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	return errors.Join(errs...)
}

// onShutdown registers a resource to release in Shutdown
func (a *App) onShutdown(fn func(ctx context.Context) error) {
	a.closers = append(a.closers, fn)
}
