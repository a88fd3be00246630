package bootstrap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/erp/syncengine/internal/infrastructure/cache"
	"github.com/erp/syncengine/internal/infrastructure/config"
	"github.com/erp/syncengine/internal/infrastructure/logger"
	"github.com/erp/syncengine/internal/infrastructure/migration"
	"github.com/erp/syncengine/internal/infrastructure/persistence"
	"github.com/erp/syncengine/internal/infrastructure/telemetry"
)

// OpenOptions adjusts Open for the calling binary
type OpenOptions struct {
	// Logger replaces the logger built from cfg.Log, e.g. a quieter one for the CLI
	Logger *zap.Logger
	// Migrate applies pending migrations before the engine is built.
	// cfg.Database.MigrateOnStart has the same effect.
	Migrate bool
	// RuntimeMetrics registers the Go runtime collectors on the scrape registry
	RuntimeMetrics bool
}

// Open connects to everything cfg describes and builds the engine on it.
// Order: logger, telemetry, database, migrations, Redis, then the services.
// On failure everything opened so far is closed again.
func Open(ctx context.Context, cfg *config.Config, opts OpenOptions) (app *App, err error) {
	var closers []func(ctx context.Context) error
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				_ = closers[i](ctx)
			}
		}
	}()

	logCfg := &logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}
	log := opts.Logger
	if log == nil {
		if log, err = logger.New(logCfg); err != nil {
			return nil, fmt.Errorf("initialize logger: %w", err)
		}
	}

	// Telemetry
	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("initialize tracer provider: %w", err)
	}
	closers = append(closers, tp.Shutdown)

	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("initialize meter provider: %w", err)
	}
	closers = append(closers, mp.Shutdown)

	if cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled && opts.Logger == nil {
		lp, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
			Enabled:           true,
			CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
			ServiceName:       cfg.Telemetry.ServiceName,
			Insecure:          cfg.Telemetry.Insecure,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("initialize logger provider: %w", err)
		}
		closers = append(closers, lp.Shutdown)
		log = telemetry.NewBridgedLogger(logCfg, lp, cfg.Telemetry.ServiceName)
	}

	// Database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh),
		logger.WithFullSQL(cfg.Telemetry.DBLogFullSQL),
	)
	db, err := persistence.Open(ctx, &cfg.Database, gormLog)
	if err != nil {
		return nil, err
	}
	closers = append(closers, func(context.Context) error { return db.Close() })
	log.Info("Database connected",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.DBName))

	if cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled {
		plugin := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
			Enabled:         true,
			LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
			SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
			DBSystem:        "postgresql",
		}, log)
		if err := plugin.Register(db.DB); err != nil {
			return nil, fmt.Errorf("register database tracing: %w", err)
		}
	}

	if opts.Migrate || cfg.Database.MigrateOnStart {
		if err := migrate(db, log); err != nil {
			return nil, err
		}
	}

	// Redis
	var rdb *redis.Client
	if cfg.Redis.Enabled {
		if rdb, err = cache.NewRedisClient(ctx, &cfg.Redis); err != nil {
			return nil, err
		}
		closers = append(closers, func(context.Context) error { return rdb.Close() })
		log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
	}

	prom := telemetry.NewPrometheusCollector(opts.RuntimeMetrics)
	if err := prom.Register(db.StatsCollector(cfg.Database.DBName)); err != nil {
		return nil, fmt.Errorf("register database pool metrics: %w", err)
	}

	app, err = Build(ctx, cfg, Deps{
		Logger:        log,
		DB:            db.DB,
		Redis:         rdb,
		MeterProvider: mp,
		Prometheus:    prom,
	})
	if err != nil {
		return nil, err
	}
	// closed in reverse, so the log is flushed last
	app.onShutdown(func(context.Context) error {
		_ = log.Sync()
		return nil
	})
	for _, fn := range closers {
		app.onShutdown(fn)
	}
	return app, nil
}

// migrate leaves the migrator open; closing it would close db
func migrate(db *persistence.Database, log *zap.Logger) error {
	m, err := migration.New(db.SQL(), log)
	if err != nil {
		return err
	}
	return m.Up()
}
