package bootstrap

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/erp/syncengine/internal/interfaces/http/handler"
	"github.com/erp/syncengine/internal/interfaces/http/middleware"
	"github.com/erp/syncengine/internal/interfaces/http/router"
)

// HTTPHandler builds the gin engine serving /health, /metrics and /api/v1
func (a *App) HTTPHandler() (*gin.Engine, error) {
	cfg := a.Config
	engine, err := router.NewEngine(router.EngineConfig{
		Logger:         a.Logger,
		ServiceName:    cfg.Telemetry.ServiceName,
		TracingEnabled: cfg.Telemetry.Enabled,
		MeterProvider:  a.MeterProvider,
		CORS: middleware.CORSConfig{
			AllowOrigins: cfg.HTTP.CORSAllowOrigins,
			AllowMethods: cfg.HTTP.CORSAllowMethods,
			AllowHeaders: cfg.HTTP.CORSAllowHeaders,
		},
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		TrustedProxies: cfg.HTTP.TrustedProxies,
	})
	if err != nil {
		return nil, err
	}

	engine.GET("/health", handler.NewHealthHandler(a.HealthChecks()...).Health)
	router.Mount(engine, "/metrics", a.Prometheus.Handler())

	router.NewRouter(engine).Register(
		handler.NewSyncHandler(a.SyncJobs, a.SyncRuns, a.Scheduler,
			handler.WithJobTimeout(a.Config.Scheduler.JobTimeout),
		),
		handler.NewFailedRecordHandler(a.FailedRecords),
		handler.NewPendingAdjustmentHandler(a.Adjustments),
		handler.NewMappingHandler(a.Mappings),
		handler.NewEventStreamHandler(a.Hub,
			handler.WithHeartbeat(a.Config.Events.SSEHeartbeat),
			handler.WithStreamLogger(a.Logger.Named("sse")),
		),
	).Setup()

	return engine, nil
}

// HTTPServer wraps the handler in a server configured from cfg.HTTP
func (a *App) HTTPServer() (*http.Server, error) {
	engine, err := a.HTTPHandler()
	if err != nil {
		return nil, err
	}
	return &http.Server{
		Addr:           ":" + a.Config.App.Port,
		Handler:        engine,
		ReadTimeout:    a.Config.HTTP.ReadTimeout,
		WriteTimeout:   a.Config.HTTP.WriteTimeout,
		IdleTimeout:    a.Config.HTTP.IdleTimeout,
		MaxHeaderBytes: a.Config.HTTP.MaxHeaderBytes,
	}, nil
}

// HealthChecks probes the database and, when configured, Redis
func (a *App) HealthChecks() []handler.HealthCheck {
	checks := []handler.HealthCheck{{
		Name: "database",
		Check: func(ctx context.Context) error {
			sqlDB, err := a.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}}
	if a.Redis != nil {
		checks = append(checks, handler.HealthCheck{
			Name: "redis",
			Check: func(ctx context.Context) error {
				return a.Redis.Ping(ctx).Err()
			},
		})
	}
	return checks
}
