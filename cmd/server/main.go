package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/erp/syncengine/internal/bootstrap"
	"github.com/erp/syncengine/internal/infrastructure/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Logger, telemetry, database, migrations, Redis and the engine itself
	app, err := bootstrap.Open(ctx, cfg, bootstrap.OpenOptions{RuntimeMetrics: true})
	if err != nil {
		panic("Failed to initialize sync engine: " + err.Error())
	}
	log := app.Logger

	log.Info("Starting sync engine",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.Bool("redis", cfg.Redis.Enabled),
		zap.Bool("scheduler", cfg.Scheduler.Enabled),
	)

	// Startup reconciliation, cross-instance subscriptions, scheduled triggers
	if err := app.Start(ctx); err != nil {
		log.Error("Failed to start sync engine", zap.Error(err))
		_ = app.Shutdown(context.Background())
		os.Exit(1)
	}

	srv, err := app.HTTPServer()
	if err != nil {
		log.Error("Failed to build HTTP server", zap.Error(err))
		_ = app.Shutdown(context.Background())
		os.Exit(1)
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Graceful shutdown
	exitCode := 0
	select {
	case <-ctx.Done():
		log.Info("Shutting down server...")
	case err := <-serveErr:
		log.Error("HTTP server failed", zap.Error(err))
		exitCode = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
		exitCode = 1
	}
	log.Info("Server exited, stopping sync engine")
	if err := app.Shutdown(shutdownCtx); err != nil {
		// the logger is already flushed and closed at this point
		_, _ = os.Stderr.WriteString("sync engine shutdown: " + err.Error() + "\n")
		exitCode = 1
	}

	if exitCode != 0 {
		cancel()
		os.Exit(exitCode)
	}
}
