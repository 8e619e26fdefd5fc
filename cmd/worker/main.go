package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edgeworks-labs/orbiter/config"
	"github.com/edgeworks-labs/orbiter/internal/health"
	ctxlog "github.com/edgeworks-labs/orbiter/internal/log"
	"github.com/edgeworks-labs/orbiter/internal/metrics"
	"github.com/edgeworks-labs/orbiter/internal/pipeline"
	"github.com/edgeworks-labs/orbiter/internal/store/postgres"
	"github.com/edgeworks-labs/orbiter/internal/toolregistry"
	"github.com/edgeworks-labs/orbiter/internal/tracing"
	"github.com/edgeworks-labs/orbiter/internal/worker"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	shutdownTracing, err := tracing.Init("orbiter-worker")
	if err != nil {
		stop()
		log.Fatalf("tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Error("tracing shutdown", "error", err)
		}
	}()

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	logger.Info("db connected")

	metrics.Register()
	checker := health.NewChecker(map[string]health.Pinger{
		"postgres": pingerFunc(func(ctx context.Context) error {
			return pool.Ping(ctx)
		}),
	}, logger, prometheus.DefaultRegisterer)

	taskRepo := postgres.NewTaskRepository(pool)
	workRepo := postgres.NewDueWorkRepository(pool)

	httpRegistry := toolregistry.NewHTTPRegistry(logger)
	registry := toolregistry.NewStaticRegistry(httpRegistry)
	registry.Register("email", toolregistry.NewEmailRegistry(cfg.EmailAPIKey, cfg.EmailFrom, logger).Invoke)
	engine := pipeline.New(registry, time.Duration(cfg.DefaultStepTimeoutS)*time.Second)

	workerPool := worker.NewPool(
		workRepo,
		taskRepo,
		engine,
		logger,
		cfg.WorkerConcurrency,
		time.Duration(cfg.PollIntervalMS)*time.Millisecond,
		time.Duration(cfg.LeaseDurationSec)*time.Second,
	)

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	// Start blocks until ctx is canceled, then waits for in-flight leases
	// to commit; main stops waiting for it after DrainTimeoutSec.
	drained := make(chan struct{})
	go func() {
		workerPool.Start(ctx)
		close(drained)
	}()

	<-ctx.Done()
	stop()
	logger.Info("draining in-flight leases...")

	select {
	case <-drained:
	case <-time.After(time.Duration(cfg.DrainTimeoutSec) * time.Second):
		logger.Warn("drain timeout exceeded, shutting down anyway")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}

	logger.Info("worker pool shut down")
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
