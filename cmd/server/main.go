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
	"github.com/edgeworks-labs/orbiter/internal/eventbus"
	"github.com/edgeworks-labs/orbiter/internal/health"
	ctxlog "github.com/edgeworks-labs/orbiter/internal/log"
	"github.com/edgeworks-labs/orbiter/internal/metrics"
	"github.com/edgeworks-labs/orbiter/internal/payloadschema"
	"github.com/edgeworks-labs/orbiter/internal/scheduler"
	"github.com/edgeworks-labs/orbiter/internal/store/postgres"
	httptransport "github.com/edgeworks-labs/orbiter/internal/transport/http"
	"github.com/edgeworks-labs/orbiter/internal/transport/http/handler"
	"github.com/edgeworks-labs/orbiter/internal/usecase"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		stop()
		log.Fatalf("redis url: %v", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	validator, err := payloadschema.New()
	if err != nil {
		stop()
		log.Fatalf("payload schema: %v", err)
	}

	taskRepo := postgres.NewTaskRepository(pool)
	workRepo := postgres.NewDueWorkRepository(pool)
	runRepo := postgres.NewRunRepository(pool)
	eventDedupeRepo := postgres.NewEventDedupeRepository(pool)

	// The REST process runs its own in-memory Scheduler instance purely
	// to drive OnTaskCreated/OnTaskUpdated/OnTaskPausedOrCanceled/RunNow/
	// Snooze, none of which require Start's poll loop; the durable state
	// those calls touch (task, due_work) is the same store the standalone
	// scheduler process reconciles against on its own reconcile backstop.
	// Inbound events never touch this instance: POST /events publishes to
	// the Redis stream so OnEvent only ever runs in the scheduler process,
	// the one place that owns the seen_event dedupe window.
	sched := scheduler.New(taskRepo, workRepo, eventDedupeRepo, logger)

	taskUsecase := usecase.NewTaskUsecase(taskRepo, sched, validator)
	taskHandler := handler.NewTaskHandler(taskUsecase, logger)

	runUsecase := usecase.NewRunUsecase(taskRepo, runRepo)
	runHandler := handler.NewRunHandler(runUsecase, logger)

	eventPublisher := eventbus.NewPublisher(redisClient, eventbus.DefaultStream)
	eventUsecase := usecase.NewEventUsecase(eventPublisher)
	eventHandler := handler.NewEventHandler(eventUsecase, logger)

	metrics.Register()
	checker := health.NewChecker(map[string]health.Pinger{
		"postgres": pingerFunc(func(ctx context.Context) error {
			return pool.Ping(ctx)
		}),
		"redis": pingerFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}),
	}, logger, prometheus.DefaultRegisterer)

	srv := http.Server{
		Addr: ":" + cfg.Port,
		Handler: httptransport.NewRouter(
			logger,
			taskHandler,
			runHandler,
			eventHandler,
			checker,
			[]byte(cfg.JWTSecret),
		),
	}

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)

	go func() {
		logger.Info("server started", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
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
