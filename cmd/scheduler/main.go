package main

import (
	"context"
	"errors"
	"fmt"
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
	"github.com/edgeworks-labs/orbiter/internal/scheduler"
	"github.com/edgeworks-labs/orbiter/internal/store/migrations"
	"github.com/edgeworks-labs/orbiter/internal/store/postgres"
	"github.com/edgeworks-labs/orbiter/internal/worker"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

const eventConsumerGroup = "orbiter:scheduler"

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

	sqlDB, err := postgres.OpenStdlib(cfg.DatabaseURL)
	if err != nil {
		stop()
		log.Fatalf("db (stdlib, for migrations): %v", err)
	}
	if err := migrations.Up(sqlDB); err != nil {
		stop()
		log.Fatalf("migrate: %v", err)
	}
	_ = sqlDB.Close()

	logger.Info("db connected, migrations applied")

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		stop()
		log.Fatalf("redis url: %v", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	metrics.Register()
	checker := health.NewChecker(map[string]health.Pinger{
		"postgres": pingerFunc(func(ctx context.Context) error {
			return pool.Ping(ctx)
		}),
		"redis": pingerFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}),
	}, logger, prometheus.DefaultRegisterer)

	taskRepo := postgres.NewTaskRepository(pool)
	workRepo := postgres.NewDueWorkRepository(pool)
	eventDedupeRepo := postgres.NewEventDedupeRepository(pool)

	sched := scheduler.New(taskRepo, workRepo, eventDedupeRepo, logger)
	if err := sched.Start(ctx); err != nil {
		stop()
		log.Fatalf("scheduler start: %v", err)
	}

	consumer := eventbus.NewConsumer(redisClient, sched, eventbus.DefaultStream, eventConsumerGroup, consumerName(), logger)
	if err := consumer.EnsureGroup(ctx); err != nil {
		stop()
		log.Fatalf("eventbus ensure group: %v", err)
	}
	go consumer.Start(ctx)

	reaper := worker.NewReaper(workRepo, eventDedupeRepo, logger, time.Duration(cfg.ReaperIntervalSec)*time.Second, cfg.EventDedupeWindowSec)
	go reaper.Start(ctx)

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}

	logger.Info("scheduler shut down")
}

func consumerName() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
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
