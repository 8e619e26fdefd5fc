// Package config loads process configuration from the environment,
// generalizing the teacher's config.Config to the three orbiter
// processes (scheduler, worker, server) sharing one env schema.
package config

import (
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env  string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	Port string `env:"PORT" envDefault:"8080" validate:"required"`

	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`
	RedisURL    string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	WorkerCount         int `env:"WORKER_COUNT" envDefault:"5" validate:"min=1,max=200"`
	WorkerConcurrency   int `env:"WORKER_CONCURRENCY" envDefault:"4" validate:"min=1,max=64"`
	PollIntervalMS      int `env:"POLL_INTERVAL_MS" envDefault:"500" validate:"min=10,max=60000"`
	LeaseDurationSec    int `env:"LEASE_DURATION_SEC" envDefault:"30" validate:"min=1,max=3600"`
	DrainTimeoutSec     int `env:"DRAIN_TIMEOUT_SEC" envDefault:"10" validate:"min=0,max=600"`
	ReaperIntervalSec   int `env:"REAPER_INTERVAL_SEC" envDefault:"10" validate:"min=1,max=600"`
	DefaultStepTimeoutS int `env:"DEFAULT_STEP_TIMEOUT_SEC" envDefault:"30" validate:"min=1,max=3600"`
	EventDedupeWindowSec int `env:"EVENT_DEDUPE_WINDOW_SEC" envDefault:"300" validate:"min=1,max=86400"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info" validate:"required,oneof=debug info warn error"`

	JWTSecret string `env:"JWT_SECRET,required" validate:"required,min=16"`

	EmailAPIKey string `env:"EMAIL_API_KEY"`
	EmailFrom   string `env:"EMAIL_FROM" envDefault:"orbiter@example.com"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SlogLevel converts the LOG_LEVEL string to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
