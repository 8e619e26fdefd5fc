package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/edgeworks-labs/orbiter/internal/metrics"
	"github.com/edgeworks-labs/orbiter/internal/repository"
)

// Reaper is pure observability: an expired lease recovers implicitly
// (DueWork.Available treats it as available the instant locked_until
// passes), so there is nothing to actively rewrite. Unlike the
// teacher's Reaper, which issues RescheduleStale/FailStale UPDATEs,
// this one only counts and reports what the next lease call will pick
// up on its own, plus sweeps the seen_event dedupe table.
type Reaper struct {
	workRepo    repository.DueWorkRepository
	eventDedupe repository.EventDedupeRepository
	logger      *slog.Logger
	interval    time.Duration
	dedupeTTL   int
}

func NewReaper(workRepo repository.DueWorkRepository, eventDedupe repository.EventDedupeRepository, logger *slog.Logger, interval time.Duration, dedupeTTLSeconds int) *Reaper {
	return &Reaper{
		workRepo:    workRepo,
		eventDedupe: eventDedupe,
		logger:      logger.With("component", "reaper"),
		interval:    interval,
		dedupeTTL:   dedupeTTLSeconds,
	}
}

func (r *Reaper) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	r.logger.Info("reaper started", "interval", r.interval)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper shut down")
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reaper) sweep(ctx context.Context) {
	expired, err := r.workRepo.CountExpiredLeases(ctx)
	if err != nil {
		r.logger.Error("count expired leases", "error", err)
	} else if expired > 0 {
		metrics.ReaperRescuedTotal.WithLabelValues("expired_lease_observed").Add(float64(expired))
		r.logger.Info("expired leases pending implicit recovery", "count", expired)
	}

	swept, err := r.eventDedupe.Sweep(ctx, r.dedupeTTL)
	if err != nil {
		r.logger.Error("sweep seen events", "error", err)
	} else if swept > 0 {
		metrics.ReaperRescuedTotal.WithLabelValues("seen_event_swept").Add(float64(swept))
	}
}
