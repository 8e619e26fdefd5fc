// Package worker is the lease/execute/record loop from spec §4.4,
// generalized from the teacher's scheduler.Worker: instead of claiming
// a batch over HTTP, each goroutine leases one DueWork row at a time,
// runs it through the Pipeline Engine, heartbeats the lease while it
// runs, and commits the outcome back through the Work Queue's
// ownership-checked Complete/Fail.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/edgeworks-labs/orbiter/internal/backoff"
	"github.com/edgeworks-labs/orbiter/internal/domain"
	"github.com/edgeworks-labs/orbiter/internal/metrics"
	"github.com/edgeworks-labs/orbiter/internal/orbiterrors"
	"github.com/edgeworks-labs/orbiter/internal/pipeline"
	"github.com/edgeworks-labs/orbiter/internal/repository"
	"github.com/edgeworks-labs/orbiter/internal/runctx"
)

type Pool struct {
	id            string
	workRepo      repository.DueWorkRepository
	taskRepo      repository.TaskRepository
	engine        *pipeline.Engine
	logger        *slog.Logger
	concurrency   int
	pollInterval  time.Duration
	leaseDuration time.Duration

	wg sync.WaitGroup
}

func NewPool(
	workRepo repository.DueWorkRepository,
	taskRepo repository.TaskRepository,
	engine *pipeline.Engine,
	logger *slog.Logger,
	concurrency int,
	pollInterval time.Duration,
	leaseDuration time.Duration,
) *Pool {
	hostname, _ := os.Hostname()
	return &Pool{
		id:            fmt.Sprintf("%s-%d", hostname, os.Getpid()),
		workRepo:      workRepo,
		taskRepo:      taskRepo,
		engine:        engine,
		logger:        logger.With("component", "worker_pool", "worker_id", fmt.Sprintf("%s-%d", hostname, os.Getpid())),
		concurrency:   concurrency,
		pollInterval:  pollInterval,
		leaseDuration: leaseDuration,
	}
}

// Start launches concurrency lease loops and blocks until ctx is
// canceled, then waits for in-flight leases to finish (drain-then-
// release): a worker mid-execution completes or fails its current lease
// before returning, never abandoning it mid-commit.
func (p *Pool) Start(ctx context.Context) {
	metrics.WorkerStartTime.SetToCurrentTime()
	p.logger.Info("worker pool started", "concurrency", p.concurrency)

	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.runLoop(ctx, i)
	}
	p.wg.Wait()
	p.logger.Info("worker pool drained")
}

func (p *Pool) runLoop(ctx context.Context, slot int) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		work, err := p.workRepo.Lease(ctx, p.id, p.leaseDuration)
		if err != nil {
			p.logger.Error("lease due work", "slot", slot, "error", err)
			continue
		}
		if work == nil {
			continue
		}
		metrics.LeasesTakenTotal.Inc()
		metrics.DueWorkLeaseLatency.Observe(time.Since(work.CreatedAt).Seconds())

		// Drain-then-release: finish this lease even if ctx is canceled
		// mid-execution, using a detached context for the commit so a
		// shutdown signal does not abort the write that records the
		// outcome of work already performed.
		p.execute(ctx, work)
	}
}

func (p *Pool) execute(ctx context.Context, work *domain.DueWork) {
	t, err := p.taskRepo.GetByIDUnscoped(ctx, work.TaskID)
	if err != nil {
		p.logger.Error("load task for due work", "task_id", work.TaskID, "due_work_id", work.ID, "error", err)
		return
	}
	if t == nil {
		p.logger.Warn("task no longer exists, dropping lease", "task_id", work.TaskID, "due_work_id", work.ID)
		return
	}

	// A lease on a paused/canceled task's stale due_work row must not
	// execute: the task was taken out of rotation after this row was
	// enqueued (or reconcile hasn't swept it yet), and running it now
	// would fire a pipeline nobody asked for anymore. Commit a skipped
	// Run and release the lease without touching the engine.
	if t.Status != domain.TaskActive {
		p.logger.Info("skipping due work for inactive task", "task_id", t.ID, "due_work_id", work.ID, "status", t.Status)
		started := time.Now()
		run := &domain.Run{
			TaskID:      t.ID,
			DueWorkID:   work.ID,
			LeaseOwner:  p.id,
			LeasedUntil: started.Add(p.leaseDuration),
			StartedAt:   started,
			FinishedAt:  &started,
			Success:     true,
			Skipped:     true,
			Attempt:     work.Attempt,
		}
		commitCtx := runctx.With(context.WithoutCancel(ctx), runctx.Fields{TaskID: t.ID, RunID: work.ID, Attempt: work.Attempt})
		if err := p.workRepo.Complete(commitCtx, work.ID, p.id, run); err != nil {
			if err == repository.ErrLeaseLost {
				metrics.LeasesExpiredTotal.Inc()
				p.logger.Warn("lease lost before commit", "due_work_id", work.ID)
				return
			}
			p.logger.Error("complete skipped due work", "due_work_id", work.ID, "error", err)
			return
		}
		metrics.RunsFinishedTotal.WithLabelValues("skipped").Inc()
		return
	}

	runCtx := runctx.With(ctx, runctx.Fields{TaskID: t.ID, RunID: work.ID, Attempt: work.Attempt})
	metrics.RunsStartedTotal.Inc()

	started := time.Now()
	leasedUntil := started.Add(p.leaseDuration)
	stopHeartbeat := p.startHeartbeat(ctx, work.ID, leasedUntil)
	result := p.engine.Execute(runCtx, t, nil, started)
	stopHeartbeat()

	// Commit on a context detached from cancellation: a shutdown signal
	// received mid-execution must not also abort the write that records
	// the outcome of work already performed.
	commitCtx := runctx.With(context.WithoutCancel(ctx), runctx.Fields{TaskID: t.ID, RunID: work.ID, Attempt: work.Attempt})

	finished := time.Now()
	metrics.PipelineDuration.Observe(finished.Sub(started).Seconds())

	run := &domain.Run{
		TaskID:      t.ID,
		DueWorkID:   work.ID,
		LeaseOwner:  p.id,
		LeasedUntil: leasedUntil,
		StartedAt:   started,
		FinishedAt:  &finished,
		Success:     result.Success,
		Attempt:     work.Attempt,
	}

	if result.Success {
		out := result.Context.AsValue()
		run.Output = &out
		if err := p.workRepo.Complete(commitCtx, work.ID, p.id, run); err != nil {
			if err == repository.ErrLeaseLost {
				metrics.LeasesExpiredTotal.Inc()
				p.logger.Warn("lease lost before commit", "due_work_id", work.ID)
				return
			}
			p.logger.Error("complete due work", "due_work_id", work.ID, "error", err)
			return
		}
		metrics.RunsFinishedTotal.WithLabelValues("success").Inc()
		return
	}

	errKind := string(result.ErrorKind)
	run.Error = &result.ErrorMsg
	run.ErrorKind = &errKind

	terminal := work.Attempt >= t.Policy.MaxRetries+1 || result.ErrorKind == orbiterrors.KindCanceled
	delay := backoff.Compute(t.Policy.BackoffStrategy, work.Attempt)

	if err := p.workRepo.Fail(commitCtx, work.ID, p.id, terminal, delay, run); err != nil {
		if err == repository.ErrLeaseLost {
			metrics.LeasesExpiredTotal.Inc()
			p.logger.Warn("lease lost before commit", "due_work_id", work.ID)
			return
		}
		p.logger.Error("fail due work", "due_work_id", work.ID, "error", err)
		return
	}

	outcome := "retry"
	if terminal {
		outcome = "failed"
	}
	metrics.RunsFinishedTotal.WithLabelValues(outcome).Inc()
}

// startHeartbeat extends the lease periodically while the pipeline
// executes, so a step slower than the original lease duration does not
// get reclaimed by another worker mid-run.
func (p *Pool) startHeartbeat(ctx context.Context, workID string, leasedUntil time.Time) func() {
	stop := make(chan struct{})
	go func() {
		interval := p.leaseDuration / 3
		if interval <= 0 {
			interval = time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				newDeadline := time.Now().Add(p.leaseDuration)
				if ok, err := p.workRepo.ExtendLease(ctx, workID, p.id, newDeadline); err != nil {
					p.logger.Error("extend lease", "due_work_id", workID, "error", err)
				} else if !ok {
					p.logger.Warn("lease already lost during heartbeat", "due_work_id", workID)
				}
			}
		}
	}()
	return func() { close(stop) }
}
