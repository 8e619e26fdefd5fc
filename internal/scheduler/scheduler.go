// Package scheduler is the singleton clock owner from spec §4.1: it
// holds the in-memory set of next-fire instants for every active,
// time-driven Task, wakes at the earliest one, and enqueues DueWork.
// Event-driven tasks bypass the trigger set entirely and fire directly
// from onEvent. Grounded on the teacher's scheduler.Dispatcher, which
// polls schedules on a fixed ticker; this version replaces the ticker
// with a heap-ordered timer so wakeups track the true next occurrence
// instead of being bounded by a poll interval.
package scheduler

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/edgeworks-labs/orbiter/internal/domain"
	"github.com/edgeworks-labs/orbiter/internal/metrics"
	"github.com/edgeworks-labs/orbiter/internal/repository"
	"golang.org/x/time/rate"
)

type Scheduler struct {
	taskRepo    repository.TaskRepository
	workRepo    repository.DueWorkRepository
	eventDedupe repository.EventDedupeRepository
	logger      *slog.Logger

	mu      sync.Mutex
	tasks   map[string]*domain.Task
	current map[string]*wakeupEntry
	h       wakeupHeap

	wake chan struct{}

	// catchUp bounds how fast a backlog of missed occurrences (built up
	// while the process was stopped or the clock jumped forward) drains,
	// so a long outage doesn't flood the Work Queue in one instant.
	catchUp *rate.Limiter

	// reconcileInterval bounds how long a task mutation made by a peer
	// process (the REST server calling TaskRepository.Update/SetStatus
	// directly, without sharing this process's heap) can go unnoticed by
	// this trigger set. OnTaskCreated/OnTaskUpdated/OnTaskPausedOrCanceled
	// give same-process callers instant effect; reconcile is the
	// cross-process backstop, playing the role of the teacher's original
	// fixed-ticker poll.
	reconcileInterval time.Duration
}

func New(taskRepo repository.TaskRepository, workRepo repository.DueWorkRepository, eventDedupe repository.EventDedupeRepository, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		taskRepo:          taskRepo,
		workRepo:          workRepo,
		eventDedupe:       eventDedupe,
		logger:            logger.With("component", "scheduler"),
		tasks:             make(map[string]*domain.Task),
		current:           make(map[string]*wakeupEntry),
		wake:              make(chan struct{}, 1),
		catchUp:           rate.NewLimiter(rate.Limit(50), 50),
		reconcileInterval: 30 * time.Second,
	}
}

// Start loads every active task, computes an initial wakeup for each
// time-driven one, and begins the tick loop. Restart-safe: a Task's
// NextRun column is the durable record of where the trigger set left
// off, so a process crash loses nothing but in-flight wakeup precision.
func (s *Scheduler) Start(ctx context.Context) error {
	tasks, err := s.taskRepo.LoadActive(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	for _, t := range tasks {
		if t.Schedule.Kind == domain.ScheduleEvent {
			continue
		}
		if t.NextRun == nil {
			next, err := ComputeNext(t.Schedule, time.Now())
			if err != nil {
				s.logger.Error("compute initial next run", "task_id", t.ID, "error", err)
				continue
			}
			t.NextRun = &next
		}
		s.tasks[t.ID] = t
		s.pushLocked(t.ID, *t.NextRun)
	}
	s.mu.Unlock()

	go s.loop(ctx)
	return nil
}

func (s *Scheduler) pushLocked(taskID string, fireAt time.Time) {
	e := &wakeupEntry{taskID: taskID, fireAt: fireAt}
	s.current[taskID] = e
	heap.Push(&s.h, e)
}

func (s *Scheduler) nudge() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	s.logger.Info("scheduler started")
	reconcile := time.NewTicker(s.reconcileInterval)
	defer reconcile.Stop()

	for {
		s.mu.Lock()
		wait := time.Hour
		if s.h.Len() > 0 {
			if d := time.Until(s.h[0].fireAt); d > 0 {
				wait = d
			} else {
				wait = 0
			}
		}
		s.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("scheduler shut down")
			return
		case <-s.wake:
			timer.Stop()
			continue
		case <-reconcile.C:
			timer.Stop()
			s.reconcile(ctx)
			continue
		case <-timer.C:
		}
		s.fireDue(ctx)
	}
}

// reconcile re-loads every active task and admits any this process
// hasn't seen yet or whose NextRun moved since it was last pushed,
// catching mutations a peer process made directly against the store
// (a REST server's pause/resume/update/snooze/cancel) without a
// same-process OnTask* callback to react to.
func (s *Scheduler) reconcile(ctx context.Context) {
	tasks, err := s.taskRepo.LoadActive(ctx)
	if err != nil {
		s.logger.Error("reconcile: load active tasks", "error", err)
		return
	}

	seen := make(map[string]struct{}, len(tasks))
	for _, t := range tasks {
		seen[t.ID] = struct{}{}
		if t.Schedule.Kind == domain.ScheduleEvent {
			continue
		}

		s.mu.Lock()
		existing := s.tasks[t.ID]
		changed := existing == nil || t.NextRun == nil != (existing.NextRun == nil) ||
			(t.NextRun != nil && existing.NextRun != nil && !t.NextRun.Equal(*existing.NextRun))
		s.mu.Unlock()
		if !changed {
			continue
		}

		if t.NextRun == nil {
			next, err := ComputeNext(t.Schedule, time.Now())
			if err != nil {
				s.logger.Error("reconcile: compute next run", "task_id", t.ID, "error", err)
				continue
			}
			t.NextRun = &next
		}

		s.mu.Lock()
		delete(s.current, t.ID)
		s.tasks[t.ID] = t
		s.pushLocked(t.ID, *t.NextRun)
		s.mu.Unlock()
	}

	s.mu.Lock()
	for id := range s.tasks {
		if _, ok := seen[id]; !ok {
			delete(s.tasks, id)
			delete(s.current, id)
		}
	}
	s.mu.Unlock()
}

// fireDue pops and fires every entry whose instant has arrived. A
// backlog built up by a stopped process or a forward clock jump drains
// here in one batch, rate-limited by catchUp so recovery from a long
// outage doesn't spike the Work Queue.
func (s *Scheduler) fireDue(ctx context.Context) {
	now := time.Now()
	var due []*wakeupEntry

	s.mu.Lock()
	for s.h.Len() > 0 && !s.h[0].fireAt.After(now) {
		e := heap.Pop(&s.h).(*wakeupEntry)
		if s.current[e.taskID] != e {
			continue // stale: task was updated/paused/canceled since this entry was pushed
		}
		due = append(due, e)
	}
	s.mu.Unlock()

	for _, e := range due {
		if err := s.catchUp.Wait(ctx); err != nil {
			return
		}
		s.mu.Lock()
		task := s.tasks[e.taskID]
		s.mu.Unlock()
		if task == nil {
			continue
		}
		s.fire(ctx, task)
	}
}

func (s *Scheduler) fire(ctx context.Context, task *domain.Task) {
	runAt := time.Now()
	if task.NextRun != nil {
		runAt = *task.NextRun
	}

	start := time.Now()
	_, ok, err := s.workRepo.Enqueue(ctx, task, runAt, 1)
	metrics.SchedulerLag.Observe(time.Since(start).Seconds())
	if err != nil {
		s.logger.Error("enqueue due work", "task_id", task.ID, "error", err)
		return
	}
	if !ok {
		s.logger.Debug("due work suppressed by dedupe key", "task_id", task.ID)
	} else {
		metrics.TasksCreatedTotal.Inc()
	}

	if task.Schedule.Kind == domain.ScheduleOnce {
		if err := s.taskRepo.SetStatus(ctx, task.ID, task.OwnerID, domain.TaskCompleted); err != nil {
			s.logger.Error("complete one-shot task", "task_id", task.ID, "error", err)
		}
		s.mu.Lock()
		delete(s.tasks, task.ID)
		delete(s.current, task.ID)
		s.mu.Unlock()
		return
	}

	next, err := ComputeNext(task.Schedule, runAt)
	if err != nil {
		s.logger.Error("compute next run", "task_id", task.ID, "error", err)
		return
	}
	task.NextRun = &next
	if err := s.taskRepo.SetNextRun(ctx, task.ID, &next); err != nil {
		s.logger.Error("persist next run", "task_id", task.ID, "error", err)
	}

	s.mu.Lock()
	s.tasks[task.ID] = task
	s.pushLocked(task.ID, next)
	s.mu.Unlock()
}

// OnTaskCreated admits a newly created active task into the trigger
// set, computing its first occurrence if the caller did not already.
func (s *Scheduler) OnTaskCreated(task *domain.Task) {
	if task.Schedule.Kind == domain.ScheduleEvent || task.Status != domain.TaskActive {
		return
	}
	next := task.NextRun
	if next == nil {
		n, err := ComputeNext(task.Schedule, time.Now())
		if err != nil {
			s.logger.Error("compute next run for new task", "task_id", task.ID, "error", err)
			return
		}
		next = &n
		task.NextRun = next
	}

	s.mu.Lock()
	s.tasks[task.ID] = task
	s.pushLocked(task.ID, *next)
	s.mu.Unlock()
	s.nudge()
}

// OnTaskUpdated replaces a task's trigger-set entry; the old heap entry
// goes stale and is dropped when popped, per fireDue's liveness check.
func (s *Scheduler) OnTaskUpdated(task *domain.Task) {
	s.mu.Lock()
	delete(s.current, task.ID)
	delete(s.tasks, task.ID)
	s.mu.Unlock()
	s.OnTaskCreated(task)
}

// OnTaskPausedOrCanceled removes a task from the trigger set.
func (s *Scheduler) OnTaskPausedOrCanceled(taskID string) {
	s.mu.Lock()
	delete(s.current, taskID)
	delete(s.tasks, taskID)
	s.mu.Unlock()
	s.nudge()
}

// RunNow enqueues an immediate DueWork for task outside its regular
// schedule, leaving the trigger-set entry (if any) untouched.
func (s *Scheduler) RunNow(ctx context.Context, task *domain.Task) (*domain.DueWork, error) {
	work, ok, err := s.workRepo.Enqueue(ctx, task, time.Now(), 1)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	metrics.TasksCreatedTotal.Inc()
	return work, nil
}

// Snooze moves a time-driven task's next occurrence to until, replacing
// its trigger-set entry. Event-driven tasks have nothing to snooze.
func (s *Scheduler) Snooze(ctx context.Context, task *domain.Task, until time.Time) error {
	if task.Schedule.Kind == domain.ScheduleEvent {
		return nil
	}
	if err := s.taskRepo.SetNextRun(ctx, task.ID, &until); err != nil {
		return err
	}
	task.NextRun = &until

	s.mu.Lock()
	delete(s.current, task.ID)
	s.tasks[task.ID] = task
	s.pushLocked(task.ID, until)
	s.mu.Unlock()
	s.nudge()
	return nil
}

// OnEvent handles an inbound event from the bus: every active,
// event-triggered task subscribed to event.Topic fires immediately,
// skipping the trigger-set heap entirely. event.ID is checked against
// the durable seen_event dedupe window so an at-least-once bus delivery
// never double-fires a task.
func (s *Scheduler) OnEvent(ctx context.Context, event domain.Event) error {
	admitted, err := s.eventDedupe.MarkSeen(ctx, event.ID, event.Topic)
	if err != nil {
		return err
	}
	if !admitted {
		s.logger.Debug("duplicate event suppressed", "event_id", event.ID, "topic", event.Topic)
		metrics.EventsIngestedTotal.WithLabelValues("duplicate").Inc()
		return nil
	}

	tasks, err := s.taskRepo.ActiveForEventTopic(ctx, event.Topic)
	if err != nil {
		metrics.EventsIngestedTotal.WithLabelValues("error").Inc()
		return err
	}

	for _, task := range tasks {
		if _, _, err := s.workRepo.Enqueue(ctx, task, event.AtTime, 1); err != nil {
			s.logger.Error("enqueue due work for event", "task_id", task.ID, "event_id", event.ID, "error", err)
			continue
		}
	}
	metrics.EventsIngestedTotal.WithLabelValues("admitted").Inc()
	return nil
}
