package scheduler_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/edgeworks-labs/orbiter/internal/domain"
	"github.com/edgeworks-labs/orbiter/internal/repository"
	"github.com/edgeworks-labs/orbiter/internal/scheduler"
)

type fakeTaskRepo struct {
	repository.TaskRepository
	loadActive          func(ctx context.Context) ([]*domain.Task, error)
	activeForEventTopic func(ctx context.Context, topic string) ([]*domain.Task, error)
	setNextRun          func(ctx context.Context, id string, nextRun *time.Time) error
	setStatus           func(ctx context.Context, id, ownerID string, status domain.TaskStatus) error
}

func (r *fakeTaskRepo) LoadActive(ctx context.Context) ([]*domain.Task, error) {
	if r.loadActive == nil {
		return nil, nil
	}
	return r.loadActive(ctx)
}

func (r *fakeTaskRepo) ActiveForEventTopic(ctx context.Context, topic string) ([]*domain.Task, error) {
	return r.activeForEventTopic(ctx, topic)
}

func (r *fakeTaskRepo) SetNextRun(ctx context.Context, id string, nextRun *time.Time) error {
	if r.setNextRun == nil {
		return nil
	}
	return r.setNextRun(ctx, id, nextRun)
}

func (r *fakeTaskRepo) SetStatus(ctx context.Context, id, ownerID string, status domain.TaskStatus) error {
	if r.setStatus == nil {
		return nil
	}
	return r.setStatus(ctx, id, ownerID, status)
}

type fakeWorkRepo struct {
	repository.DueWorkRepository
	enqueued []enqueueCall
	ok       bool
	err      error
}

type enqueueCall struct {
	taskID string
	runAt  time.Time
}

func (r *fakeWorkRepo) Enqueue(_ context.Context, task *domain.Task, runAt time.Time, _ int) (*domain.DueWork, bool, error) {
	r.enqueued = append(r.enqueued, enqueueCall{taskID: task.ID, runAt: runAt})
	if r.err != nil {
		return nil, false, r.err
	}
	return &domain.DueWork{ID: "work-" + task.ID, TaskID: task.ID, RunAt: runAt}, r.ok, nil
}

type fakeDedupe struct {
	repository.EventDedupeRepository
	seen map[string]bool
}

func (d *fakeDedupe) MarkSeen(_ context.Context, id, _ string) (bool, error) {
	if d.seen == nil {
		d.seen = map[string]bool{}
	}
	if d.seen[id] {
		return false, nil
	}
	d.seen[id] = true
	return true, nil
}

func TestRunNow_EnqueuesImmediately(t *testing.T) {
	workRepo := &fakeWorkRepo{ok: true}
	s := scheduler.New(&fakeTaskRepo{}, workRepo, &fakeDedupe{}, discardLogger())

	task := &domain.Task{ID: "task-1", OwnerID: "owner-1"}
	work, err := s.RunNow(context.Background(), task)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if work == nil || work.TaskID != "task-1" {
		t.Errorf("work = %+v, want non-nil for task-1", work)
	}
	if len(workRepo.enqueued) != 1 {
		t.Errorf("enqueued %d times, want 1", len(workRepo.enqueued))
	}
}

func TestRunNow_SuppressedByDedupe_ReturnsNilWork(t *testing.T) {
	workRepo := &fakeWorkRepo{ok: false}
	s := scheduler.New(&fakeTaskRepo{}, workRepo, &fakeDedupe{}, discardLogger())

	work, err := s.RunNow(context.Background(), &domain.Task{ID: "task-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if work != nil {
		t.Errorf("work = %+v, want nil on suppression", work)
	}
}

func TestRunNow_PropagatesEnqueueError(t *testing.T) {
	wantErr := errors.New("db down")
	workRepo := &fakeWorkRepo{err: wantErr}
	s := scheduler.New(&fakeTaskRepo{}, workRepo, &fakeDedupe{}, discardLogger())

	if _, err := s.RunNow(context.Background(), &domain.Task{ID: "task-1"}); !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want %v", err, wantErr)
	}
}

func TestSnooze_EventTask_IsNoop(t *testing.T) {
	taskRepo := &fakeTaskRepo{setNextRun: func(context.Context, string, *time.Time) error {
		t.Error("SetNextRun should not be called for an event-driven task")
		return nil
	}}
	s := scheduler.New(taskRepo, &fakeWorkRepo{}, &fakeDedupe{}, discardLogger())

	task := &domain.Task{ID: "task-1", Schedule: domain.Schedule{Kind: domain.ScheduleEvent}}
	if err := s.Snooze(context.Background(), task, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSnooze_CronTask_PersistsNextRun(t *testing.T) {
	var persisted *time.Time
	taskRepo := &fakeTaskRepo{setNextRun: func(_ context.Context, _ string, nextRun *time.Time) error {
		persisted = nextRun
		return nil
	}}
	s := scheduler.New(taskRepo, &fakeWorkRepo{}, &fakeDedupe{}, discardLogger())

	until := time.Now().Add(2 * time.Hour)
	task := &domain.Task{ID: "task-1", Schedule: domain.Schedule{Kind: domain.ScheduleCron, Expression: "* * * * *", Timezone: "UTC"}}
	if err := s.Snooze(context.Background(), task, until); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if persisted == nil || !persisted.Equal(until) {
		t.Errorf("persisted next run = %v, want %v", persisted, until)
	}
	if task.NextRun == nil || !task.NextRun.Equal(until) {
		t.Errorf("task.NextRun = %v, want %v", task.NextRun, until)
	}
}

func TestOnEvent_DuplicateSuppressed(t *testing.T) {
	called := false
	taskRepo := &fakeTaskRepo{activeForEventTopic: func(context.Context, string) ([]*domain.Task, error) {
		called = true
		return nil, nil
	}}
	dedupe := &fakeDedupe{seen: map[string]bool{"evt-1": true}}
	s := scheduler.New(taskRepo, &fakeWorkRepo{}, dedupe, discardLogger())

	if err := s.OnEvent(context.Background(), domain.Event{ID: "evt-1", Topic: "orders.placed"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Error("ActiveForEventTopic should not be called for a duplicate event")
	}
}

func TestOnEvent_FiresEverySubscribedTask(t *testing.T) {
	taskRepo := &fakeTaskRepo{activeForEventTopic: func(_ context.Context, topic string) ([]*domain.Task, error) {
		if topic != "orders.placed" {
			t.Errorf("topic = %q, want orders.placed", topic)
		}
		return []*domain.Task{{ID: "task-1"}, {ID: "task-2"}}, nil
	}}
	workRepo := &fakeWorkRepo{ok: true}
	s := scheduler.New(taskRepo, workRepo, &fakeDedupe{}, discardLogger())

	if err := s.OnEvent(context.Background(), domain.Event{ID: "evt-1", Topic: "orders.placed", AtTime: time.Now()}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(workRepo.enqueued) != 2 {
		t.Errorf("enqueued %d tasks, want 2", len(workRepo.enqueued))
	}
}

func TestOnTaskPausedOrCanceled_RemovesFromTriggerSet(t *testing.T) {
	s := scheduler.New(&fakeTaskRepo{}, &fakeWorkRepo{}, &fakeDedupe{}, discardLogger())

	task := &domain.Task{
		ID:       "task-1",
		Status:   domain.TaskActive,
		Schedule: domain.Schedule{Kind: domain.ScheduleCron, Expression: "* * * * *", Timezone: "UTC"},
	}
	s.OnTaskCreated(task)
	s.OnTaskPausedOrCanceled(task.ID)
	// No direct accessor for the trigger set; re-creating after removal
	// must not panic or double-register, which OnTaskCreated's own
	// locking would surface as a data race under `go test -race`.
	s.OnTaskCreated(task)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
