package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/edgeworks-labs/orbiter/internal/domain"
	"github.com/edgeworks-labs/orbiter/internal/payloadschema"
	"github.com/edgeworks-labs/orbiter/internal/repository"
	"github.com/edgeworks-labs/orbiter/internal/usecase"
)

// ---- fakes ----

type fakeTaskRepo struct {
	create             func(ctx context.Context, task *domain.Task) (*domain.Task, error)
	getByID            func(ctx context.Context, id, ownerID string) (*domain.Task, error)
	getByIDUnscoped    func(ctx context.Context, id string) (*domain.Task, error)
	list               func(ctx context.Context, input repository.ListTasksInput) ([]*domain.Task, error)
	update             func(ctx context.Context, task *domain.Task) (*domain.Task, error)
	setStatus          func(ctx context.Context, id, ownerID string, status domain.TaskStatus) error
	setNextRun         func(ctx context.Context, id string, nextRun *time.Time) error
	loadActive         func(ctx context.Context) ([]*domain.Task, error)
	activeForEventTopic func(ctx context.Context, topic string) ([]*domain.Task, error)
}

func (r *fakeTaskRepo) Create(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	return r.create(ctx, task)
}
func (r *fakeTaskRepo) GetByID(ctx context.Context, id, ownerID string) (*domain.Task, error) {
	return r.getByID(ctx, id, ownerID)
}
func (r *fakeTaskRepo) GetByIDUnscoped(ctx context.Context, id string) (*domain.Task, error) {
	return r.getByIDUnscoped(ctx, id)
}
func (r *fakeTaskRepo) List(ctx context.Context, input repository.ListTasksInput) ([]*domain.Task, error) {
	return r.list(ctx, input)
}
func (r *fakeTaskRepo) Update(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	return r.update(ctx, task)
}
func (r *fakeTaskRepo) SetStatus(ctx context.Context, id, ownerID string, status domain.TaskStatus) error {
	return r.setStatus(ctx, id, ownerID, status)
}
func (r *fakeTaskRepo) SetNextRun(ctx context.Context, id string, nextRun *time.Time) error {
	return r.setNextRun(ctx, id, nextRun)
}
func (r *fakeTaskRepo) LoadActive(ctx context.Context) ([]*domain.Task, error) {
	return r.loadActive(ctx)
}
func (r *fakeTaskRepo) ActiveForEventTopic(ctx context.Context, topic string) ([]*domain.Task, error) {
	return r.activeForEventTopic(ctx, topic)
}

type fakeScheduler struct {
	created  []*domain.Task
	updated  []*domain.Task
	stopped  []string
	runNow   func(ctx context.Context, task *domain.Task) (*domain.DueWork, error)
	snooze   func(ctx context.Context, task *domain.Task, until time.Time) error
}

func (s *fakeScheduler) OnTaskCreated(task *domain.Task)          { s.created = append(s.created, task) }
func (s *fakeScheduler) OnTaskUpdated(task *domain.Task)          { s.updated = append(s.updated, task) }
func (s *fakeScheduler) OnTaskPausedOrCanceled(taskID string)     { s.stopped = append(s.stopped, taskID) }
func (s *fakeScheduler) RunNow(ctx context.Context, task *domain.Task) (*domain.DueWork, error) {
	return s.runNow(ctx, task)
}
func (s *fakeScheduler) Snooze(ctx context.Context, task *domain.Task, until time.Time) error {
	return s.snooze(ctx, task, until)
}

func newValidator(t *testing.T) *payloadschema.Validator {
	t.Helper()
	v, err := payloadschema.New()
	if err != nil {
		t.Fatalf("payloadschema.New: %v", err)
	}
	return v
}

func validPayload() domain.Payload {
	return domain.Payload{Pipeline: []domain.Step{{ID: "step-1", Uses: "http"}}}
}

// ---- CreateTask ----

func TestCreateTask_ComputesNextRunAndNotifiesScheduler(t *testing.T) {
	repo := &fakeTaskRepo{
		create: func(_ context.Context, task *domain.Task) (*domain.Task, error) {
			task.ID = "task-1"
			return task, nil
		},
	}
	sched := &fakeScheduler{}
	uc := usecase.NewTaskUsecase(repo, sched, newValidator(t))

	task, err := uc.CreateTask(context.Background(), usecase.CreateTaskInput{
		OwnerID:  "owner-1",
		Title:    "every-minute",
		Schedule: domain.Schedule{Kind: domain.ScheduleCron, Expression: "* * * * *", Timezone: "UTC"},
		Payload:  validPayload(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.NextRun == nil {
		t.Fatal("cron task should have a computed NextRun")
	}
	if len(sched.created) != 1 || sched.created[0].ID != "task-1" {
		t.Errorf("scheduler.OnTaskCreated was not called with the created task")
	}
}

func TestCreateTask_EventScheduleHasNoNextRun(t *testing.T) {
	repo := &fakeTaskRepo{
		create: func(_ context.Context, task *domain.Task) (*domain.Task, error) {
			return task, nil
		},
	}
	uc := usecase.NewTaskUsecase(repo, &fakeScheduler{}, newValidator(t))

	task, err := uc.CreateTask(context.Background(), usecase.CreateTaskInput{
		OwnerID:  "owner-1",
		Title:    "on-order-placed",
		Schedule: domain.Schedule{Kind: domain.ScheduleEvent, Expression: "orders.placed"},
		Payload:  validPayload(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.NextRun != nil {
		t.Errorf("event-triggered task should have no NextRun, got %v", task.NextRun)
	}
}

func TestCreateTask_InvalidPayloadRejected(t *testing.T) {
	uc := usecase.NewTaskUsecase(&fakeTaskRepo{}, &fakeScheduler{}, newValidator(t))

	_, err := uc.CreateTask(context.Background(), usecase.CreateTaskInput{
		OwnerID:  "owner-1",
		Title:    "empty-pipeline",
		Schedule: domain.Schedule{Kind: domain.ScheduleCron, Expression: "* * * * *", Timezone: "UTC"},
		Payload:  domain.Payload{Pipeline: nil},
	})
	if err == nil {
		t.Fatal("expected an error for a payload with an empty pipeline")
	}
}

func TestCreateTask_InvalidScheduleRejected(t *testing.T) {
	uc := usecase.NewTaskUsecase(&fakeTaskRepo{}, &fakeScheduler{}, newValidator(t))

	_, err := uc.CreateTask(context.Background(), usecase.CreateTaskInput{
		OwnerID:  "owner-1",
		Title:    "bad-cron",
		Schedule: domain.Schedule{Kind: domain.ScheduleCron, Expression: "not a cron", Timezone: "UTC"},
		Payload:  validPayload(),
	})
	if !errors.Is(err, domain.ErrInvalidSchedule) {
		t.Errorf("want ErrInvalidSchedule, got %v", err)
	}
}

// ---- PauseTask / ResumeTask / CancelTask ----

func TestPauseTask_AlreadyPaused(t *testing.T) {
	repo := &fakeTaskRepo{
		getByID: func(_ context.Context, id, ownerID string) (*domain.Task, error) {
			return &domain.Task{ID: id, OwnerID: ownerID, Status: domain.TaskPaused}, nil
		},
	}
	uc := usecase.NewTaskUsecase(repo, &fakeScheduler{}, newValidator(t))

	err := uc.PauseTask(context.Background(), "task-1", "owner-1")
	if !errors.Is(err, domain.ErrTaskAlreadyPaused) {
		t.Errorf("want ErrTaskAlreadyPaused, got %v", err)
	}
}

func TestPauseTask_NotifiesScheduler(t *testing.T) {
	repo := &fakeTaskRepo{
		getByID: func(_ context.Context, id, ownerID string) (*domain.Task, error) {
			return &domain.Task{ID: id, OwnerID: ownerID, Status: domain.TaskActive}, nil
		},
		setStatus: func(_ context.Context, _, _ string, _ domain.TaskStatus) error { return nil },
	}
	sched := &fakeScheduler{}
	uc := usecase.NewTaskUsecase(repo, sched, newValidator(t))

	if err := uc.PauseTask(context.Background(), "task-1", "owner-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sched.stopped) != 1 || sched.stopped[0] != "task-1" {
		t.Errorf("scheduler.OnTaskPausedOrCanceled was not called with task-1")
	}
}

// ---- RunNowTask / SnoozeTask ----

func TestRunNowTask_RejectsNonActiveTask(t *testing.T) {
	repo := &fakeTaskRepo{
		getByID: func(_ context.Context, id, ownerID string) (*domain.Task, error) {
			return &domain.Task{ID: id, OwnerID: ownerID, Status: domain.TaskPaused}, nil
		},
	}
	uc := usecase.NewTaskUsecase(repo, &fakeScheduler{}, newValidator(t))

	_, err := uc.RunNowTask(context.Background(), "task-1", "owner-1")
	if !errors.Is(err, domain.ErrTaskNotActive) {
		t.Errorf("want ErrTaskNotActive, got %v", err)
	}
}

func TestRunNowTask_DelegatesToScheduler(t *testing.T) {
	want := &domain.DueWork{ID: "work-1"}
	repo := &fakeTaskRepo{
		getByID: func(_ context.Context, id, ownerID string) (*domain.Task, error) {
			return &domain.Task{ID: id, OwnerID: ownerID, Status: domain.TaskActive}, nil
		},
	}
	sched := &fakeScheduler{
		runNow: func(_ context.Context, task *domain.Task) (*domain.DueWork, error) {
			if task.ID != "task-1" {
				t.Errorf("RunNow called with task %q, want task-1", task.ID)
			}
			return want, nil
		},
	}
	uc := usecase.NewTaskUsecase(repo, sched, newValidator(t))

	got, err := uc.RunNowTask(context.Background(), "task-1", "owner-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Errorf("RunNowTask returned %v, want %v", got, want)
	}
}

func TestSnoozeTask_RejectsNonActiveTask(t *testing.T) {
	repo := &fakeTaskRepo{
		getByID: func(_ context.Context, id, ownerID string) (*domain.Task, error) {
			return &domain.Task{ID: id, OwnerID: ownerID, Status: domain.TaskCanceled}, nil
		},
	}
	uc := usecase.NewTaskUsecase(repo, &fakeScheduler{}, newValidator(t))

	err := uc.SnoozeTask(context.Background(), "task-1", "owner-1", 3600)
	if !errors.Is(err, domain.ErrTaskNotActive) {
		t.Errorf("want ErrTaskNotActive, got %v", err)
	}
}

func TestSnoozeTask_DelaysFromCurrentNextRun(t *testing.T) {
	nextRun := time.Now().Add(10 * time.Minute)
	repo := &fakeTaskRepo{
		getByID: func(_ context.Context, id, ownerID string) (*domain.Task, error) {
			return &domain.Task{ID: id, OwnerID: ownerID, Status: domain.TaskActive, NextRun: &nextRun}, nil
		},
	}
	var gotUntil time.Time
	sched := &fakeScheduler{
		snooze: func(_ context.Context, _ *domain.Task, until time.Time) error {
			gotUntil = until
			return nil
		},
	}
	uc := usecase.NewTaskUsecase(repo, sched, newValidator(t))

	if err := uc.SnoozeTask(context.Background(), "task-1", "owner-1", 300); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := nextRun.Add(300 * time.Second)
	if !gotUntil.Equal(want) {
		t.Errorf("Snooze called with until=%v, want %v", gotUntil, want)
	}
}

func TestSnoozeTask_ClampsDelayToOneWeek(t *testing.T) {
	nextRun := time.Now()
	repo := &fakeTaskRepo{
		getByID: func(_ context.Context, id, ownerID string) (*domain.Task, error) {
			return &domain.Task{ID: id, OwnerID: ownerID, Status: domain.TaskActive, NextRun: &nextRun}, nil
		},
	}
	var gotUntil time.Time
	sched := &fakeScheduler{
		snooze: func(_ context.Context, _ *domain.Task, until time.Time) error {
			gotUntil = until
			return nil
		},
	}
	uc := usecase.NewTaskUsecase(repo, sched, newValidator(t))

	const farDelaySeconds = int64(30 * 24 * 60 * 60) // 30 days, beyond the one-week cap
	if err := uc.SnoozeTask(context.Background(), "task-1", "owner-1", farDelaySeconds); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := nextRun.Add(7 * 24 * time.Hour)
	if !gotUntil.Equal(want) {
		t.Errorf("Snooze called with until=%v, want capped %v", gotUntil, want)
	}
}

// ---- ListTasks cursor round-trip ----

func TestListTasks_ReturnsNextCursorWhenMoreRowsExist(t *testing.T) {
	now := time.Now()
	repo := &fakeTaskRepo{
		list: func(_ context.Context, input repository.ListTasksInput) ([]*domain.Task, error) {
			if input.Limit != 3 {
				t.Errorf("repo List limit = %d, want 3 (page size + 1)", input.Limit)
			}
			tasks := make([]*domain.Task, input.Limit)
			for i := range tasks {
				tasks[i] = &domain.Task{ID: string(rune('a' + i)), CreatedAt: now.Add(time.Duration(-i) * time.Minute)}
			}
			return tasks, nil
		},
	}
	uc := usecase.NewTaskUsecase(repo, &fakeScheduler{}, newValidator(t))

	result, err := uc.ListTasks(context.Background(), usecase.ListTasksInput{OwnerID: "owner-1", Limit: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Tasks) != 2 {
		t.Fatalf("got %d tasks, want 2 (page trimmed to limit)", len(result.Tasks))
	}
	if result.NextCursor == nil {
		t.Fatal("expected a next cursor since a third row existed")
	}
}
