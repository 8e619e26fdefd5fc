// Package usecase wires the REST facade to the repositories and the
// Scheduler, generalizing the teacher's usecase.ScheduleUsecase from a
// single cron-triggered HTTP callback to the full Task lifecycle
// (cron/rrule/once/event schedules, pipeline payloads, pause/resume/
// cancel/snooze/run_now).
package usecase

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/edgeworks-labs/orbiter/internal/domain"
	"github.com/edgeworks-labs/orbiter/internal/payloadschema"
	"github.com/edgeworks-labs/orbiter/internal/repository"
	"github.com/edgeworks-labs/orbiter/internal/scheduler"
)

// scheduling is the subset of *scheduler.Scheduler the usecase layer
// drives; narrowed to an interface so fakes can stand in for tests.
type scheduling interface {
	OnTaskCreated(task *domain.Task)
	OnTaskUpdated(task *domain.Task)
	OnTaskPausedOrCanceled(taskID string)
	RunNow(ctx context.Context, task *domain.Task) (*domain.DueWork, error)
	Snooze(ctx context.Context, task *domain.Task, until time.Time) error
}

type TaskUsecase struct {
	repo      repository.TaskRepository
	sched     scheduling
	validator *payloadschema.Validator
}

func NewTaskUsecase(repo repository.TaskRepository, sched scheduling, validator *payloadschema.Validator) *TaskUsecase {
	return &TaskUsecase{repo: repo, sched: sched, validator: validator}
}

func (u *TaskUsecase) validatePayload(payload domain.Payload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if err := u.validator.Validate(raw); err != nil {
		return fmt.Errorf("payload schema: %w", err)
	}
	return nil
}

type CreateTaskInput struct {
	OwnerID  string
	Title    string
	Schedule domain.Schedule
	Payload  domain.Payload
	Policy   domain.Policy
}

func (u *TaskUsecase) CreateTask(ctx context.Context, input CreateTaskInput) (*domain.Task, error) {
	if input.Policy.Priority == 0 {
		input.Policy.Priority = 5
	}
	if input.Policy.BackoffStrategy == "" {
		input.Policy.BackoffStrategy = domain.BackoffExponentialJitter
	}

	task := &domain.Task{
		OwnerID:  input.OwnerID,
		Title:    input.Title,
		Schedule: input.Schedule,
		Payload:  input.Payload,
		Policy:   input.Policy,
		Status:   domain.TaskActive,
	}

	if task.Schedule.Kind != domain.ScheduleEvent {
		next, err := scheduler.ComputeNext(task.Schedule, time.Now())
		if err != nil {
			return nil, domain.ErrInvalidSchedule
		}
		task.NextRun = &next
	}

	if err := u.validatePayload(task.Payload); err != nil {
		return nil, err
	}
	if err := task.Validate(); err != nil {
		return nil, err
	}

	created, err := u.repo.Create(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	u.sched.OnTaskCreated(created)
	return created, nil
}

func (u *TaskUsecase) GetTask(ctx context.Context, id, ownerID string) (*domain.Task, error) {
	t, err := u.repo.GetByID(ctx, id, ownerID)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

type ListTasksInput struct {
	OwnerID string
	Status  domain.TaskStatus
	Cursor  string
	Limit   int
}

type ListTasksResult struct {
	Tasks      []*domain.Task
	NextCursor *string
}

type taskCursor struct {
	CreatedAt time.Time `json:"c"`
	ID        string    `json:"i"`
}

func decodeTaskCursor(s string) (*time.Time, string, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, "", fmt.Errorf("decode cursor: %w", err)
	}
	var c taskCursor
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, "", fmt.Errorf("unmarshal cursor: %w", err)
	}
	return &c.CreatedAt, c.ID, nil
}

func encodeTaskCursor(createdAt time.Time, id string) string {
	b, _ := json.Marshal(taskCursor{CreatedAt: createdAt, ID: id})
	return base64.RawURLEncoding.EncodeToString(b)
}

func (u *TaskUsecase) ListTasks(ctx context.Context, input ListTasksInput) (ListTasksResult, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	repoInput := repository.ListTasksInput{
		OwnerID: input.OwnerID,
		Status:  input.Status,
		Limit:   limit + 1,
	}

	if input.Cursor != "" {
		cursorTime, cursorID, err := decodeTaskCursor(input.Cursor)
		if err != nil {
			return ListTasksResult{}, domain.ErrInvalidSchedule
		}
		repoInput.CursorTime = cursorTime
		repoInput.CursorID = cursorID
	}

	tasks, err := u.repo.List(ctx, repoInput)
	if err != nil {
		return ListTasksResult{}, fmt.Errorf("list tasks: %w", err)
	}

	var nextCursor *string
	if len(tasks) == limit+1 {
		last := tasks[limit]
		s := encodeTaskCursor(last.CreatedAt, last.ID)
		nextCursor = &s
		tasks = tasks[:limit]
	}

	return ListTasksResult{Tasks: tasks, NextCursor: nextCursor}, nil
}

type UpdateTaskInput struct {
	ID       string
	OwnerID  string
	Title    string
	Schedule domain.Schedule
	Payload  domain.Payload
	Policy   domain.Policy
}

func (u *TaskUsecase) UpdateTask(ctx context.Context, input UpdateTaskInput) (*domain.Task, error) {
	existing, err := u.repo.GetByID(ctx, input.ID, input.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}

	existing.Title = input.Title
	existing.Schedule = input.Schedule
	existing.Payload = input.Payload
	existing.Policy = input.Policy

	if existing.Schedule.Kind != domain.ScheduleEvent {
		next, err := scheduler.ComputeNext(existing.Schedule, time.Now())
		if err != nil {
			return nil, domain.ErrInvalidSchedule
		}
		existing.NextRun = &next
	} else {
		existing.NextRun = nil
	}

	if err := u.validatePayload(existing.Payload); err != nil {
		return nil, err
	}
	if err := existing.Validate(); err != nil {
		return nil, err
	}

	updated, err := u.repo.Update(ctx, existing)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}

	if updated.Status == domain.TaskActive {
		u.sched.OnTaskUpdated(updated)
	}
	return updated, nil
}

func (u *TaskUsecase) PauseTask(ctx context.Context, id, ownerID string) error {
	t, err := u.repo.GetByID(ctx, id, ownerID)
	if err != nil {
		return fmt.Errorf("get task: %w", err)
	}
	if t.Status == domain.TaskPaused {
		return domain.ErrTaskAlreadyPaused
	}
	if t.Status != domain.TaskActive {
		return domain.ErrTaskNotActive
	}
	if err := u.repo.SetStatus(ctx, id, ownerID, domain.TaskPaused); err != nil {
		return fmt.Errorf("pause task: %w", err)
	}
	u.sched.OnTaskPausedOrCanceled(id)
	return nil
}

func (u *TaskUsecase) ResumeTask(ctx context.Context, id, ownerID string) error {
	t, err := u.repo.GetByID(ctx, id, ownerID)
	if err != nil {
		return fmt.Errorf("get task: %w", err)
	}
	if t.Status != domain.TaskPaused {
		return domain.ErrTaskNotPaused
	}
	if err := u.repo.SetStatus(ctx, id, ownerID, domain.TaskActive); err != nil {
		return fmt.Errorf("resume task: %w", err)
	}
	t.Status = domain.TaskActive
	u.sched.OnTaskCreated(t)
	return nil
}

func (u *TaskUsecase) CancelTask(ctx context.Context, id, ownerID string) error {
	if _, err := u.repo.GetByID(ctx, id, ownerID); err != nil {
		return fmt.Errorf("get task: %w", err)
	}
	if err := u.repo.SetStatus(ctx, id, ownerID, domain.TaskCanceled); err != nil {
		return fmt.Errorf("cancel task: %w", err)
	}
	u.sched.OnTaskPausedOrCanceled(id)
	return nil
}

// maxSnoozeDelay bounds a single snooze call's shift to one week in
// either direction, so a negative delay undoing an earlier snooze lands
// back at the original next-run time rather than overshooting.
const maxSnoozeDelay = 7 * 24 * time.Hour

// SnoozeTask shifts a task's next occurrence forward (or, with a
// negative delaySeconds, backward) by the given delay, without changing
// its underlying schedule expression.
func (u *TaskUsecase) SnoozeTask(ctx context.Context, id, ownerID string, delaySeconds int64) error {
	t, err := u.repo.GetByID(ctx, id, ownerID)
	if err != nil {
		return fmt.Errorf("get task: %w", err)
	}
	if t.Status != domain.TaskActive {
		return domain.ErrTaskNotActive
	}

	delay := time.Duration(delaySeconds) * time.Second
	if delay > maxSnoozeDelay {
		delay = maxSnoozeDelay
	} else if delay < -maxSnoozeDelay {
		delay = -maxSnoozeDelay
	}

	base := time.Now()
	if t.NextRun != nil {
		base = *t.NextRun
	}

	if err := u.sched.Snooze(ctx, t, base.Add(delay)); err != nil {
		return fmt.Errorf("snooze task: %w", err)
	}
	return nil
}

// RunNowTask enqueues an immediate occurrence outside the task's
// regular schedule.
func (u *TaskUsecase) RunNowTask(ctx context.Context, id, ownerID string) (*domain.DueWork, error) {
	t, err := u.repo.GetByID(ctx, id, ownerID)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	if t.Status != domain.TaskActive {
		return nil, domain.ErrTaskNotActive
	}
	work, err := u.sched.RunNow(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("run task now: %w", err)
	}
	return work, nil
}
