// Package domain holds the persistent types shared across the scheduler,
// queue, worker, and REST facade: Task, DueWork, Run, and Event.
package domain

import (
	"errors"
	"time"
)

var (
	ErrTaskNotFound     = errors.New("task not found")
	ErrDuplicateTask    = errors.New("task with this dedupe key already exists")
	ErrInvalidSchedule  = errors.New("invalid schedule expression")
	ErrTaskNotActive    = errors.New("task is not active")
	ErrTaskAlreadyPaused = errors.New("task is already paused")
	ErrTaskNotPaused    = errors.New("task is not paused")
)

// ScheduleKind discriminates how a Task's next occurrence is computed.
type ScheduleKind string

const (
	ScheduleCron  ScheduleKind = "cron"
	ScheduleRRule ScheduleKind = "rrule"
	ScheduleOnce  ScheduleKind = "once"
	ScheduleEvent ScheduleKind = "event"
)

// Backoff selects the retry delay curve applied between failed attempts
// of the same occurrence.
type Backoff string

const (
	BackoffExponentialJitter Backoff = "exponential_jitter"
	BackoffLinear            Backoff = "linear"
	BackoffFixed             Backoff = "fixed"
)

// TaskStatus is the lifecycle state of a Task.
type TaskStatus string

const (
	TaskActive    TaskStatus = "active"
	TaskPaused    TaskStatus = "paused"
	TaskCanceled  TaskStatus = "canceled"
	TaskCompleted TaskStatus = "completed"
)

// Schedule is the discriminated union {kind, expression, timezone} from
// spec §3. Expression is a cron string, an RRULE body, an RFC-3339
// timestamp, or an event topic, depending on Kind.
type Schedule struct {
	Kind       ScheduleKind `json:"kind"`
	Expression string       `json:"expression"`
	Timezone   string       `json:"timezone"`
}

// Policy groups the retry/priority/dedupe knobs a Task carries.
type Policy struct {
	Priority            int     `json:"priority"`
	MaxRetries          int     `json:"max_retries"`
	BackoffStrategy     Backoff `json:"backoff_strategy"`
	DedupeKey           *string `json:"dedupe_key,omitempty"`
	DedupeWindowSeconds int     `json:"dedupe_window_seconds,omitempty"`
	ConcurrencyKey      *string `json:"concurrency_key,omitempty"`
}

// Task is a persistent declarative unit: schedule + pipeline payload + policy.
type Task struct {
	ID       string     `json:"id"`
	OwnerID  string     `json:"owner_id"`
	Title    string     `json:"title"`
	Schedule Schedule   `json:"schedule"`
	Payload  Payload    `json:"payload"`
	Policy   Policy     `json:"policy"`
	Status   TaskStatus `json:"status"`

	NextRun *time.Time `json:"next_run,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate enforces the invariants in spec §3: event schedules ignore
// timezone, priority is bounded, retries are non-negative.
func (t *Task) Validate() error {
	if t.Policy.Priority < 1 || t.Policy.Priority > 9 {
		return errors.New("priority must be in [1,9]")
	}
	if t.Policy.MaxRetries < 0 {
		return errors.New("max_retries must be >= 0")
	}
	switch t.Schedule.Kind {
	case ScheduleCron, ScheduleRRule, ScheduleOnce:
		if t.Schedule.Timezone == "" {
			return errors.New("timezone is required for cron/rrule/once schedules")
		}
	case ScheduleEvent:
		// timezone is ignored for event schedules
	default:
		return errors.New("unknown schedule kind")
	}
	if len(t.Payload.Pipeline) == 0 {
		return errors.New("payload.pipeline must contain at least one step")
	}
	seen := make(map[string]struct{}, len(t.Payload.Pipeline))
	for _, step := range t.Payload.Pipeline {
		if step.ID == "" {
			return errors.New("every step requires a non-empty id")
		}
		if _, dup := seen[step.ID]; dup {
			return errors.New("duplicate step id: " + step.ID)
		}
		seen[step.ID] = struct{}{}
	}
	return nil
}
