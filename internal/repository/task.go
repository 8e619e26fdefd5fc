package repository

import (
	"context"
	"time"

	"github.com/edgeworks-labs/orbiter/internal/domain"
)

// ListTasksInput paginates an owner's tasks on (created_at DESC, id DESC).
type ListTasksInput struct {
	OwnerID    string
	Status     domain.TaskStatus
	CursorTime *time.Time
	CursorID   string
	Limit      int
}

// TaskRepository is the durable store for Task definitions. The
// Scheduler is the only component allowed to read ActiveForEventTopic
// and LoadActive directly; everything else goes through the owner-
// scoped CRUD operations.
type TaskRepository interface {
	Create(ctx context.Context, task *domain.Task) (*domain.Task, error)
	GetByID(ctx context.Context, id, ownerID string) (*domain.Task, error)

	// GetByIDUnscoped reads a task without an owner check, for internal
	// callers (the Worker Pool loading the task behind a DueWork row)
	// that are not acting on behalf of a particular owner.
	GetByIDUnscoped(ctx context.Context, id string) (*domain.Task, error)
	List(ctx context.Context, input ListTasksInput) ([]*domain.Task, error)
	Update(ctx context.Context, task *domain.Task) (*domain.Task, error)
	SetStatus(ctx context.Context, id, ownerID string, status domain.TaskStatus) error
	SetNextRun(ctx context.Context, id string, nextRun *time.Time) error

	// LoadActive returns every active task, for the Scheduler's
	// restart-time reconstruction of its in-memory trigger set.
	LoadActive(ctx context.Context) ([]*domain.Task, error)

	// ActiveForEventTopic returns active event-triggered tasks whose
	// event_topic matches topic exactly, for event-driven firing.
	ActiveForEventTopic(ctx context.Context, topic string) ([]*domain.Task, error)
}
