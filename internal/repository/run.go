package repository

import (
	"context"

	"github.com/edgeworks-labs/orbiter/internal/domain"
)

// RunRepository exposes read access to Run history for the REST facade;
// writes happen inside DueWorkRepository.Complete/Fail so they share a
// transaction with the lease-ownership check.
type RunRepository interface {
	ListByTaskID(ctx context.Context, taskID string, limit int) ([]*domain.Run, error)
	GetByID(ctx context.Context, id string) (*domain.Run, error)
}

// EventDedupeRepository backs the seen_event table: an event id is
// admitted for processing only the first time it is seen within the
// configured window.
type EventDedupeRepository interface {
	// MarkSeen inserts (id, topic); ok is false if id was already seen.
	MarkSeen(ctx context.Context, id, topic string) (ok bool, err error)

	// Sweep deletes rows older than the dedupe window, bounding table growth.
	Sweep(ctx context.Context, olderThanSeconds int) (int, error)
}
