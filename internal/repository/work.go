package repository

import (
	"context"
	"errors"
	"time"

	"github.com/edgeworks-labs/orbiter/internal/domain"
)

// DueWorkRepository is the Work Queue's durable half, per spec §4.2.
// Lease, Complete, and Fail each execute as a single statement (or a
// single transaction guarded by the lease-ownership check) so no
// second round trip can race a competing leaser.
type DueWorkRepository interface {
	// Enqueue inserts a new DueWork row for task at runAt, unless the
	// task carries a dedupe_key that collides with an unleased row or a
	// Run finished within the dedupe window; ok is false when suppressed.
	Enqueue(ctx context.Context, task *domain.Task, runAt time.Time, attempt int) (work *domain.DueWork, ok bool, err error)

	// Lease atomically selects one available, non-concurrency-blocked
	// row (highest priority, earliest run_at) and marks it leased to
	// owner until now+leaseDuration. Returns nil, nil when nothing is
	// available.
	Lease(ctx context.Context, owner string, leaseDuration time.Duration) (*domain.DueWork, error)

	// ExtendLease pushes a held lease's locked_until forward, so a
	// pipeline that outruns the original lease duration is not reclaimed
	// out from under the worker still executing it. Returns false if the
	// lease was already lost.
	ExtendLease(ctx context.Context, workID, owner string, newLockedUntil time.Time) (bool, error)

	// Complete deletes the DueWork row and appends a successful Run, but
	// only if owner still holds a live lease on it; otherwise the run is
	// silently discarded (ErrLeaseLost) because a later worker already
	// recovered the row.
	Complete(ctx context.Context, workID, owner string, run *domain.Run) error

	// Fail either re-arms the row (incrementing attempt, clearing the
	// lease, advancing run_at by delay) or, when terminal, deletes it
	// and appends a failed Run — again conditioned on owner still
	// holding the lease.
	Fail(ctx context.Context, workID, owner string, terminal bool, delay time.Duration, run *domain.Run) error

	// CountExpiredLeases reports rows whose lease has expired, for the
	// Reaper's observability metric; recovery itself is implicit.
	CountExpiredLeases(ctx context.Context) (int, error)
}

// ErrLeaseLost is returned by Complete/Fail when the calling worker's
// lease already expired and was (or could be) claimed by another
// worker; the caller must not treat this as a local failure.
var ErrLeaseLost = errors.New("lease lost: row was reclaimed or missing")
