package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/edgeworks-labs/orbiter/internal/domain"
	"github.com/edgeworks-labs/orbiter/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DueWorkRepository is the pgx-backed Work Queue, grounded directly on
// the teacher's JobRepository.Claim (skip-locked leasing) and
// ScheduleRepository.ClaimAndFire (single-transaction commit of fan-out
// side effects). Every mutating method is either one UPDATE/INSERT
// statement or one transaction guarded by a lease-ownership predicate,
// per spec §4.2's "single statement, not a second round trip" rule.
type DueWorkRepository struct {
	pool *pgxpool.Pool
}

func NewDueWorkRepository(pool *pgxpool.Pool) *DueWorkRepository {
	return &DueWorkRepository{pool: pool}
}

func (r *DueWorkRepository) Enqueue(ctx context.Context, task *domain.Task, runAt time.Time, attempt int) (*domain.DueWork, bool, error) {
	if task.Policy.DedupeKey == nil {
		row := r.pool.QueryRow(ctx, `
			INSERT INTO due_work (task_id, run_at, priority, attempt)
			VALUES ($1, $2, $3, $4)
			RETURNING id, task_id, run_at, priority, created_at, lease_owner, locked_until, attempt`,
			task.ID, runAt, task.Policy.Priority, attempt)
		w, err := scanDueWork(row)
		if err != nil {
			return nil, false, fmt.Errorf("enqueue due work: %w", err)
		}
		return w, true, nil
	}

	// Dedupe: reject if an unleased row for the same task and dedupe_key
	// exists, or a Run for this task finished within the dedupe window.
	// Scoped by task_id so two owners choosing the same dedupe_key string
	// never suppress each other's occurrences.
	row := r.pool.QueryRow(ctx, `
		INSERT INTO due_work (task_id, run_at, priority, attempt)
		SELECT $1, $2, $3, $4
		WHERE NOT EXISTS (
			SELECT 1 FROM due_work dw
			JOIN task t ON t.id = dw.task_id
			WHERE dw.task_id = $1 AND t.dedupe_key = $5 AND dw.lease_owner IS NULL
		)
		AND NOT EXISTS (
			SELECT 1 FROM run r
			JOIN task t ON t.id = r.task_id
			WHERE r.task_id = $1
			  AND t.dedupe_key = $5
			  AND r.finished_at IS NOT NULL
			  AND r.finished_at > $2 - make_interval(secs => $6)
		)
		RETURNING id, task_id, run_at, priority, created_at, lease_owner, locked_until, attempt`,
		task.ID, runAt, task.Policy.Priority, attempt, *task.Policy.DedupeKey, task.Policy.DedupeWindowSeconds)

	w, err := scanDueWork(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("enqueue due work (dedupe): %w", err)
	}
	return w, true, nil
}

// Lease claims the highest-priority, earliest-due, non-concurrency-
// blocked row in one UPDATE ... FOR UPDATE SKIP LOCKED statement, per
// spec §4.2. Concurrency-key admission is an additional NOT EXISTS
// clause in the candidate CTE rather than a second round trip.
func (r *DueWorkRepository) Lease(ctx context.Context, owner string, leaseDuration time.Duration) (*domain.DueWork, error) {
	query := `
		WITH candidate AS (
			SELECT dw.id
			FROM due_work dw
			JOIN task t ON t.id = dw.task_id
			WHERE dw.run_at <= now()
			  AND (dw.lease_owner IS NULL OR dw.locked_until < now())
			  AND (
				t.concurrency_key IS NULL
				OR NOT EXISTS (
					SELECT 1
					FROM due_work dw2
					JOIN task t2 ON t2.id = dw2.task_id
					WHERE t2.concurrency_key = t.concurrency_key
					  AND dw2.id <> dw.id
					  AND dw2.lease_owner IS NOT NULL
					  AND dw2.locked_until >= now()
				)
			  )
			ORDER BY dw.priority DESC, dw.run_at ASC
			LIMIT 1
			FOR UPDATE OF dw SKIP LOCKED
		)
		UPDATE due_work
		SET lease_owner = $1, locked_until = now() + make_interval(secs => $2)
		WHERE id IN (SELECT id FROM candidate)
		RETURNING id, task_id, run_at, priority, created_at, lease_owner, locked_until, attempt`

	row := r.pool.QueryRow(ctx, query, owner, leaseDuration.Seconds())
	w, err := scanDueWork(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("lease due work: %w", err)
	}
	return w, nil
}

func (r *DueWorkRepository) ExtendLease(ctx context.Context, workID, owner string, newLockedUntil time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE due_work SET locked_until = $3 WHERE id = $1 AND lease_owner = $2 AND locked_until >= now()`,
		workID, owner, newLockedUntil)
	if err != nil {
		return false, fmt.Errorf("extend lease: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *DueWorkRepository) Complete(ctx context.Context, workID, owner string, run *domain.Run) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		DELETE FROM due_work WHERE id = $1 AND lease_owner = $2 AND locked_until >= now()`,
		workID, owner)
	if err != nil {
		return fmt.Errorf("delete due work: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrLeaseLost
	}

	if err := insertRun(ctx, tx, run); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *DueWorkRepository) Fail(ctx context.Context, workID, owner string, terminal bool, delay time.Duration, run *domain.Run) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var tag pgconn.CommandTag
	if terminal {
		tag, err = tx.Exec(ctx, `
			DELETE FROM due_work WHERE id = $1 AND lease_owner = $2 AND locked_until >= now()`,
			workID, owner)
	} else {
		tag, err = tx.Exec(ctx, `
			UPDATE due_work
			SET run_at = now() + make_interval(secs => $3),
			    lease_owner = NULL,
			    locked_until = NULL,
			    attempt = attempt + 1
			WHERE id = $1 AND lease_owner = $2 AND locked_until >= now()`,
			workID, owner, delay.Seconds())
	}
	if err != nil {
		return fmt.Errorf("fail due work: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrLeaseLost
	}

	if err := insertRun(ctx, tx, run); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *DueWorkRepository) CountExpiredLeases(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM due_work WHERE lease_owner IS NOT NULL AND locked_until < now()`,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count expired leases: %w", err)
	}
	return n, nil
}

func insertRun(ctx context.Context, tx pgx.Tx, run *domain.Run) error {
	var output []byte
	if run.Output != nil {
		b, err := json.Marshal(run.Output)
		if err != nil {
			return fmt.Errorf("marshal run output: %w", err)
		}
		output = b
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO run (
			id, task_id, due_work_id, lease_owner, leased_until, started_at,
			finished_at, success, skipped, attempt, error, error_kind, output
		) VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		run.TaskID, run.DueWorkID, run.LeaseOwner, run.LeasedUntil, run.StartedAt,
		run.FinishedAt, run.Success, run.Skipped, run.Attempt, run.Error, run.ErrorKind, output,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func scanDueWork(row rowScanner) (*domain.DueWork, error) {
	var w domain.DueWork
	err := row.Scan(&w.ID, &w.TaskID, &w.RunAt, &w.Priority, &w.CreatedAt, &w.LeaseOwner, &w.LockedUntil, &w.Attempt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}
