package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/edgeworks-labs/orbiter/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RunRepository is read-only: writes happen transactionally inside
// DueWorkRepository.Complete/Fail, grounded on the teacher's
// AttemptRepository.ListByJobID for the read side.
type RunRepository struct {
	pool *pgxpool.Pool
}

func NewRunRepository(pool *pgxpool.Pool) *RunRepository {
	return &RunRepository{pool: pool}
}

const runColumns = `id, task_id, due_work_id, lease_owner, leased_until, started_at,
	finished_at, success, skipped, attempt, error, error_kind, output`

func (r *RunRepository) ListByTaskID(ctx context.Context, taskID string, limit int) ([]*domain.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+runColumns+` FROM run WHERE task_id = $1 ORDER BY started_at DESC LIMIT $2`,
		taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *RunRepository) GetByID(ctx context.Context, id string) (*domain.Run, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM run WHERE id = $1`, id)
	return scanRun(row)
}

func scanRun(row rowScanner) (*domain.Run, error) {
	var run domain.Run
	var output []byte
	err := row.Scan(
		&run.ID, &run.TaskID, &run.DueWorkID, &run.LeaseOwner, &run.LeasedUntil, &run.StartedAt,
		&run.FinishedAt, &run.Success, &run.Skipped, &run.Attempt, &run.Error, &run.ErrorKind, &output,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("run not found")
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	if len(output) > 0 {
		var v domain.Value
		if err := json.Unmarshal(output, &v); err != nil {
			return nil, fmt.Errorf("unmarshal run output: %w", err)
		}
		run.Output = &v
	}
	return &run, nil
}
