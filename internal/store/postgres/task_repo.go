package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/edgeworks-labs/orbiter/internal/domain"
	"github.com/edgeworks-labs/orbiter/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TaskRepository is the pgx-backed implementation of repository.TaskRepository,
// grounded on the teacher's JobRepository/ScheduleRepository pair — it
// folds both into one table since a Task carries both a schedule and a
// pipeline payload in this domain.
type TaskRepository struct {
	pool *pgxpool.Pool
}

func NewTaskRepository(pool *pgxpool.Pool) *TaskRepository {
	return &TaskRepository{pool: pool}
}

const taskColumns = `id, owner_id, title, schedule_kind, schedule_expression, timezone,
	payload, priority, max_retries, backoff_strategy, dedupe_key, dedupe_window_seconds,
	concurrency_key, status, next_run_at, created_at, updated_at`

func (r *TaskRepository) Create(ctx context.Context, t *domain.Task) (*domain.Task, error) {
	payload, err := json.Marshal(t.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	query := `
		INSERT INTO task (
			owner_id, title, schedule_kind, schedule_expression, timezone,
			payload, priority, max_retries, backoff_strategy, dedupe_key,
			dedupe_window_seconds, concurrency_key, status, next_run_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING ` + taskColumns

	row := r.pool.QueryRow(ctx, query,
		t.OwnerID, t.Title, t.Schedule.Kind, t.Schedule.Expression, t.Schedule.Timezone,
		payload, t.Policy.Priority, t.Policy.MaxRetries, t.Policy.BackoffStrategy, t.Policy.DedupeKey,
		t.Policy.DedupeWindowSeconds, t.Policy.ConcurrencyKey, t.Status, t.NextRun,
	)

	created, err := scanTask(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrDuplicateTask
		}
		return nil, err
	}
	return created, nil
}

func (r *TaskRepository) GetByID(ctx context.Context, id, ownerID string) (*domain.Task, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM task WHERE id = $1 AND owner_id = $2`, id, ownerID)
	return scanTask(row)
}

func (r *TaskRepository) GetByIDUnscoped(ctx context.Context, id string) (*domain.Task, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM task WHERE id = $1`, id)
	return scanTask(row)
}

func (r *TaskRepository) List(ctx context.Context, input repository.ListTasksInput) ([]*domain.Task, error) {
	args := []any{input.OwnerID}
	where := []string{"owner_id = $1"}

	if input.Status != "" {
		args = append(args, input.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if input.CursorTime != nil {
		args = append(args, *input.CursorTime, input.CursorID)
		where = append(where, fmt.Sprintf("(created_at, id) < ($%d, $%d)", len(args)-1, len(args)))
	}
	limit := input.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)

	query := fmt.Sprintf(`SELECT %s FROM task WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d`,
		taskColumns, strings.Join(where, " AND "), len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (r *TaskRepository) Update(ctx context.Context, t *domain.Task) (*domain.Task, error) {
	payload, err := json.Marshal(t.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	query := `
		UPDATE task SET
			title = $3, schedule_kind = $4, schedule_expression = $5, timezone = $6,
			payload = $7, priority = $8, max_retries = $9, backoff_strategy = $10,
			dedupe_key = $11, dedupe_window_seconds = $12, concurrency_key = $13,
			next_run_at = $14, updated_at = now()
		WHERE id = $1 AND owner_id = $2
		RETURNING ` + taskColumns

	row := r.pool.QueryRow(ctx, query,
		t.ID, t.OwnerID, t.Title, t.Schedule.Kind, t.Schedule.Expression, t.Schedule.Timezone,
		payload, t.Policy.Priority, t.Policy.MaxRetries, t.Policy.BackoffStrategy, t.Policy.DedupeKey,
		t.Policy.DedupeWindowSeconds, t.Policy.ConcurrencyKey, t.NextRun,
	)
	return scanTask(row)
}

func (r *TaskRepository) SetStatus(ctx context.Context, id, ownerID string, status domain.TaskStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE task SET status = $3, updated_at = now() WHERE id = $1 AND owner_id = $2`,
		id, ownerID, status)
	if err != nil {
		return fmt.Errorf("set task status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

func (r *TaskRepository) SetNextRun(ctx context.Context, id string, nextRun *time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE task SET next_run_at = $2, updated_at = now() WHERE id = $1`, id, nextRun)
	if err != nil {
		return fmt.Errorf("set next run: %w", err)
	}
	return nil
}

func (r *TaskRepository) LoadActive(ctx context.Context) ([]*domain.Task, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+taskColumns+` FROM task WHERE status = 'active'`)
	if err != nil {
		return nil, fmt.Errorf("load active tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (r *TaskRepository) ActiveForEventTopic(ctx context.Context, topic string) ([]*domain.Task, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM task WHERE status = 'active' AND schedule_kind = 'event' AND schedule_expression = $1`,
		topic)
	if err != nil {
		return nil, fmt.Errorf("load event tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var t domain.Task
	var payload []byte
	err := row.Scan(
		&t.ID, &t.OwnerID, &t.Title, &t.Schedule.Kind, &t.Schedule.Expression, &t.Schedule.Timezone,
		&payload, &t.Policy.Priority, &t.Policy.MaxRetries, &t.Policy.BackoffStrategy, &t.Policy.DedupeKey,
		&t.Policy.DedupeWindowSeconds, &t.Policy.ConcurrencyKey, &t.Status, &t.NextRun, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}
	if err := json.Unmarshal(payload, &t.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return &t, nil
}
