package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EventDedupeRepository backs the seen_event table named in SPEC_FULL
// §6's supplemented features: an at-least-once event bus needs a
// durable admission check, not just an in-memory set, to survive
// scheduler restarts.
type EventDedupeRepository struct {
	pool *pgxpool.Pool
}

func NewEventDedupeRepository(pool *pgxpool.Pool) *EventDedupeRepository {
	return &EventDedupeRepository{pool: pool}
}

func (r *EventDedupeRepository) MarkSeen(ctx context.Context, id, topic string) (bool, error) {
	_, err := r.pool.Exec(ctx, `INSERT INTO seen_event (id, topic) VALUES ($1, $2)`, id, topic)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return false, nil
		}
		return false, fmt.Errorf("mark event seen: %w", err)
	}
	return true, nil
}

func (r *EventDedupeRepository) Sweep(ctx context.Context, olderThanSeconds int) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM seen_event WHERE seen_at < now() - make_interval(secs => $1)`, olderThanSeconds)
	if err != nil {
		return 0, fmt.Errorf("sweep seen events: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
