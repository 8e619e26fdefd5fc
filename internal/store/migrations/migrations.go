// Package migrations embeds the schema history for the task, due_work,
// run, and seen_event tables and applies it with goose. The pack's
// teacher runs against a schema it never version-controls in Go; goose
// is the idiomatic ecosystem choice for a durable, restart-safe schema
// rollout, matching the persisted-state layout in SPEC_FULL §6.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed sql/*.sql
var fs embed.FS

// Up applies every pending migration using db, a *sql.DB opened with
// the pgx stdlib driver (database/sql, not pgxpool — goose drives plain
// connections, so callers keep pgxpool for the hot read/write path and
// open a short-lived *sql.DB just for migration runs).
func Up(db *sql.DB) error {
	goose.SetBaseFS(fs)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "sql"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
