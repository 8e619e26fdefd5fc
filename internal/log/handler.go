// Package log wraps an slog.Handler to enrich every record with
// context-carried correlation fields, generalizing the teacher's
// request-id-only ContextHandler to also pull the run correlation
// tuple (task_id, run_id, attempt, step_id) out of the context.
package log

import (
	"context"
	"log/slog"

	"github.com/edgeworks-labs/orbiter/internal/requestid"
	"github.com/edgeworks-labs/orbiter/internal/runctx"
)

// ContextHandler wraps an slog.Handler and automatically extracts
// request_id and run-correlation fields from the context of each log
// record before delegating to inner.
type ContextHandler struct {
	inner slog.Handler
}

// NewContextHandler returns a handler that enriches every record with
// context values before delegating to inner.
func NewContextHandler(inner slog.Handler) *ContextHandler {
	return &ContextHandler{inner: inner}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := requestid.FromContext(ctx); id != "" {
		r.AddAttrs(slog.String("request_id", id))
	}
	if f, ok := runctx.FromContext(ctx); ok {
		if f.TaskID != "" {
			r.AddAttrs(slog.String("task_id", f.TaskID))
		}
		if f.RunID != "" {
			r.AddAttrs(slog.String("run_id", f.RunID))
		}
		if f.Attempt != 0 {
			r.AddAttrs(slog.Int("attempt", f.Attempt))
		}
		if f.StepID != "" {
			r.AddAttrs(slog.String("step_id", f.StepID))
		}
	}
	return h.inner.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{inner: h.inner.WithGroup(name)}
}
