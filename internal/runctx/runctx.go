// Package runctx carries the {task_id, run_id, attempt, step_id} tuple
// spec §6 requires on every log record through a context.Context, the
// way internal/requestid carries an HTTP request id. The Pipeline
// Engine and Worker set these values; internal/log's ContextHandler and
// the OpenTelemetry span attributes both read them back out.
package runctx

import "context"

type ctxKey struct{}

// Fields is the correlation tuple attached to a run's context.
type Fields struct {
	TaskID  string
	RunID   string
	Attempt int
	StepID  string // empty outside of step execution
}

func With(ctx context.Context, f Fields) context.Context {
	return context.WithValue(ctx, ctxKey{}, f)
}

// WithStep returns a copy of ctx with StepID set, preserving the rest of
// the fields already attached.
func WithStep(ctx context.Context, stepID string) context.Context {
	f, _ := ctx.Value(ctxKey{}).(Fields)
	f.StepID = stepID
	return With(ctx, f)
}

func FromContext(ctx context.Context) (Fields, bool) {
	f, ok := ctx.Value(ctxKey{}).(Fields)
	return f, ok
}
