package pipeline

import (
	"context"
	"time"

	"github.com/edgeworks-labs/orbiter/internal/backoff"
	"github.com/edgeworks-labs/orbiter/internal/domain"
	"github.com/edgeworks-labs/orbiter/internal/metrics"
	"github.com/edgeworks-labs/orbiter/internal/orbiterrors"
	"github.com/edgeworks-labs/orbiter/internal/runctx"
	"github.com/edgeworks-labs/orbiter/internal/toolregistry"
	"github.com/edgeworks-labs/orbiter/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = tracing.Tracer("github.com/edgeworks-labs/orbiter/internal/pipeline")

// Engine executes a task's pipeline linearly, per spec §4.3. It is a
// stateless, reusable value: Worker shares one Engine across leases.
type Engine struct {
	Registry           toolregistry.Registry
	DefaultStepTimeout time.Duration
}

func New(registry toolregistry.Registry, defaultStepTimeout time.Duration) *Engine {
	return &Engine{Registry: registry, DefaultStepTimeout: defaultStepTimeout}
}

// Result is the outcome of one pipeline execution.
type Result struct {
	Context    *Context
	Success    bool
	ErrorKind  orbiterrors.Kind
	ErrorMsg   string
	FailedStep *FailedStepMarker
}

// Execute runs task.Payload.Pipeline in declaration order against a
// freshly seeded Context, per spec §4.3's numbered algorithm. now is
// the run's start instant, supplied by the caller (the Worker) so
// re-execution with the same now is byte-identical, per spec §8.
func (e *Engine) Execute(ctx context.Context, task *domain.Task, runParams *domain.OrderedObject, now time.Time) *Result {
	ctx, span := tracer.Start(ctx, "pipeline.execute", trace.WithAttributes(
		attribute.String("task.id", task.ID),
		attribute.Int("pipeline.steps", len(task.Payload.Pipeline)),
	))
	defer span.End()

	pc := NewContext(task.Payload.Params, runParams, now)

	for _, step := range task.Payload.Pipeline {
		stepCtx := runctx.WithStep(ctx, step.ID)

		skip, err := e.shouldSkip(step, pc)
		if err != nil {
			return e.fail(span, pc, step, orbiterrors.KindTemplate, err.Error())
		}
		if skip {
			marker := domain.NewOrderedObject()
			marker.Set("skipped", domain.BoolValue(true))
			pc.Steps.Set(step.OutputKey(), domain.ObjectValue(marker))
			continue
		}

		args, err := RenderObject(step.With, pc)
		if err != nil {
			return e.fail(span, pc, step, orbiterrors.KindTemplate, err.Error())
		}

		output, kind, msg := e.runStepWithRetry(stepCtx, step, domain.ObjectValue(args))
		if kind != "" {
			return e.fail(span, pc, step, kind, msg)
		}
		pc.Steps.Set(step.OutputKey(), output)
	}

	span.SetStatus(codes.Ok, "")
	return &Result{Context: pc, Success: true}
}

func (e *Engine) shouldSkip(step domain.Step, pc *Context) (bool, error) {
	if step.If == nil {
		return false, nil
	}
	rendered, err := Render(*step.If, pc)
	if err != nil {
		return false, err
	}
	return !rendered.Truthy(), nil
}

func (e *Engine) runStepWithRetry(ctx context.Context, step domain.Step, args domain.Value) (domain.Value, orbiterrors.Kind, string) {
	ctx, span := tracer.Start(ctx, "pipeline.step",
		trace.WithAttributes(attribute.String("step.id", step.ID), attribute.String("step.uses", step.Uses)))
	defer span.End()

	maxAttempts := 1
	var strategy domain.Backoff = domain.BackoffExponentialJitter
	if step.Retries != nil {
		maxAttempts = step.Retries.MaxRetries + 1
		strategy = step.Retries.BackoffStrategy
	}

	timeout := e.DefaultStepTimeout
	if step.TimeoutS > 0 {
		timeout = time.Duration(step.TimeoutS) * time.Second
	}

	var lastErr error
	var lastKind orbiterrors.Kind = orbiterrors.KindTool

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		start := time.Now()
		deadline := start.Add(timeout)

		output, err := e.Registry.Invoke(ctx, step.Uses, args, deadline)
		duration := time.Since(start)

		if err == nil {
			metrics.PipelineStepDuration.WithLabelValues(step.Uses, "success").Observe(duration.Seconds())
			span.SetStatus(codes.Ok, "")
			return output, "", ""
		}

		lastErr = err
		lastKind = orbiterrors.KindTool
		if ctx.Err() != nil || errIsDeadlineExceeded(err) {
			lastKind = orbiterrors.KindTimeout
		}
		metrics.PipelineStepDuration.WithLabelValues(step.Uses, "failure").Observe(duration.Seconds())

		if attempt < maxAttempts {
			delay := backoff.Compute(strategy, attempt)
			select {
			case <-ctx.Done():
				span.RecordError(ctx.Err())
				return domain.NullValue(), orbiterrors.KindCanceled, ctx.Err().Error()
			case <-time.After(delay):
			}
		}
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Error())
	return domain.NullValue(), lastKind, lastErr.Error()
}

func errIsDeadlineExceeded(err error) bool {
	return err == context.DeadlineExceeded
}

func (e *Engine) fail(span trace.Span, pc *Context, step domain.Step, kind orbiterrors.Kind, msg string) *Result {
	span.SetStatus(codes.Error, msg)
	marker := &FailedStepMarker{ID: step.ID, Kind: string(kind), Message: msg}
	markerObj := domain.NewOrderedObject()
	markerObj.Set("id", domain.StringValue(marker.ID))
	markerObj.Set("kind", domain.StringValue(marker.Kind))
	markerObj.Set("message", domain.StringValue(marker.Message))
	pc.Steps.Set("failed_step", domain.ObjectValue(markerObj))

	return &Result{
		Context:    pc,
		Success:    false,
		ErrorKind:  kind,
		ErrorMsg:   msg,
		FailedStep: marker,
	}
}
