// Package tracing sets up the process-wide OpenTelemetry tracer provider
// used by the pipeline engine to emit a span per step execution.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Init installs a process-wide TracerProvider tagged with serviceName and
// registers it with the global otel package, so Tracer(name) below (and
// any library instrumentation) picks it up without threading a provider
// through every call site. Exporting is left to the operator: attach a
// span processor via WithSpanProcessor to ship spans to a backend; with
// none attached, spans are created and timed but go nowhere, which is a
// safe default for local development.
func Init(serviceName string) (shutdown func(context.Context) error, err error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// Tracer returns the named tracer from the globally installed provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
