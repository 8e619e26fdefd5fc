// Package toolregistry resolves a Step's `uses` address to a callable
// handler, per spec §6: "resolves `uses` addresses through a registry
// exposing invoke(address, args, deadline) → json | error." The
// registry may be a stub that echoes inputs (for testing); real tool
// execution is delivered by out-of-scope extensions.
package toolregistry

import (
	"context"
	"time"

	"github.com/edgeworks-labs/orbiter/internal/domain"
)

// Registry resolves a tool address to a handler and invokes it with a
// deadline-bound, cancellable call.
type Registry interface {
	Invoke(ctx context.Context, address string, args domain.Value, deadline time.Time) (domain.Value, error)
}

// Handler is the function shape a tool address resolves to.
type Handler func(ctx context.Context, args domain.Value) (domain.Value, error)

// EchoRegistry is the stub registry named in spec §6: every address
// reflects its input arguments back as output. Useful for testing
// pipelines end to end without wiring a real tool adapter.
type EchoRegistry struct{}

func NewEchoRegistry() *EchoRegistry { return &EchoRegistry{} }

func (r *EchoRegistry) Invoke(ctx context.Context, _ string, args domain.Value, deadline time.Time) (domain.Value, error) {
	callCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	select {
	case <-callCtx.Done():
		return domain.NullValue(), callCtx.Err()
	default:
		return args, nil
	}
}

// StaticRegistry dispatches to a fixed map of in-process handlers,
// registered by address — used to compose EchoRegistry-style testing
// tools with real adapters such as HTTPRegistry under one interface.
type StaticRegistry struct {
	handlers map[string]Handler
	fallback Registry
}

func NewStaticRegistry(fallback Registry) *StaticRegistry {
	return &StaticRegistry{handlers: make(map[string]Handler), fallback: fallback}
}

func (r *StaticRegistry) Register(address string, h Handler) {
	r.handlers[address] = h
}

func (r *StaticRegistry) Invoke(ctx context.Context, address string, args domain.Value, deadline time.Time) (domain.Value, error) {
	if h, ok := r.handlers[address]; ok {
		callCtx, cancel := context.WithDeadline(ctx, deadline)
		defer cancel()
		return h(callCtx, args)
	}
	if r.fallback != nil {
		return r.fallback.Invoke(ctx, address, args, deadline)
	}
	return domain.NullValue(), &unknownAddressError{address: address}
}

type unknownAddressError struct{ address string }

func (e *unknownAddressError) Error() string {
	return "toolregistry: no handler registered for address " + e.address
}
