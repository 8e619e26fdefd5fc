// Package pipeline implements the deterministic step interpreter from
// spec §4.3: template rendering over a growing {params, steps, now}
// context, tool invocation, per-step retry, and structured failure.
package pipeline

import (
	"time"

	"github.com/edgeworks-labs/orbiter/internal/domain"
)

// Context is the {params, steps, now} mapping from spec §3 that grows
// as a pipeline executes. Steps is an OrderedObject so serialization
// follows step declaration order, per the determinism requirement.
type Context struct {
	Params *domain.OrderedObject
	Steps  *domain.OrderedObject
	Now    time.Time
}

// NewContext seeds params from the task payload merged with per-run
// overrides (run overrides win), per spec §4.3 step 1.
func NewContext(taskParams, runOverrides *domain.OrderedObject, now time.Time) *Context {
	merged := domain.NewOrderedObject()
	if taskParams != nil {
		for _, k := range taskParams.Keys() {
			v, _ := taskParams.Get(k)
			merged.Set(k, v)
		}
	}
	if runOverrides != nil {
		for _, k := range runOverrides.Keys() {
			v, _ := runOverrides.Get(k)
			merged.Set(k, v)
		}
	}
	return &Context{
		Params: merged,
		Steps:  domain.NewOrderedObject(),
		Now:    now,
	}
}

// AsValue projects the context into the Value tree that JMESPath
// expressions and `${...}` templates evaluate against.
func (c *Context) AsValue() domain.Value {
	root := domain.NewOrderedObject()
	root.Set("params", domain.ObjectValue(c.Params))
	root.Set("steps", domain.ObjectValue(c.Steps))
	root.Set("now", domain.StringValue(c.Now.UTC().Format(time.RFC3339Nano)))
	return domain.ObjectValue(root)
}

// FailedStepMarker is the structured shape stored under `steps` when a
// pipeline fails at a given step, as listed under SPEC_FULL's
// supplemented features.
type FailedStepMarker struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
