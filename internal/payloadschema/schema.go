// Package payloadschema validates a Task.Payload's open-shaped JSON
// document against a fixed schema, the way the teacher's retrieved
// registry.Service validates an agent tool payload: compile once at
// startup, re-validate the same *jsonschema.Schema on every call.
package payloadschema

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schema.json
var schemaBytes []byte

// Validator holds one compiled schema, safe for concurrent use.
type Validator struct {
	schema *jsonschema.Schema
}

func New() (*Validator, error) {
	var schemaDoc any
	if err := json.Unmarshal(schemaBytes, &schemaDoc); err != nil {
		return nil, fmt.Errorf("unmarshal payload schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("payload.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add payload schema resource: %w", err)
	}
	schema, err := c.Compile("payload.json")
	if err != nil {
		return nil, fmt.Errorf("compile payload schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// Validate checks raw (a Task.Payload marshaled to JSON) against the
// compiled schema.
func (v *Validator) Validate(raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	return v.schema.Validate(doc)
}
