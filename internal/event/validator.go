package event

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/pulse-events/loadgen/pkg/jsonschema"
)

//go:embed schema/event.json
var eventSchema string

// Validator checks events against the ingestion contract's JSON Schema.
// It is safe for concurrent use.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the embedded event schema.
func NewValidator() (*Validator, error) {
	schema, err := jsonschema.Compile("event.json", eventSchema)
	if err != nil {
		return nil, fmt.Errorf("compile event schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// Validate checks an encoded event document.
func (v *Validator) Validate(doc []byte) error {
	return v.schema.Validate(doc)
}

// ValidateEvent encodes e and validates the result.
func (v *Validator) ValidateEvent(e Event) error {
	doc, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return v.Validate(doc)
}
