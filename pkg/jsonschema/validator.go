// Package jsonschema compiles JSON Schemas once and validates documents
// against them.
package jsonschema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ValidationErrors represents a collection of validation errors
type ValidationErrors []error

// Error implements the error interface for ValidationErrors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	for i, err := range ve {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Schema is a compiled JSON Schema. It is safe for concurrent use.
type Schema struct {
	compiled *jsonschema.Schema
}

// Compile compiles schemaStr. The resource name is only used in error
// messages and $ref resolution.
func Compile(name, schemaStr string) (*Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	if err := compiler.AddResource(name, strings.NewReader(schemaStr)); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}

	compiled, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return &Schema{compiled: compiled}, nil
}

// Validate checks a JSON document. It returns nil when the document is
// valid and ValidationErrors listing every violation otherwise.
func (s *Schema) Validate(doc []byte) error {
	var data interface{}
	if err := json.Unmarshal(doc, &data); err != nil {
		return ValidationErrors{fmt.Errorf("invalid JSON: %w", err)}
	}

	err := s.compiled.Validate(data)
	if err == nil {
		return nil
	}

	var validationErr *jsonschema.ValidationError
	if errors.As(err, &validationErr) {
		return extractValidationErrors(validationErr)
	}
	return ValidationErrors{err}
}

// extractValidationErrors flattens a jsonschema.ValidationError tree
func extractValidationErrors(err *jsonschema.ValidationError) ValidationErrors {
	var errs ValidationErrors

	if err.Message != "" {
		errs = append(errs, fmt.Errorf("validation error at %s: %s", err.InstanceLocation, err.Message))
	}
	for _, childErr := range err.Causes {
		errs = append(errs, extractValidationErrors(childErr)...)
	}

	return errs
}
