package plandsl

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schema_src/plan_dsl.schema.json
var embeddedSchemaDoc []byte

const schemaResourceURL = "mem://plan_dsl.schema.json"

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(embeddedSchemaDoc))
		if err != nil {
			compileErr = fmt.Errorf("plandsl: decode embedded schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaResourceURL, doc); err != nil {
			compileErr = fmt.Errorf("plandsl: add schema resource: %w", err)
			return
		}
		compiled, compileErr = c.Compile(schemaResourceURL)
	})
	return compiled, compileErr
}

// SchemaDocument returns the raw embedded Plan DSL Draft-7 JSON Schema
// document, for callers (the repair prompt) that need to show the model
// the schema it must satisfy rather than just validate against it.
func SchemaDocument() []byte {
	return embeddedSchemaDoc
}

// StructuralError describes a single Draft-7 schema violation, shaped
// like the validator's broader ValidationError but scoped to this
// package so semval can adapt it without an import cycle.
type StructuralError struct {
	Message   string
	FieldPath string
}

// ValidateStructure checks raw against the embedded Plan DSL Draft-7
// JSON Schema document and returns one StructuralError per violation
// (empty slice if raw is structurally valid).
func ValidateStructure(raw RawPlan) ([]StructuralError, error) {
	schema, err := compiledSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(raw); err != nil {
		ve, ok := err.(*jsonschema.ValidationError)
		if !ok {
			return []StructuralError{{Message: err.Error(), FieldPath: "$"}}, nil
		}
		return flattenValidationError(ve), nil
	}
	return nil, nil
}

func flattenValidationError(ve *jsonschema.ValidationError) []StructuralError {
	var out []StructuralError
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			path := "$"
			if len(e.InstanceLocation) > 0 {
				path = strings.Join(e.InstanceLocation, ".")
			}
			out = append(out, StructuralError{Message: e.Error(), FieldPath: path})
			return
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(ve)
	return out
}
