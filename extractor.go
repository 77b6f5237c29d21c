package agentstream

import (
	"encoding/json"
	"maps"

	"github.com/google/jsonschema-go/jsonschema"
)

// Validatable is implemented by argument structs that need custom business
// validation. Called after schema validation and unmarshaling.
type Validatable interface {
	Validate() error
}

// Extractor provides JSON Schema generation and two-layer validation
// (schema + Validatable) for type T without binding to the Tool interface.
// Use it in custom orchestrators that need schema export and validated
// parsing but not the standard execution pipeline.
type Extractor[T any] struct {
	schemaMap map[string]any
	resolved  *jsonschema.Resolved
}

// NewExtractor creates an Extractor for type T. When strict is true, the
// generated schema has additionalProperties: false for all objects and all
// properties required.
func NewExtractor[T any](strict bool) (*Extractor[T], error) {
	schemaMap, resolved, err := generateSchema[T](strict)
	if err != nil {
		return nil, err
	}
	return &Extractor[T]{schemaMap: schemaMap, resolved: resolved}, nil
}

// Schema returns a shallow copy of the JSON Schema (top-level keys only).
// Nested maps are shared; callers must not mutate them.
func (e *Extractor[T]) Schema() map[string]any {
	return maps.Clone(e.schemaMap)
}

// ParseAndValidate deserializes argsJSON into T, runs layer 1 (schema
// validation against the same schema exported to the model) and layer 2
// (Validatable.Validate if T implements it). Returns a ClientError for
// invalid JSON or validation failures so the caller can pass the message to
// the model for self-correction.
func (e *Extractor[T]) ParseAndValidate(argsJSON []byte) (T, error) {
	var zero T
	var v any
	if err := json.Unmarshal(argsJSON, &v); err != nil {
		return zero, wrapJSONParseError(err)
	}
	if err := e.resolved.Validate(v); err != nil {
		return zero, &ClientError{Reason: err.Error(), Err: ErrValidation}
	}
	var args T
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return zero, wrapJSONParseError(err)
	}
	if err := runCustomValidation(&args); err != nil {
		if IsClientError(err) {
			return zero, err
		}
		return zero, &ClientError{Reason: err.Error(), Err: ErrValidation}
	}
	return args, nil
}

// runCustomValidation runs Validatable.Validate against *T so validators with
// pointer receivers can normalize fields (e.g. fill defaults) in place.
func runCustomValidation[T any](args *T) error {
	if v, ok := any(args).(Validatable); ok {
		return v.Validate()
	}
	// T may itself be a pointer type whose methods live on that pointer.
	if v, ok := any(*args).(Validatable); ok {
		return v.Validate()
	}
	return nil
}
