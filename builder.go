package agentstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"
)

// tool is the internal implementation built by NewTool, NewStreamTool, or
// NewDynamicTool.
type tool struct {
	name        string
	description string
	schema      map[string]any
	execute     func(context.Context, []byte, EmitFunc) (json.RawMessage, error)
	opts        toolOptions
}

// NewTool builds a Tool from a typed function that emits no data events.
// Schema and validation are delegated to Extractor[T]. Execute runs
// ParseAndValidate, fn, and marshals the result as the output payload.
// Returns an error if schema generation fails (e.g. unsupported type).
func NewTool[T any, R any](
	name, description string,
	fn func(ctx context.Context, args T) (R, error),
	opts ...ToolOption,
) (Tool, error) {
	return NewStreamTool(name, description, func(ctx context.Context, args T, _ EmitFunc) (R, error) {
		return fn(ctx, args)
	}, opts...)
}

// NewStreamTool builds a Tool from a typed function that may publish data
// events through emit while it runs. Zero emits is valid. If emit returns an
// error, execution must stop and that error is returned wrapped as
// ErrStreamAborted.
func NewStreamTool[T any, R any](
	name, description string,
	fn func(ctx context.Context, args T, emit EmitFunc) (R, error),
	opts ...ToolOption,
) (Tool, error) {
	var o toolOptions
	for _, opt := range opts {
		opt(&o)
	}
	ext, err := NewExtractor[T](o.strict)
	if err != nil {
		return nil, err
	}
	execute := func(ctx context.Context, argsJSON []byte, emit EmitFunc) (json.RawMessage, error) {
		args, err := ext.ParseAndValidate(argsJSON)
		if err != nil {
			return nil, err
		}
		res, err := fn(ctx, args, guardEmit(emit))
		if err != nil {
			return nil, wrapHandlerError(err)
		}
		out, err := json.Marshal(res)
		if err != nil {
			return nil, &SystemError{Err: err}
		}
		return out, nil
	}
	return &tool{
		name:        name,
		description: description,
		schema:      ext.Schema(),
		execute:     execute,
		opts:        o,
	}, nil
}

// NewDynamicTool creates a Tool from a raw JSON Schema map and a function that
// receives schema-validated JSON. Useful for runtime API integration. The
// provided schemaMap is not mutated; a defensive copy is made before any
// modification (e.g. WithStrict).
func NewDynamicTool(
	name, description string,
	schemaMap map[string]any,
	fn func(ctx context.Context, argsJSON []byte, emit EmitFunc) (json.RawMessage, error),
	opts ...ToolOption,
) (Tool, error) {
	var o toolOptions
	for _, opt := range opts {
		opt(&o)
	}
	if schemaMap == nil {
		return nil, fmt.Errorf("dynamic schema map must not be nil")
	}
	if fn == nil {
		return nil, fmt.Errorf("dynamic tool handler must not be nil")
	}
	data, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("failed to deep copy schema map: %w", err)
	}
	var schemaCopy map[string]any
	if err := json.Unmarshal(data, &schemaCopy); err != nil {
		return nil, fmt.Errorf("failed to deep copy schema map: %w", err)
	}
	if o.strict {
		applyStrictMode(schemaCopy)
	}
	stripSchemaIDs(schemaCopy)
	compiled, err := compileRawSchema(schemaCopy)
	if err != nil {
		return nil, fmt.Errorf("failed to compile dynamic schema: %w", err)
	}
	execute := func(ctx context.Context, argsJSON []byte, emit EmitFunc) (json.RawMessage, error) {
		var v any
		if err := json.Unmarshal(argsJSON, &v); err != nil {
			return nil, wrapJSONParseError(err)
		}
		if err := compiled.Validate(v); err != nil {
			return nil, &ClientError{Reason: err.Error(), Err: ErrValidation}
		}
		out, err := fn(ctx, argsJSON, guardEmit(emit))
		if err != nil {
			return nil, wrapHandlerError(err)
		}
		return out, nil
	}
	return &tool{
		name:        name,
		description: description,
		schema:      schemaCopy,
		execute:     execute,
		opts:        o,
	}, nil
}

func (t *tool) Name() string        { return t.name }
func (t *tool) Description() string { return t.description }

// Parameters returns a shallow copy of the JSON Schema (top-level keys only).
// Nested maps are shared; callers must not mutate them.
func (t *tool) Parameters() map[string]any { return maps.Clone(t.schema) }

func (t *tool) Execute(ctx context.Context, argsJSON []byte, emit EmitFunc) (json.RawMessage, error) {
	return t.execute(ctx, argsJSON, emit)
}

func (t *tool) Timeout() time.Duration { return t.opts.timeout }
func (t *tool) Tags() []string         { return append([]string(nil), t.opts.tags...) }
func (t *tool) Version() string        { return t.opts.version }
func (t *tool) IsDangerous() bool      { return t.opts.dangerous }

// guardEmit makes a nil emit a no-op and wraps emit failures as
// ErrStreamAborted so handlers can stop on a closed stream.
func guardEmit(emit EmitFunc) EmitFunc {
	if emit == nil {
		return func(string, string, any) error { return nil }
	}
	return func(topic, id string, payload any) error {
		if err := emit(topic, id, payload); err != nil {
			if errors.Is(err, ErrStreamAborted) || errors.Is(err, ErrStreamClosed) {
				return err
			}
			return fmt.Errorf("%w: %w", ErrStreamAborted, err)
		}
		return nil
	}
}

// wrapHandlerError passes through ClientError, service taxonomy sentinels and
// context cancellation; wraps everything else as SystemError.
func wrapHandlerError(err error) error {
	if err == nil {
		return nil
	}
	if IsClientError(err) || IsSystemError(err) {
		return err
	}
	for _, sentinel := range []error{
		ErrNotFound, ErrUpstream, ErrStreamAborted, ErrStreamClosed,
		ErrDeadlineExceeded, context.Canceled, context.DeadlineExceeded,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	return &SystemError{Err: err}
}

var (
	_ Tool         = (*tool)(nil)
	_ ToolMetadata = (*tool)(nil)
)
