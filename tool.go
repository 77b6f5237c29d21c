package agentstream

import (
	"context"
	"encoding/json"
	"time"
)

// Tool is the contract for a model-callable instrument. It is
// provider-agnostic (no knowledge of Anthropic, OpenAI, etc.).
type Tool interface {
	Name() string
	Description() string
	// Parameters returns a valid JSON Schema as map (compatible with model tool definitions).
	Parameters() map[string]any
	// Execute runs the tool with validated input and returns its output
	// payload. emit publishes data events into the exchange's stream while
	// the call is still running; tools may call it zero or more times. If
	// emit returns an error, execution must stop and that error is returned
	// (wrapped as ErrStreamAborted).
	Execute(ctx context.Context, argsJSON []byte, emit EmitFunc) (json.RawMessage, error)
}

// EmitFunc publishes one data event under (topic, id). The id is an upsert
// key: repeated emits with the same pair replace the rendered entity.
type EmitFunc func(topic, id string, payload any) error

// ToolMetadata is implemented by tools created with the builders and provides
// optional per-tool settings. Registry uses Timeout() to override the default
// execution timeout when set; tags, version and the dangerous flag are for
// orchestration or discovery.
type ToolMetadata interface {
	Timeout() time.Duration
	Tags() []string
	Version() string
	IsDangerous() bool
}

// ToolCall is a single execution request as produced by the model.
type ToolCall struct {
	ID       string
	ToolName string
	Args     json.RawMessage
}

// ToolResult is the outcome of one executed call, in call order when produced
// by ExecuteBatch.
type ToolResult struct {
	CallID   string
	ToolName string
	Output   json.RawMessage
	Err      error
}

// ExecutionSummary is passed to the after-execution hook (WithOnAfterExecute)
// when a tool execution finishes, success or error. EventsEmitted counts data
// events that reached the stream.
type ExecutionSummary struct {
	CallID        string
	ToolName      string
	Error         error
	EventsEmitted int
	OutputBytes   int64
}
