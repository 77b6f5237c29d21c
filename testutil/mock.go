// Package testutil provides test helpers for agentstream (e.g. MockTool).
package testutil

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/skosovsky/agentstream"
)

// MockTool is a configurable Tool implementation for tests.
type MockTool struct {
	NameVal   string
	DescVal   string
	ParamsVal map[string]any
	ExecuteFn func(ctx context.Context, args []byte, emit agentstream.EmitFunc) (json.RawMessage, error)
}

// Name returns the tool name.
func (m *MockTool) Name() string {
	if m.NameVal != "" {
		return m.NameVal
	}
	return "mock"
}

// Description returns the tool description.
func (m *MockTool) Description() string {
	return m.DescVal
}

// Parameters returns the parameters schema (or empty map).
func (m *MockTool) Parameters() map[string]any {
	if m.ParamsVal != nil {
		return m.ParamsVal
	}
	return map[string]any{}
}

// Execute runs ExecuteFn if set, otherwise returns an empty object.
func (m *MockTool) Execute(ctx context.Context, args []byte, emit agentstream.EmitFunc) (json.RawMessage, error) {
	if m.ExecuteFn != nil {
		return m.ExecuteFn(ctx, args, emit)
	}
	return json.RawMessage(`{}`), nil
}

// Ensure MockTool implements Tool.
var _ agentstream.Tool = (*MockTool)(nil)

// EmittedEvent is one recorded emit call.
type EmittedEvent struct {
	Topic   string
	ID      string
	Payload any
}

// EmitRecorder collects data events emitted during a test. Safe for
// concurrent use.
type EmitRecorder struct {
	mu     sync.Mutex
	events []EmittedEvent
	err    error
}

// Emit is the agentstream.EmitFunc to pass into the code under test.
func (r *EmitRecorder) Emit(topic, id string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, EmittedEvent{Topic: topic, ID: id, Payload: payload})
	return nil
}

// FailWith makes subsequent Emit calls return err.
func (r *EmitRecorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Events returns a copy of the recorded events.
func (r *EmitRecorder) Events() []EmittedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EmittedEvent, len(r.events))
	copy(out, r.events)
	return out
}
