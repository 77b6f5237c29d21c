package agentstream

import (
	"encoding/json"
	"fmt"
)

// EventKind discriminates the wire event union.
type EventKind string

const (
	KindTextDelta  EventKind = "text-delta"
	KindToolInput  EventKind = "tool-input-available"
	KindToolOutput EventKind = "tool-output-available"
	KindData       EventKind = "data-event"
	KindError      EventKind = "error"
)

// Event is the atomic unit on the streaming wire. One flat struct covers the
// whole union; Kind selects which fields are meaningful. Unused fields are
// omitted from JSON.
type Event struct {
	Kind EventKind `json:"kind"`

	// KindTextDelta
	Text string `json:"text,omitempty"`

	// KindToolInput / KindToolOutput
	ToolCallID string          `json:"toolCallId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`

	// KindData. ID is an upsert key: a later event with the same (Topic, ID)
	// replaces the rendered entity.
	Topic string          `json:"topic,omitempty"`
	ID    string          `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`

	// KindError. Terminal for the exchange.
	Message string `json:"message,omitempty"`
}

// TextDelta builds an incremental token chunk event.
func TextDelta(text string) Event {
	return Event{Kind: KindTextDelta, Text: text}
}

// ToolInput builds the event announcing a model-requested tool call.
func ToolInput(callID, toolName string, input json.RawMessage) Event {
	return Event{Kind: KindToolInput, ToolCallID: callID, ToolName: toolName, Input: input}
}

// ToolOutput builds the completion event for the call identified by callID.
func ToolOutput(callID string, output json.RawMessage) Event {
	return Event{Kind: KindToolOutput, ToolCallID: callID, Output: output}
}

// DataEvent builds an application data event under topic/id. payload is
// marshaled at construction so malformed payloads fail at the producer, not
// at render time.
func DataEvent(topic, id string, payload any) (Event, error) {
	if topic == "" || id == "" {
		return Event{}, fmt.Errorf("data event requires topic and id")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", topic, err)
	}
	return Event{Kind: KindData, Topic: topic, ID: id, Data: data}, nil
}

// ErrorEvent builds the terminal error event for an exchange.
func ErrorEvent(message string) Event {
	return Event{Kind: KindError, Message: message}
}

// IsTerminal reports whether no further events follow this one.
func (e Event) IsTerminal() bool { return e.Kind == KindError }
