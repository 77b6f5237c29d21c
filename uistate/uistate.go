// Package uistate folds exchange events into client-side view state: the
// message transcript, per-call tool outputs, and the latest data-event
// payload per topic and id.
package uistate

import (
	"encoding/json"

	"github.com/skosovsky/agentstream"
)

// Status is the lifecycle of one exchange as seen by the client.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRequested Status = "requested"
	StatusStreaming Status = "streaming"
	StatusDone      Status = "done"
	StatusError     Status = "error"
)

// PartKind discriminates message parts.
type PartKind string

const (
	PartText     PartKind = "text"
	PartToolCall PartKind = "tool-call"
)

// Part is one segment of a message: either accumulated text or a tool call
// requested by the assistant.
type Part struct {
	Kind PartKind `json:"kind"`

	// text part
	Text string `json:"text,omitempty"`

	// tool-call part
	ToolCallID string          `json:"toolCallId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
}

// Message is one transcript entry.
type Message struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// State accumulates the effect of one exchange's event stream. It is a plain
// value-semantics fold: construct with NewState, feed events with Apply, and
// read through the accessors. Not safe for concurrent use.
type State struct {
	Messages     []Message
	Status       Status
	ErrorMessage string

	outputs map[string]json.RawMessage
	data    map[string]map[string]json.RawMessage
	log     []agentstream.Event
}

// NewState returns an idle state with no transcript.
func NewState() *State {
	return &State{
		Status:  StatusIdle,
		outputs: make(map[string]json.RawMessage),
		data:    make(map[string]map[string]json.RawMessage),
	}
}

// Start records the user's message and marks the exchange requested.
func (s *State) Start(userMessage string) {
	s.Messages = append(s.Messages, Message{
		Role:  "user",
		Parts: []Part{{Kind: PartText, Text: userMessage}},
	})
	s.Status = StatusRequested
	s.ErrorMessage = ""
}

// Apply folds one event into the state. Every event is appended to the raw
// log; after a terminal error only the log grows, structural state is frozen.
func (s *State) Apply(ev agentstream.Event) {
	s.log = append(s.log, ev)
	if s.Status == StatusError {
		return
	}
	if s.Status == StatusRequested {
		s.Status = StatusStreaming
	}

	switch ev.Kind {
	case agentstream.KindTextDelta:
		s.appendText(ev.Text)
	case agentstream.KindToolInput:
		s.appendPart(Part{
			Kind:       PartToolCall,
			ToolCallID: ev.ToolCallID,
			ToolName:   ev.ToolName,
			Input:      ev.Input,
		})
	case agentstream.KindToolOutput:
		// Outputs live in the lookup map, not the transcript.
		s.outputs[ev.ToolCallID] = ev.Output
	case agentstream.KindData:
		byID := s.data[ev.Topic]
		if byID == nil {
			byID = make(map[string]json.RawMessage)
			s.data[ev.Topic] = byID
		}
		byID[ev.ID] = ev.Data
	case agentstream.KindError:
		s.Status = StatusError
		s.ErrorMessage = ev.Message
	}
}

// Finish marks the exchange done unless it already errored.
func (s *State) Finish() {
	if s.Status != StatusError {
		s.Status = StatusDone
	}
}

// appendText extends the trailing text part of the current assistant message,
// opening the message or a fresh part as needed.
func (s *State) appendText(text string) {
	msg := s.assistantMessage()
	if n := len(msg.Parts); n > 0 && msg.Parts[n-1].Kind == PartText {
		msg.Parts[n-1].Text += text
		return
	}
	msg.Parts = append(msg.Parts, Part{Kind: PartText, Text: text})
}

func (s *State) appendPart(p Part) {
	msg := s.assistantMessage()
	msg.Parts = append(msg.Parts, p)
}

// assistantMessage returns the trailing assistant message, lazily opening one
// on the first assistant-originated event of the exchange.
func (s *State) assistantMessage() *Message {
	if n := len(s.Messages); n > 0 && s.Messages[n-1].Role == "assistant" {
		return &s.Messages[n-1]
	}
	s.Messages = append(s.Messages, Message{Role: "assistant"})
	return &s.Messages[len(s.Messages)-1]
}

// Output returns the recorded output for a tool call id.
func (s *State) Output(callID string) (json.RawMessage, bool) {
	out, ok := s.outputs[callID]
	return out, ok
}

// Pending reports whether a tool call has been requested but has no output
// yet.
func (s *State) Pending(callID string) bool {
	if _, ok := s.outputs[callID]; ok {
		return false
	}
	for _, msg := range s.Messages {
		for _, p := range msg.Parts {
			if p.Kind == PartToolCall && p.ToolCallID == callID {
				return true
			}
		}
	}
	return false
}

// PendingCalls returns the tool-call parts that have no recorded output, in
// transcript order.
func (s *State) PendingCalls() []Part {
	var pending []Part
	for _, msg := range s.Messages {
		for _, p := range msg.Parts {
			if p.Kind != PartToolCall {
				continue
			}
			if _, ok := s.outputs[p.ToolCallID]; !ok {
				pending = append(pending, p)
			}
		}
	}
	return pending
}

// Latest returns the most recent data payload for a topic and id.
func (s *State) Latest(topic, id string) (json.RawMessage, bool) {
	byID, ok := s.data[topic]
	if !ok {
		return nil, false
	}
	payload, ok := byID[id]
	return payload, ok
}

// Topic returns all current payloads for a topic keyed by id. The returned
// map is a copy; payloads are shared.
func (s *State) Topic(topic string) map[string]json.RawMessage {
	byID, ok := s.data[topic]
	if !ok {
		return nil
	}
	out := make(map[string]json.RawMessage, len(byID))
	for id, payload := range byID {
		out[id] = payload
	}
	return out
}

// Log returns every event applied so far, including any after a terminal
// error.
func (s *State) Log() []agentstream.Event {
	return s.log
}
