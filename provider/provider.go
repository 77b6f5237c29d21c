// Package provider defines the model-inference boundary: a Client that turns
// a message history plus tool schemas into a stream of chunks (text deltas,
// tool-call requests, stop). The Anthropic adapter is the real backend; the
// scripted client drives tests and examples deterministically.
package provider

import (
	"context"
	"encoding/json"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a complete tool invocation requested by the model.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// Message is one entry of the conversation history sent to the model.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text,omitempty"`

	// Assistant tool requests.
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`

	// Tool result correlation (RoleTool).
	ToolCallID string          `json:"toolCallId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	ToolOutput json.RawMessage `json:"toolOutput,omitempty"`
}

// UserMessage builds a user history entry.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Text: text}
}

// AssistantMessage builds an assistant history entry from the text and tool
// calls produced by one model step.
func AssistantMessage(text string, calls []ToolCall) Message {
	return Message{Role: RoleAssistant, Text: text, ToolCalls: calls}
}

// ToolResultMessage builds the history entry that feeds a tool output back to
// the model.
func ToolResultMessage(callID, toolName string, output json.RawMessage) Message {
	return Message{Role: RoleTool, ToolCallID: callID, ToolName: toolName, ToolOutput: output}
}

// ToolSchema describes one callable tool to the model.
type ToolSchema struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Request is one inference call: full history, available tools, generation
// limits.
type Request struct {
	System    string
	Messages  []Message
	Tools     []ToolSchema
	Model     string
	MaxTokens int
}

// ChunkType discriminates incremental stream results.
type ChunkType string

const (
	ChunkText     ChunkType = "text"
	ChunkToolCall ChunkType = "tool_call"
	ChunkStop     ChunkType = "stop"
)

// Chunk is one incremental result from a model stream. Tool-call inputs are
// delivered complete, not as partial JSON; adapters accumulate fragments
// internally.
type Chunk struct {
	Type       ChunkType
	Text       string
	ToolCall   *ToolCall
	StopReason string
}

// Stream yields chunks until io.EOF. Close is idempotent and releases the
// underlying connection.
type Stream interface {
	Recv() (Chunk, error)
	Close() error
}

// Client is the black-box inference service.
type Client interface {
	Stream(ctx context.Context, req Request) (Stream, error)
}
