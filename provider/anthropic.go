package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

// MessagesClient captures the subset of the Anthropic SDK used by the
// adapter. It is satisfied by *sdk.MessageService so callers can pass either
// a real client or a mock in tests.
type MessagesClient interface {
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
}

// AnthropicOptions configures the adapter.
type AnthropicOptions struct {
	// Model is the default Claude model identifier used when Request.Model is
	// empty. Prefer the typed constants from anthropic-sdk-go.
	Model string

	// MaxTokens caps the completion when a request does not set MaxTokens.
	MaxTokens int
}

// AnthropicClient implements Client on top of the Anthropic Messages API.
type AnthropicClient struct {
	msgs      MessagesClient
	model     string
	maxTokens int
}

// NewAnthropic builds an adapter using the default Anthropic HTTP client.
func NewAnthropic(apiKey string, opts AnthropicOptions) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return NewAnthropicFromMessages(&ac.Messages, opts)
}

// NewAnthropicFromMessages builds an adapter over an existing Messages client.
func NewAnthropicFromMessages(msgs MessagesClient, opts AnthropicOptions) (*AnthropicClient, error) {
	if msgs == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	if opts.Model == "" {
		return nil, errors.New("anthropic: default model identifier is required")
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &AnthropicClient{msgs: msgs, model: opts.Model, maxTokens: maxTokens}, nil
}

// Stream invokes Messages.NewStreaming and adapts incremental SDK events into
// Chunks. Tool-input JSON fragments are accumulated per content block and
// surfaced as one complete tool call when the block closes.
func (c *AnthropicClient) Stream(ctx context.Context, req Request) (Stream, error) {
	params, err := c.encodeRequest(req)
	if err != nil {
		return nil, err
	}
	stream := c.msgs.NewStreaming(ctx, *params)
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("anthropic messages.new stream: %w", err)
	}
	return newAnthropicStream(ctx, stream), nil
}

func (c *AnthropicClient) encodeRequest(req Request) (*sdk.MessageNewParams, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("anthropic: messages are required")
	}
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	msgs, err := encodeMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	params := sdk.MessageNewParams{
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
		Model:     sdk.Model(model),
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		tools, err := encodeTools(req.Tools)
		if err != nil {
			return nil, err
		}
		params.Tools = tools
	}
	return &params, nil
}

// encodeMessages maps the generic history onto Anthropic message params.
// Consecutive tool results are folded into one user message, matching the
// tool_use/tool_result pairing the API expects.
func encodeMessages(msgs []Message) ([]sdk.MessageParam, error) {
	conversation := make([]sdk.MessageParam, 0, len(msgs))
	var pendingResults []sdk.ContentBlockParamUnion
	flushResults := func() {
		if len(pendingResults) > 0 {
			conversation = append(conversation, sdk.NewUserMessage(pendingResults...))
			pendingResults = nil
		}
	}
	for _, m := range msgs {
		switch m.Role {
		case RoleUser:
			flushResults()
			if m.Text == "" {
				continue
			}
			conversation = append(conversation, sdk.NewUserMessage(sdk.NewTextBlock(m.Text)))
		case RoleAssistant:
			flushResults()
			blocks := make([]sdk.ContentBlockParamUnion, 0, 1+len(m.ToolCalls))
			if m.Text != "" {
				blocks = append(blocks, sdk.NewTextBlock(m.Text))
			}
			for _, tc := range m.ToolCalls {
				if tc.Name == "" {
					return nil, errors.New("anthropic: tool call missing name")
				}
				blocks = append(blocks, sdk.NewToolUseBlock(tc.ID, tc.Input, tc.Name))
			}
			if len(blocks) == 0 {
				continue
			}
			conversation = append(conversation, sdk.NewAssistantMessage(blocks...))
		case RoleTool:
			pendingResults = append(pendingResults, sdk.NewToolResultBlock(m.ToolCallID, string(m.ToolOutput), false))
		default:
			return nil, fmt.Errorf("anthropic: unsupported message role %q", m.Role)
		}
	}
	flushResults()
	if len(conversation) == 0 {
		return nil, errors.New("anthropic: at least one user/assistant message is required")
	}
	return conversation, nil
}

func encodeTools(defs []ToolSchema) ([]sdk.ToolUnionParam, error) {
	toolList := make([]sdk.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		if def.Name == "" {
			return nil, errors.New("anthropic: tool is missing name")
		}
		if def.Description == "" {
			return nil, fmt.Errorf("anthropic: tool %q is missing description", def.Name)
		}
		schema := sdk.ToolInputSchemaParam{}
		if len(def.InputSchema) > 0 {
			schema.ExtraFields = def.InputSchema
		}
		u := sdk.ToolUnionParamOfTool(schema, def.Name)
		if u.OfTool != nil {
			u.OfTool.Description = sdk.String(def.Description)
		}
		toolList = append(toolList, u)
	}
	return toolList, nil
}

// anthropicStream pumps SDK events into a chunk channel on its own goroutine
// so Recv stays a plain blocking call.
type anthropicStream struct {
	ctx    context.Context
	cancel context.CancelFunc
	sse    *ssestream.Stream[sdk.MessageStreamEventUnion]

	chunks chan Chunk

	errMu    sync.Mutex
	errSet   bool
	finalErr error
}

func newAnthropicStream(ctx context.Context, sse *ssestream.Stream[sdk.MessageStreamEventUnion]) *anthropicStream {
	cctx, cancel := context.WithCancel(ctx)
	s := &anthropicStream{
		ctx:    cctx,
		cancel: cancel,
		sse:    sse,
		chunks: make(chan Chunk, 32),
	}
	go s.run()
	return s
}

func (s *anthropicStream) Recv() (Chunk, error) {
	select {
	case chunk, ok := <-s.chunks:
		if ok {
			return chunk, nil
		}
		if err := s.err(); err != nil {
			return Chunk{}, err
		}
		return Chunk{}, io.EOF
	case <-s.ctx.Done():
		err := s.ctx.Err()
		s.setErr(err)
		return Chunk{}, err
	}
}

func (s *anthropicStream) Close() error {
	s.cancel()
	if s.sse == nil {
		return nil
	}
	return s.sse.Close()
}

func (s *anthropicStream) run() {
	defer close(s.chunks)
	defer func() {
		if s.sse != nil {
			_ = s.sse.Close()
		}
	}()

	proc := &anthropicEventProcessor{emit: s.emit, toolBlocks: make(map[int]*toolCallBuffer)}
	for {
		select {
		case <-s.ctx.Done():
			s.setErr(s.ctx.Err())
			return
		default:
		}
		if !s.sse.Next() {
			if err := s.sse.Err(); err != nil {
				s.setErr(err)
			} else if err := s.ctx.Err(); err != nil {
				s.setErr(err)
			}
			return
		}
		if err := proc.handle(s.sse.Current()); err != nil {
			s.setErr(err)
			return
		}
	}
}

func (s *anthropicStream) emit(chunk Chunk) error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	case s.chunks <- chunk:
		return nil
	}
}

func (s *anthropicStream) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.errSet {
		return
	}
	s.errSet = true
	s.finalErr = err
}

func (s *anthropicStream) err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.finalErr
}

// anthropicEventProcessor converts Anthropic streaming events into Chunks,
// buffering partial tool-input JSON per content block index.
type anthropicEventProcessor struct {
	emit       func(Chunk) error
	toolBlocks map[int]*toolCallBuffer
	stopReason string
}

func (p *anthropicEventProcessor) handle(event sdk.MessageStreamEventUnion) error {
	switch ev := event.AsAny().(type) {
	case sdk.MessageStartEvent:
		p.toolBlocks = make(map[int]*toolCallBuffer)
		p.stopReason = ""
		return nil
	case sdk.ContentBlockStartEvent:
		if toolUse, ok := ev.ContentBlock.AsAny().(sdk.ToolUseBlock); ok {
			if toolUse.ID == "" {
				return errors.New("anthropic stream: tool use block missing id")
			}
			if toolUse.Name == "" {
				return fmt.Errorf("anthropic stream: tool use block %q missing name", toolUse.ID)
			}
			p.toolBlocks[int(ev.Index)] = &toolCallBuffer{id: toolUse.ID, name: toolUse.Name}
		}
		return nil
	case sdk.ContentBlockDeltaEvent:
		switch delta := ev.Delta.AsAny().(type) {
		case sdk.TextDelta:
			if delta.Text == "" {
				return nil
			}
			return p.emit(Chunk{Type: ChunkText, Text: delta.Text})
		case sdk.InputJSONDelta:
			if tb := p.toolBlocks[int(ev.Index)]; tb != nil && delta.PartialJSON != "" {
				tb.fragments = append(tb.fragments, delta.PartialJSON)
			}
			return nil
		default:
			return nil
		}
	case sdk.ContentBlockStopEvent:
		idx := int(ev.Index)
		tb := p.toolBlocks[idx]
		if tb == nil {
			return nil
		}
		delete(p.toolBlocks, idx)
		return p.emit(Chunk{
			Type:     ChunkToolCall,
			ToolCall: &ToolCall{ID: tb.id, Name: tb.name, Input: tb.finalInput()},
		})
	case sdk.MessageDeltaEvent:
		p.stopReason = string(ev.Delta.StopReason)
		return nil
	case sdk.MessageStopEvent:
		return p.emit(Chunk{Type: ChunkStop, StopReason: p.stopReason})
	}
	return nil
}

type toolCallBuffer struct {
	id        string
	name      string
	fragments []string
}

func (tb *toolCallBuffer) finalInput() json.RawMessage {
	joined := strings.TrimSpace(strings.Join(tb.fragments, ""))
	if joined == "" {
		joined = "{}"
	}
	return json.RawMessage(joined)
}

var _ Client = (*AnthropicClient)(nil)
