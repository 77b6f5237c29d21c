package agentstream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/skosovsky/agentstream/provider"
)

const (
	// DefaultStepBudget bounds the number of model round-trips per exchange.
	DefaultStepBudget = 5

	// DefaultDeadline bounds the wall-clock duration of one exchange.
	DefaultDeadline = 30 * time.Second
)

// ErrStepBudgetExceeded is recorded on the exchange log when the model keeps
// requesting tools past the step budget. The stream still closes cleanly.
var ErrStepBudgetExceeded = errors.New("step budget exceeded")

// Orchestrator drives the model/tool loop for one chat exchange: it streams
// model output, executes requested tools through the registry, feeds results
// back, and repeats until the model stops or a budget runs out.
type Orchestrator struct {
	client   provider.Client
	registry *Registry
	opts     orchestratorOptions
}

type orchestratorOptions struct {
	stepBudget int
	deadline   time.Duration
	system     string
	model      string
	maxTokens  int
	buffer     int
	logger     *slog.Logger
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*orchestratorOptions)

// WithStepBudget caps model round-trips per exchange. Values below 1 keep the
// default.
func WithStepBudget(n int) OrchestratorOption {
	return func(o *orchestratorOptions) {
		if n > 0 {
			o.stepBudget = n
		}
	}
}

// WithDeadline caps the wall-clock duration of one exchange.
func WithDeadline(d time.Duration) OrchestratorOption {
	return func(o *orchestratorOptions) {
		if d > 0 {
			o.deadline = d
		}
	}
}

// WithSystemPrompt sets the system prompt sent on every model call.
func WithSystemPrompt(prompt string) OrchestratorOption {
	return func(o *orchestratorOptions) { o.system = prompt }
}

// WithModel overrides the provider's default model for this orchestrator.
func WithModel(model string) OrchestratorOption {
	return func(o *orchestratorOptions) { o.model = model }
}

// WithMaxTokens caps completion length on every model call.
func WithMaxTokens(n int) OrchestratorOption {
	return func(o *orchestratorOptions) {
		if n > 0 {
			o.maxTokens = n
		}
	}
}

// WithBuffer sets the event writer's channel capacity.
func WithBuffer(n int) OrchestratorOption {
	return func(o *orchestratorOptions) {
		if n > 0 {
			o.buffer = n
		}
	}
}

// WithLogger sets the structured logger used for step and tool telemetry.
func WithLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *orchestratorOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewOrchestrator wires a model client and a tool registry together.
func NewOrchestrator(client provider.Client, registry *Registry, opts ...OrchestratorOption) (*Orchestrator, error) {
	if client == nil {
		return nil, errors.New("orchestrator: model client is required")
	}
	if registry == nil {
		return nil, errors.New("orchestrator: tool registry is required")
	}
	options := orchestratorOptions{
		stepBudget: DefaultStepBudget,
		deadline:   DefaultDeadline,
		buffer:     DefaultWriterBuffer,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Orchestrator{client: client, registry: registry, opts: options}, nil
}

// ToolSpecs exports the registry's tools in the provider's schema form,
// sorted by name.
func (o *Orchestrator) ToolSpecs() []provider.ToolSchema {
	all := o.registry.GetAllTools()
	specs := make([]provider.ToolSchema, 0, len(all))
	for _, t := range all {
		specs = append(specs, provider.ToolSchema{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.Parameters(),
		})
	}
	return specs
}

// Run starts one exchange for userMessage and returns the event writer whose
// Events channel the caller drains. The returned writer is always closed by
// the time the exchange goroutine exits, error or not.
func (o *Orchestrator) Run(ctx context.Context, userMessage string) *Writer {
	w := NewWriter(o.opts.buffer)
	go o.runExchange(ctx, w, userMessage)
	return w
}

func (o *Orchestrator) runExchange(ctx context.Context, w *Writer, userMessage string) {
	defer func() {
		_ = w.Close()
	}()

	ctx, cancel := context.WithTimeout(ctx, o.opts.deadline)
	defer cancel()

	log := o.opts.logger
	specs := o.ToolSpecs()
	history := []provider.Message{provider.UserMessage(userMessage)}

	for step := 1; step <= o.opts.stepBudget; step++ {
		text, calls, err := o.streamStep(ctx, w, history, specs)
		if err != nil {
			if errors.Is(err, ErrStreamClosed) {
				return
			}
			log.ErrorContext(ctx, "model step failed", "step", step, "error", err)
			o.fail(w, err)
			return
		}
		history = append(history, provider.AssistantMessage(text, calls))
		if len(calls) == 0 {
			log.DebugContext(ctx, "exchange complete", "steps", step)
			return
		}

		log.DebugContext(ctx, "executing tool calls", "step", step, "count", len(calls))
		toolCalls := make([]ToolCall, 0, len(calls))
		for _, call := range calls {
			toolCalls = append(toolCalls, ToolCall{ID: call.ID, ToolName: call.Name, Args: call.Input})
		}

		results := o.registry.ExecuteBatch(ctx, toolCalls, w.Emitter())
		for _, res := range results {
			if res.Err != nil {
				log.ErrorContext(ctx, "tool execution failed",
					"tool", res.ToolName, "call_id", res.CallID, "error", res.Err)
				o.fail(w, res.Err)
				return
			}
			if err := w.Write(ToolOutput(res.CallID, res.Output)); err != nil {
				return
			}
			history = append(history, provider.ToolResultMessage(res.CallID, res.ToolName, res.Output))
		}
	}

	// Budget exhausted with the model still asking for tools: close cleanly
	// with whatever text and tool output already streamed.
	log.WarnContext(ctx, "exchange stopped", "reason", ErrStepBudgetExceeded, "budget", o.opts.stepBudget)
}

// streamStep performs one model call, forwarding text deltas and
// tool-input-available events in the order the model produces them, and
// collecting the requested tool calls for execution after the stream ends.
func (o *Orchestrator) streamStep(ctx context.Context, w *Writer, history []provider.Message, specs []provider.ToolSchema) (string, []provider.ToolCall, error) {
	stream, err := o.client.Stream(ctx, provider.Request{
		System:    o.opts.system,
		Messages:  history,
		Tools:     specs,
		Model:     o.opts.model,
		MaxTokens: o.opts.maxTokens,
	})
	if err != nil {
		return "", nil, err
	}
	defer func() {
		_ = stream.Close()
	}()

	var text []byte
	var calls []provider.ToolCall
	for {
		chunk, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return string(text), calls, nil
			}
			return "", nil, err
		}
		switch chunk.Type {
		case provider.ChunkText:
			text = append(text, chunk.Text...)
			if werr := w.Write(TextDelta(chunk.Text)); werr != nil {
				return "", nil, werr
			}
		case provider.ChunkToolCall:
			if chunk.ToolCall != nil {
				call := *chunk.ToolCall
				if werr := w.Write(ToolInput(call.ID, call.Name, call.Input)); werr != nil {
					return "", nil, werr
				}
				calls = append(calls, call)
			}
		case provider.ChunkStop:
			// Stop chunks carry only the reason; the stream ends with EOF.
		}
	}
}

// fail writes the single terminal error event for the exchange. Tool errors
// keep their client/system split: system failures stay opaque to the client.
func (o *Orchestrator) fail(w *Writer, err error) {
	msg := err.Error()
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		msg = "exchange deadline exceeded"
	case IsSystemError(err):
		msg = (&SystemError{}).Error()
	}
	_ = w.Write(ErrorEvent(msg))
}
