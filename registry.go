package agentstream

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"time"
)

// Registry holds tools and executes them with timeout, semaphore, and
// optional panic recovery.
type Registry struct {
	tools       map[string]Tool // wrapped with middlewares, used by Execute
	rawTools    map[string]Tool // unwrapped, used by Use() to re-apply middlewares from scratch
	sem         chan struct{}
	opts        registryOptions
	done        chan struct{}
	running     sync.WaitGroup
	mu          sync.Mutex
	middlewares []Middleware
}

// NewRegistry creates a Registry with the given options.
func NewRegistry(opts ...RegistryOption) *Registry {
	o := registryOptions{
		timeout:        5 * time.Second,
		maxConcurrency: 10,
		recoverPanics:  true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	var sem chan struct{}
	if o.maxConcurrency > 0 {
		sem = make(chan struct{}, o.maxConcurrency)
	}
	return &Registry{
		tools:    make(map[string]Tool),
		rawTools: make(map[string]Tool),
		sem:      sem,
		opts:     o,
		done:     make(chan struct{}),
	}
}

// Register adds a tool. Stored middlewares (see Use) are applied before
// registration. A tool with the same name replaces the previous one. Safe for
// concurrent use with Execute and other Register calls.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := t.Name()
	r.rawTools[name] = t
	for i := len(r.middlewares) - 1; i >= 0; i-- {
		t = r.middlewares[i](t)
	}
	r.tools[name] = t
}

// GetAllTools returns all registered tools sorted by name for deterministic
// order (e.g. for exporting schemas to a model provider).
func (r *Registry) GetAllTools() []Tool {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	out := make([]Tool, 0, len(names))
	for _, name := range names {
		out = append(out, r.tools[name])
	}
	return out
}

// GetTool returns the tool with the given name (after middlewares), or
// (nil, false) if not found.
func (r *Registry) GetTool(name string) (Tool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tools[name]
	return t, ok
}

// Execute runs one tool call. emit receives the data events the tool publishes
// while running; the tool's output payload is the return value. The
// after-execution hook is always invoked via defer with the final summary.
func (r *Registry) Execute(ctx context.Context, call ToolCall, emit EmitFunc) (out json.RawMessage, err error) {
	r.mu.Lock()
	select {
	case <-r.done:
		r.mu.Unlock()
		return nil, ErrShutdown
	default:
	}
	tool, ok := r.tools[call.ToolName]
	if !ok {
		r.mu.Unlock()
		return nil, ErrToolNotFound
	}
	r.running.Add(1)
	r.mu.Unlock()

	if err = r.acquireSemaphore(ctx); err != nil {
		r.running.Done()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, err
	}
	defer r.releaseSemaphore()
	defer r.running.Done()

	timeout := r.opts.timeout
	if tm, ok := tool.(ToolMetadata); ok && tm.Timeout() > 0 {
		timeout = tm.Timeout()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	summary := ExecutionSummary{CallID: call.ID, ToolName: call.ToolName}
	start := time.Now()
	// Ensure the after-execution hook always runs with the final summary.
	// The recover defer is registered after onAfter so it runs first on panic
	// and sets summary.Error before the hook observes it.
	defer func() {
		dur := time.Since(start)
		if r.opts.onAfter != nil {
			r.opts.onAfter(ctx, call, summary, dur)
		}
	}()
	if r.opts.recoverPanics {
		defer func() {
			if p := recover(); p != nil {
				summary.Error = &SystemError{Err: &panicError{p: p}}
				err = summary.Error
				out = nil
			}
		}()
	}

	if r.opts.onBefore != nil {
		r.opts.onBefore(ctx, call)
	}

	// Count only events that reached the stream.
	countingEmit := func(topic, id string, payload any) error {
		if emit == nil {
			return nil
		}
		if err := emit(topic, id, payload); err != nil {
			return err
		}
		summary.EventsEmitted++
		return nil
	}

	out, err = tool.Execute(ctx, call.Args, countingEmit)
	summary.Error = err
	summary.OutputBytes = int64(len(out))
	return out, err
}

func (r *Registry) acquireSemaphore(ctx context.Context) error {
	if r.sem == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	select {
	case r.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) releaseSemaphore() {
	if r.sem != nil {
		<-r.sem
	}
}

// ExecuteBatch runs all calls in parallel and returns their results in call
// order. emit is serialized with a mutex so the caller's emit does not need
// to be thread-safe; events from different calls interleave on arrival only.
// Unlike Execute, failures do not short-circuit the batch: each result
// carries its own error and the caller decides what a failure means.
func (r *Registry) ExecuteBatch(ctx context.Context, calls []ToolCall, emit EmitFunc) []ToolResult {
	results := make([]ToolResult, len(calls))
	if len(calls) == 0 {
		return results
	}
	var emitMu sync.Mutex
	serializedEmit := func(topic, id string, payload any) error {
		emitMu.Lock()
		defer emitMu.Unlock()
		if emit == nil {
			return nil
		}
		return emit(topic, id, payload)
	}

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Go(func() {
			out, err := r.Execute(ctx, call, serializedEmit)
			results[i] = ToolResult{
				CallID:   call.ID,
				ToolName: call.ToolName,
				Output:   out,
				Err:      err,
			}
		})
	}
	wg.Wait()
	return results
}

// Shutdown closes the registry for new calls and waits for in-flight
// executions or ctx to cancel.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	select {
	case <-r.done:
		r.mu.Unlock()
		return nil
	default:
		close(r.done)
	}
	r.mu.Unlock()
	done := make(chan struct{})
	go func() {
		r.running.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
