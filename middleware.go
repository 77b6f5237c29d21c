package agentstream

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Middleware wraps a Tool with cross-cutting behavior (logging, recovery,
// timeout).
type Middleware func(Tool) Tool

// WithLogging returns a middleware that logs start, end, duration, and errors.
func WithLogging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Tool) Tool {
		return &loggingTool{toolBase: toolBase{next: next}, logger: logger}
	}
}

// WithRecovery returns a middleware that recovers panics and returns
// SystemError.
func WithRecovery() Middleware {
	return func(next Tool) Tool {
		return &recoveryTool{toolBase{next: next}}
	}
}

// WithTimeoutMiddleware returns a middleware that enforces a per-tool timeout
// (overrides the registry default for this tool). Named with the "Middleware"
// suffix to avoid colliding with the ToolOption WithTimeout. When both the
// registry default and this middleware apply, the effective timeout is the
// minimum of the two.
func WithTimeoutMiddleware(d time.Duration) Middleware {
	return func(next Tool) Tool {
		return &timeoutTool{toolBase: toolBase{next: next}, timeout: d}
	}
}

// toolBase delegates Tool and ToolMetadata to the wrapped Tool.
type toolBase struct{ next Tool }

func (b *toolBase) Name() string               { return b.next.Name() }
func (b *toolBase) Description() string        { return b.next.Description() }
func (b *toolBase) Parameters() map[string]any { return b.next.Parameters() }

func (b *toolBase) Timeout() time.Duration {
	if tm, ok := b.next.(ToolMetadata); ok {
		return tm.Timeout()
	}
	return 0
}
func (b *toolBase) Tags() []string {
	if tm, ok := b.next.(ToolMetadata); ok {
		return tm.Tags()
	}
	return nil
}
func (b *toolBase) Version() string {
	if tm, ok := b.next.(ToolMetadata); ok {
		return tm.Version()
	}
	return ""
}
func (b *toolBase) IsDangerous() bool {
	if tm, ok := b.next.(ToolMetadata); ok {
		return tm.IsDangerous()
	}
	return false
}

type loggingTool struct {
	toolBase
	logger *slog.Logger
}

func (m *loggingTool) Execute(ctx context.Context, args []byte, emit EmitFunc) (json.RawMessage, error) {
	m.logger.Info("tool start", "tool", m.next.Name())
	start := time.Now()
	out, err := m.next.Execute(ctx, args, emit)
	dur := time.Since(start)
	if err != nil {
		m.logger.Error("tool error", "tool", m.next.Name(), "duration", dur, "error", err)
		return nil, err
	}
	m.logger.Info("tool end", "tool", m.next.Name(), "duration", dur)
	return out, nil
}

type recoveryTool struct{ toolBase }

func (r *recoveryTool) Execute(ctx context.Context, args []byte, emit EmitFunc) (out json.RawMessage, err error) {
	defer func() {
		if p := recover(); p != nil {
			out = nil
			err = &SystemError{Err: &panicError{p: p}}
		}
	}()
	return r.next.Execute(ctx, args, emit)
}

type timeoutTool struct {
	toolBase
	timeout time.Duration
}

func (t *timeoutTool) Timeout() time.Duration {
	if t.timeout > 0 {
		return t.timeout
	}
	return t.toolBase.Timeout()
}

func (t *timeoutTool) Execute(ctx context.Context, args []byte, emit EmitFunc) (json.RawMessage, error) {
	if t.timeout <= 0 {
		return t.next.Execute(ctx, args, emit)
	}
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Execute(ctx, args, emit)
}

// Use stores the given middlewares and reapplies them from scratch to all
// registered tools (onion order: first middleware is outermost). Tools
// registered after Use also get them. Calling Use again replaces the chain
// and rewraps from raw tools, avoiding double-wrapping.
func (r *Registry) Use(middlewares ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares = middlewares
	for name, raw := range r.rawTools {
		t := raw
		for i := len(middlewares) - 1; i >= 0; i-- {
			t = middlewares[i](t)
		}
		r.tools[name] = t
	}
}
