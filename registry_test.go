package agentstream

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fnTool is a minimal Tool for registry tests.
type fnTool struct {
	name string
	fn   func(ctx context.Context, args []byte, emit EmitFunc) (json.RawMessage, error)
}

func (t *fnTool) Name() string                { return t.name }
func (t *fnTool) Description() string         { return "test tool" }
func (t *fnTool) Parameters() map[string]any  { return map[string]any{"type": "object"} }
func (t *fnTool) Execute(ctx context.Context, args []byte, emit EmitFunc) (json.RawMessage, error) {
	return t.fn(ctx, args, emit)
}

func echoTool(name string) *fnTool {
	return &fnTool{name: name, fn: func(_ context.Context, args []byte, _ EmitFunc) (json.RawMessage, error) {
		return args, nil
	}}
}

func TestRegistryExecute(t *testing.T) {
	r := NewRegistry()
	r.Register(echoTool("echo"))

	out, err := r.Execute(context.Background(), ToolCall{ID: "c1", ToolName: "echo", Args: []byte(`{"a":1}`)}, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(out))
}

func TestRegistryToolNotFound(t *testing.T) {
	r := NewRegistry()
	_, err := r.Execute(context.Background(), ToolCall{ID: "c1", ToolName: "missing"}, nil)
	require.ErrorIs(t, err, ErrToolNotFound)
}

func TestRegistryGetAllToolsSorted(t *testing.T) {
	r := NewRegistry()
	r.Register(echoTool("zeta"))
	r.Register(echoTool("alpha"))
	r.Register(echoTool("mid"))

	all := r.GetAllTools()
	require.Len(t, all, 3)
	assert.Equal(t, "alpha", all[0].Name())
	assert.Equal(t, "mid", all[1].Name())
	assert.Equal(t, "zeta", all[2].Name())
}

func TestRegistryTimeout(t *testing.T) {
	r := NewRegistry(WithDefaultTimeout(30 * time.Millisecond))
	r.Register(&fnTool{name: "slow", fn: func(ctx context.Context, _ []byte, _ EmitFunc) (json.RawMessage, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return json.RawMessage(`{}`), nil
		}
	}})

	_, err := r.Execute(context.Background(), ToolCall{ID: "c1", ToolName: "slow"}, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRegistryPanicRecovery(t *testing.T) {
	r := NewRegistry(WithRecoverPanics(true))
	r.Register(&fnTool{name: "boom", fn: func(context.Context, []byte, EmitFunc) (json.RawMessage, error) {
		panic("kaboom")
	}})

	_, err := r.Execute(context.Background(), ToolCall{ID: "c1", ToolName: "boom"}, nil)
	require.Error(t, err)
	assert.True(t, IsSystemError(err))
}

func TestRegistryHooks(t *testing.T) {
	var before, after atomic.Int32
	var gotSummary ExecutionSummary
	var mu sync.Mutex

	r := NewRegistry(
		WithOnBeforeExecute(func(_ context.Context, call ToolCall) {
			before.Add(1)
		}),
		WithOnAfterExecute(func(_ context.Context, _ ToolCall, summary ExecutionSummary, d time.Duration) {
			after.Add(1)
			mu.Lock()
			gotSummary = summary
			mu.Unlock()
		}),
	)
	r.Register(&fnTool{name: "emitter", fn: func(_ context.Context, _ []byte, emit EmitFunc) (json.RawMessage, error) {
		_ = emit("topic", "id", 1)
		_ = emit("topic", "id", 2)
		return json.RawMessage(`{"ok":true}`), nil
	}})

	emit := func(string, string, any) error { return nil }
	_, err := r.Execute(context.Background(), ToolCall{ID: "c1", ToolName: "emitter"}, emit)
	require.NoError(t, err)

	assert.Equal(t, int32(1), before.Load())
	assert.Equal(t, int32(1), after.Load())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "c1", gotSummary.CallID)
	assert.Equal(t, 2, gotSummary.EventsEmitted)
	assert.Equal(t, int64(len(`{"ok":true}`)), gotSummary.OutputBytes)
	assert.NoError(t, gotSummary.Error)
}

func TestRegistryMaxConcurrency(t *testing.T) {
	var current, peak atomic.Int32
	r := NewRegistry(WithMaxConcurrency(2), WithDefaultTimeout(5*time.Second))
	r.Register(&fnTool{name: "busy", fn: func(context.Context, []byte, EmitFunc) (json.RawMessage, error) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		current.Add(-1)
		return json.RawMessage(`{}`), nil
	}})

	var wg sync.WaitGroup
	for range 6 {
		wg.Go(func() {
			_, err := r.Execute(context.Background(), ToolCall{ID: "c", ToolName: "busy"}, nil)
			assert.NoError(t, err)
		})
	}
	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRegistryExecuteBatch(t *testing.T) {
	r := NewRegistry()
	r.Register(echoTool("echo"))
	r.Register(&fnTool{name: "fail", fn: func(context.Context, []byte, EmitFunc) (json.RawMessage, error) {
		return nil, errors.New("nope")
	}})

	calls := []ToolCall{
		{ID: "c1", ToolName: "echo", Args: []byte(`{"n":1}`)},
		{ID: "c2", ToolName: "fail"},
		{ID: "c3", ToolName: "echo", Args: []byte(`{"n":3}`)},
	}
	results := r.ExecuteBatch(context.Background(), calls, nil)
	require.Len(t, results, 3)

	// Results come back in call order even though execution is parallel.
	assert.Equal(t, "c1", results[0].CallID)
	assert.Equal(t, "c2", results[1].CallID)
	assert.Equal(t, "c3", results[2].CallID)

	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.NoError(t, results[2].Err)
	assert.JSONEq(t, `{"n":3}`, string(results[2].Output))
}

func TestRegistryExecuteBatchSerializesEmit(t *testing.T) {
	r := NewRegistry()
	r.Register(&fnTool{name: "emitter", fn: func(_ context.Context, args []byte, emit EmitFunc) (json.RawMessage, error) {
		for i := 0; i < 10; i++ {
			if err := emit("t", string(args), i); err != nil {
				return nil, err
			}
		}
		return json.RawMessage(`{}`), nil
	}})

	var events []string
	emit := func(_, id string, _ any) error {
		// Intentionally not thread-safe: the registry must serialize calls.
		events = append(events, id)
		return nil
	}
	calls := []ToolCall{
		{ID: "c1", ToolName: "emitter", Args: []byte(`a`)},
		{ID: "c2", ToolName: "emitter", Args: []byte(`b`)},
		{ID: "c3", ToolName: "emitter", Args: []byte(`c`)},
	}
	results := r.ExecuteBatch(context.Background(), calls, emit)
	for _, res := range results {
		require.NoError(t, res.Err)
	}
	assert.Len(t, events, 30)
}

func TestRegistryShutdown(t *testing.T) {
	r := NewRegistry()
	r.Register(echoTool("echo"))

	require.NoError(t, r.Shutdown(context.Background()))

	_, err := r.Execute(context.Background(), ToolCall{ID: "c1", ToolName: "echo"}, nil)
	require.ErrorIs(t, err, ErrShutdown)

	// Idempotent.
	require.NoError(t, r.Shutdown(context.Background()))
}

func TestRegistryShutdownWaitsForInflight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	r := NewRegistry(WithDefaultTimeout(5 * time.Second))
	r.Register(&fnTool{name: "slow", fn: func(context.Context, []byte, EmitFunc) (json.RawMessage, error) {
		close(started)
		<-release
		return json.RawMessage(`{}`), nil
	}})

	done := make(chan error, 1)
	go func() {
		_, err := r.Execute(context.Background(), ToolCall{ID: "c1", ToolName: "slow"}, nil)
		done <- err
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, r.Shutdown(ctx), context.DeadlineExceeded)

	close(release)
	require.NoError(t, <-done)
	require.NoError(t, r.Shutdown(context.Background()))
}
