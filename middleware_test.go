package agentstream

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	r := NewRegistry()
	r.Use(WithLogging(logger))
	r.Register(echoTool("echo"))

	_, err := r.Execute(context.Background(), ToolCall{ID: "c1", ToolName: "echo", Args: []byte(`{}`)}, nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "echo")
}

func TestWithRecovery(t *testing.T) {
	r := NewRegistry(WithRecoverPanics(false))
	r.Use(WithRecovery())
	r.Register(&fnTool{name: "boom", fn: func(context.Context, []byte, EmitFunc) (json.RawMessage, error) {
		panic("middleware catches this")
	}})

	_, err := r.Execute(context.Background(), ToolCall{ID: "c1", ToolName: "boom"}, nil)
	require.Error(t, err)
	assert.True(t, IsSystemError(err))
}

func TestWithTimeoutMiddleware(t *testing.T) {
	r := NewRegistry(WithDefaultTimeout(0))
	r.Use(WithTimeoutMiddleware(20 * time.Millisecond))
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

func TestUseRewrapsExistingTools(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	r := NewRegistry()
	r.Register(echoTool("echo")) // registered before Use
	r.Use(WithLogging(logger))

	_, err := r.Execute(context.Background(), ToolCall{ID: "c1", ToolName: "echo", Args: []byte(`{}`)}, nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "echo", "middleware applies to tools registered before Use")
}

func TestMiddlewarePreservesMetadata(t *testing.T) {
	tool, err := NewTool("meta", "Carries metadata through wrapping",
		func(_ context.Context, _ greetArgs) (greetResult, error) {
			return greetResult{}, nil
		},
		WithTimeout(3*time.Second),
		WithTags("wrapped"),
	)
	require.NoError(t, err)

	wrapped := WithRecovery()(tool)
	meta, ok := wrapped.(ToolMetadata)
	require.True(t, ok)
	assert.Equal(t, 3*time.Second, meta.Timeout())
	assert.Equal(t, []string{"wrapped"}, meta.Tags())
	assert.Equal(t, "meta", wrapped.Name())
}
