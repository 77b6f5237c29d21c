package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skosovsky/agentstream"
	"github.com/skosovsky/agentstream/provider"
	"github.com/skosovsky/agentstream/testutil"
)

// streamFunc adapts a function into a provider.Client.
type streamFunc func(ctx context.Context, req provider.Request) (provider.Stream, error)

func (f streamFunc) Stream(ctx context.Context, req provider.Request) (provider.Stream, error) {
	return f(ctx, req)
}

func documentEvents(t *testing.T, rec *testutil.EmitRecorder) []DocumentData {
	t.Helper()
	var out []DocumentData
	for _, ev := range rec.Events() {
		require.Equal(t, TopicDocument, ev.Topic)
		data, ok := ev.Payload.(DocumentData)
		require.True(t, ok)
		out = append(out, data)
	}
	return out
}

func TestDocumentTool(t *testing.T) {
	client := provider.NewScriptedClient(provider.TextChunks("Hello ", "world"))
	tool, err := NewDocumentTool(client)
	require.NoError(t, err)
	assert.Equal(t, "createDocument", tool.Name())

	rec := &testutil.EmitRecorder{}
	out, err := tool.Execute(context.Background(),
		[]byte(`{"title":"Greeting","content":"a short greeting"}`), rec.Emit)
	require.NoError(t, err)

	var result DocumentResult
	require.NoError(t, json.Unmarshal(out, &result))
	assert.NotEmpty(t, result.DocumentID)
	assert.Equal(t, "Greeting", result.Title)
	assert.Equal(t, "Hello world", result.Content)
	assert.Equal(t, "markdown", result.Format, "format defaults to markdown")
	assert.Equal(t, DocumentCompleted, result.Status)
	assert.Equal(t, 2, result.WordCount)
	assert.Equal(t, 11, result.CharacterCount)

	events := documentEvents(t, rec)
	require.Len(t, events, 4, "starting, two processing updates, completed")

	assert.Equal(t, DocumentStarting, events[0].Status)
	assert.Equal(t, 0, events[0].Progress)

	assert.Equal(t, DocumentProcessing, events[1].Status)
	assert.Equal(t, "Hello ", events[1].DocumentPreview)
	assert.Equal(t, DocumentProcessing, events[2].Status)
	assert.Equal(t, "Hello world", events[2].DocumentPreview)

	final := events[3]
	assert.Equal(t, DocumentCompleted, final.Status)
	assert.Equal(t, 100, final.Progress)
	assert.Equal(t, "Hello world", final.FullDocument)
	assert.Equal(t, 2, final.WordCount)
	assert.Equal(t, 11, final.CharacterCount)

	// All progress events publish under the same upsert id.
	for _, ev := range rec.Events() {
		assert.Equal(t, rec.Events()[0].ID, ev.ID)
	}

	// The nested prompt embeds title and topic and offers no tools.
	reqs := client.Requests()
	require.Len(t, reqs, 1)
	require.Len(t, reqs[0].Messages, 1)
	assert.Contains(t, reqs[0].Messages[0].Text, `"Greeting"`)
	assert.Contains(t, reqs[0].Messages[0].Text, "a short greeting")
	assert.Empty(t, reqs[0].Tools)
}

func TestDocumentToolProgressMonotonic(t *testing.T) {
	chunks := make([]string, 60)
	for i := range chunks {
		chunks[i] = "some more document text to fill the estimate "
	}
	client := provider.NewScriptedClient(provider.TextChunks(chunks...))
	tool, err := NewDocumentTool(client)
	require.NoError(t, err)

	rec := &testutil.EmitRecorder{}
	_, err = tool.Execute(context.Background(),
		[]byte(`{"title":"Long","content":"padding"}`), rec.Emit)
	require.NoError(t, err)

	events := documentEvents(t, rec)
	last := -1
	for _, ev := range events {
		if ev.Status != DocumentProcessing {
			continue
		}
		assert.GreaterOrEqual(t, ev.Progress, last, "progress never decreases")
		assert.LessOrEqual(t, ev.Progress, 95, "intermediate progress caps at 95")
		last = ev.Progress
	}
	assert.Equal(t, 95, last, "long documents saturate the estimate")
}

func TestDocumentToolZeroChunks(t *testing.T) {
	client := provider.NewScriptedClient([]provider.Chunk{
		{Type: provider.ChunkStop, StopReason: "end_turn"},
	})
	tool, err := NewDocumentTool(client)
	require.NoError(t, err)

	rec := &testutil.EmitRecorder{}
	out, err := tool.Execute(context.Background(),
		[]byte(`{"title":"Empty","content":"nothing"}`), rec.Emit)
	require.NoError(t, err)

	events := documentEvents(t, rec)
	require.Len(t, events, 2, "starting straight to completed")
	assert.Equal(t, DocumentStarting, events[0].Status)
	assert.Equal(t, DocumentCompleted, events[1].Status)

	var result DocumentResult
	require.NoError(t, json.Unmarshal(out, &result))
	assert.Equal(t, 0, result.WordCount)
	assert.Equal(t, 0, result.CharacterCount)
}

func TestDocumentToolNestedStreamFailure(t *testing.T) {
	streamErr := errors.New("model overloaded")
	client := streamFunc(func(context.Context, provider.Request) (provider.Stream, error) {
		return provider.NewFailingStream(streamErr, 1, provider.TextChunks("partial")...), nil
	})
	tool, err := NewDocumentTool(client)
	require.NoError(t, err)

	rec := &testutil.EmitRecorder{}
	_, err = tool.Execute(context.Background(),
		[]byte(`{"title":"Doomed","content":"whatever"}`), rec.Emit)
	require.ErrorIs(t, err, agentstream.ErrUpstream)

	events := documentEvents(t, rec)
	require.NotEmpty(t, events)
	final := events[len(events)-1]
	assert.Equal(t, DocumentFailed, final.Status)
	assert.Contains(t, final.Reason, "model overloaded")
}

func TestDocumentToolFailureKeepsProgress(t *testing.T) {
	streamErr := errors.New("connection reset")
	chunk := strings.Repeat("x", 1000)
	client := streamFunc(func(context.Context, provider.Request) (provider.Stream, error) {
		return provider.NewFailingStream(streamErr, 1, provider.TextChunks(chunk)...), nil
	})
	tool, err := NewDocumentTool(client)
	require.NoError(t, err)

	rec := &testutil.EmitRecorder{}
	_, err = tool.Execute(context.Background(),
		[]byte(`{"title":"Halfway","content":"whatever"}`), rec.Emit)
	require.ErrorIs(t, err, agentstream.ErrUpstream)

	events := documentEvents(t, rec)
	require.Len(t, events, 3, "starting, one processing update, failed")
	processing := events[1]
	require.Equal(t, DocumentProcessing, processing.Status)
	assert.Equal(t, 48, processing.Progress)

	final := events[2]
	assert.Equal(t, DocumentFailed, final.Status)
	assert.Equal(t, processing.Progress, final.Progress, "failure keeps the last reported progress")
}

func TestDocumentToolRejectsBadFormat(t *testing.T) {
	client := provider.NewScriptedClient(provider.TextChunks("x"))
	tool, err := NewDocumentTool(client)
	require.NoError(t, err)

	_, err = tool.Execute(context.Background(),
		[]byte(`{"title":"T","content":"c","format":"pdf"}`), nil)
	require.Error(t, err)
	assert.True(t, agentstream.IsClientError(err))
	assert.Equal(t, 0, client.Calls(), "validation fails before any model call")
}
