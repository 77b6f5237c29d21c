package uistate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skosovsky/agentstream"
)

func TestStateLifecycle(t *testing.T) {
	s := NewState()
	assert.Equal(t, StatusIdle, s.Status)

	s.Start("hello")
	assert.Equal(t, StatusRequested, s.Status)
	require.Len(t, s.Messages, 1)
	assert.Equal(t, "user", s.Messages[0].Role)

	s.Apply(agentstream.TextDelta("hi"))
	assert.Equal(t, StatusStreaming, s.Status, "first event flips requested to streaming")

	s.Finish()
	assert.Equal(t, StatusDone, s.Status)
}

func TestStateTextDeltasCoalesce(t *testing.T) {
	s := NewState()
	s.Start("question")
	s.Apply(agentstream.TextDelta("The answer"))
	s.Apply(agentstream.TextDelta(" is 42."))

	require.Len(t, s.Messages, 2)
	asst := s.Messages[1]
	assert.Equal(t, "assistant", asst.Role)
	require.Len(t, asst.Parts, 1, "consecutive deltas extend one text part")
	assert.Equal(t, "The answer is 42.", asst.Parts[0].Text)
}

func TestStateToolCallBreaksTextPart(t *testing.T) {
	s := NewState()
	s.Start("go")
	s.Apply(agentstream.TextDelta("Checking "))
	s.Apply(agentstream.ToolInput("call-1", "weather", json.RawMessage(`{"location":"Oslo"}`)))
	s.Apply(agentstream.TextDelta("done"))

	asst := s.Messages[1]
	require.Len(t, asst.Parts, 3)
	assert.Equal(t, PartText, asst.Parts[0].Kind)
	assert.Equal(t, PartToolCall, asst.Parts[1].Kind)
	assert.Equal(t, "call-1", asst.Parts[1].ToolCallID)
	assert.Equal(t, PartText, asst.Parts[2].Kind)
	assert.Equal(t, "done", asst.Parts[2].Text)
}

func TestStateToolOutputNotInTranscript(t *testing.T) {
	s := NewState()
	s.Start("go")
	s.Apply(agentstream.ToolInput("call-1", "weather", json.RawMessage(`{}`)))

	assert.True(t, s.Pending("call-1"))
	require.Len(t, s.PendingCalls(), 1)

	s.Apply(agentstream.ToolOutput("call-1", json.RawMessage(`{"ok":true}`)))

	assert.False(t, s.Pending("call-1"))
	assert.Empty(t, s.PendingCalls())

	out, ok := s.Output("call-1")
	require.True(t, ok)
	assert.JSONEq(t, `{"ok":true}`, string(out))

	// The transcript still holds only the tool-call part.
	asst := s.Messages[1]
	require.Len(t, asst.Parts, 1)
	assert.Equal(t, PartToolCall, asst.Parts[0].Kind)
}

func TestStateDataUpsert(t *testing.T) {
	s := NewState()
	s.Start("doc")

	ev1, err := agentstream.DataEvent("document", "d-1", map[string]any{"progress": 10})
	require.NoError(t, err)
	ev2, err := agentstream.DataEvent("document", "d-1", map[string]any{"progress": 80})
	require.NoError(t, err)
	ev3, err := agentstream.DataEvent("document", "d-2", map[string]any{"progress": 5})
	require.NoError(t, err)

	s.Apply(ev1)
	s.Apply(ev2)
	s.Apply(ev3)

	latest, ok := s.Latest("document", "d-1")
	require.True(t, ok)
	assert.JSONEq(t, `{"progress":80}`, string(latest), "same id replaces, never appends")

	topic := s.Topic("document")
	assert.Len(t, topic, 2)

	_, ok = s.Latest("weather", "d-1")
	assert.False(t, ok)
	assert.Nil(t, s.Topic("weather"))
}

func TestStateDataUpsertIdempotent(t *testing.T) {
	s := NewState()
	s.Start("x")

	ev, err := agentstream.DataEvent("weather", "w-1", map[string]any{"temp": 3})
	require.NoError(t, err)
	s.Apply(ev)
	s.Apply(ev)

	topic := s.Topic("weather")
	require.Len(t, topic, 1)
	assert.JSONEq(t, `{"temp":3}`, string(topic["w-1"]))
}

func TestStateErrorHaltsStructuralUpdates(t *testing.T) {
	s := NewState()
	s.Start("go")
	s.Apply(agentstream.TextDelta("partial"))
	s.Apply(agentstream.ErrorEvent("tool exploded"))

	assert.Equal(t, StatusError, s.Status)
	assert.Equal(t, "tool exploded", s.ErrorMessage)

	// Late events still land in the log but change nothing else.
	s.Apply(agentstream.TextDelta("ghost"))
	asst := s.Messages[1]
	assert.Equal(t, "partial", asst.Parts[0].Text)
	assert.Len(t, s.Log(), 3)

	s.Finish()
	assert.Equal(t, StatusError, s.Status, "error is terminal even through Finish")
}

func TestStateMultipleExchanges(t *testing.T) {
	s := NewState()
	s.Start("first")
	s.Apply(agentstream.TextDelta("answer one"))
	s.Finish()

	s.Start("second")
	assert.Equal(t, StatusRequested, s.Status)
	s.Apply(agentstream.TextDelta("answer two"))
	s.Finish()

	require.Len(t, s.Messages, 4)
	assert.Equal(t, "answer one", s.Messages[1].Parts[0].Text)
	assert.Equal(t, "answer two", s.Messages[3].Parts[0].Text)
}
