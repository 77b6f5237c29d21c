package provider

import (
	"context"
	"errors"
	"io"
	"sync"
)

// ScriptedClient replays predefined chunk sequences, one per Stream call, in
// order. It records every request it receives so tests can assert on the
// history the caller built. Safe for concurrent use.
type ScriptedClient struct {
	mu       sync.Mutex
	steps    [][]Chunk
	next     int
	err      error
	requests []Request
}

// NewScriptedClient creates a client that serves the given step scripts.
func NewScriptedClient(steps ...[]Chunk) *ScriptedClient {
	return &ScriptedClient{steps: steps}
}

// FailWith makes every subsequent Stream call return err immediately.
func (c *ScriptedClient) FailWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// Requests returns a copy of the requests observed so far.
func (c *ScriptedClient) Requests() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Request, len(c.requests))
	copy(out, c.requests)
	return out
}

// Calls returns how many Stream calls have been served.
func (c *ScriptedClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

func (c *ScriptedClient) Stream(_ context.Context, req Request) (Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if c.err != nil {
		return nil, c.err
	}
	if c.next >= len(c.steps) {
		return nil, errors.New("scripted client: script exhausted")
	}
	chunks := c.steps[c.next]
	c.next++
	return &scriptedStream{chunks: chunks}, nil
}

// scriptedStream yields a fixed chunk slice then io.EOF.
type scriptedStream struct {
	chunks []Chunk
	index  int
	failAt int
	err    error
	closed bool
}

// NewScriptedStream builds a standalone stream over chunks, for callers that
// script a single nested inference call rather than a whole client.
func NewScriptedStream(chunks ...Chunk) Stream {
	return &scriptedStream{chunks: chunks, failAt: -1}
}

// NewFailingStream yields the first failAt chunks and then returns err.
func NewFailingStream(err error, failAt int, chunks ...Chunk) Stream {
	return &scriptedStream{chunks: chunks, failAt: failAt, err: err}
}

func (s *scriptedStream) Recv() (Chunk, error) {
	if s.closed {
		return Chunk{}, errors.New("stream closed")
	}
	if s.err != nil && s.failAt >= 0 && s.index >= s.failAt {
		return Chunk{}, s.err
	}
	if s.index >= len(s.chunks) {
		return Chunk{}, io.EOF
	}
	ch := s.chunks[s.index]
	s.index++
	return ch, nil
}

func (s *scriptedStream) Close() error {
	s.closed = true
	return nil
}

// TextChunks turns plain strings into text chunks, a shorthand for scripts.
func TextChunks(texts ...string) []Chunk {
	out := make([]Chunk, 0, len(texts)+1)
	for _, t := range texts {
		out = append(out, Chunk{Type: ChunkText, Text: t})
	}
	out = append(out, Chunk{Type: ChunkStop, StopReason: "end_turn"})
	return out
}

// ToolCallChunk builds a single complete tool-call chunk.
func ToolCallChunk(id, name, inputJSON string) Chunk {
	return Chunk{Type: ChunkToolCall, ToolCall: &ToolCall{ID: id, Name: name, Input: []byte(inputJSON)}}
}

var (
	_ Client = (*ScriptedClient)(nil)
	_ Stream = (*scriptedStream)(nil)
)
