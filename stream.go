package agentstream

import (
	"errors"
	"io"
	"sync"
)

// DefaultWriterBuffer is the channel capacity used when NewWriter is given a
// non-positive buffer size.
const DefaultWriterBuffer = 64

// Writer is the single ordered sink shared by every producer within one
// exchange: the orchestrator's step loop, merged provider streams, and tools
// emitting data events while they run. Writes are serialized through an
// internal mutex (concurrent writers queue; they never interleave), and
// exactly one consumer drains Events to the network boundary.
//
// There is no recovery inside the writer: a Write after Close fails with
// ErrStreamClosed, and Close succeeds exactly once.
type Writer struct {
	mu      sync.Mutex
	closeMu sync.Mutex
	events  chan Event
	done    chan struct{}
	closed  bool
}

// NewWriter creates a Writer with a bounded channel of the given capacity.
func NewWriter(buffer int) *Writer {
	if buffer <= 0 {
		buffer = DefaultWriterBuffer
	}
	return &Writer{
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
	}
}

// Write appends ev to the outgoing sequence. It blocks while another writer
// holds the slot or while the bounded channel is full, which is what gives the
// stream its total order. A Write blocked on a full channel is released by
// Close; it and every later Write return ErrStreamClosed.
func (w *Writer) Write(ev Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrStreamClosed
	}
	select {
	case w.events <- ev:
		return nil
	case <-w.done:
		return ErrStreamClosed
	}
}

// EventSource is a producer whose events can be merged into a Writer.
// Recv returns io.EOF when the source is exhausted.
type EventSource interface {
	Recv() (Event, error)
}

// Merge forwards events from src into the writer 1:1, preserving the source's
// internal order. Interleaving with other writers happens solely on arrival.
func (w *Writer) Merge(src EventSource) error {
	for {
		ev, err := src.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := w.Write(ev); err != nil {
			return err
		}
	}
}

// Close ends the stream. The first call releases any Write blocked on a full
// channel, waits for it to return, then closes the consumer channel and
// returns nil; any later call returns ErrStreamClosed. Events already buffered
// stay available to the consumer.
func (w *Writer) Close() error {
	w.closeMu.Lock()
	defer w.closeMu.Unlock()
	select {
	case <-w.done:
		return ErrStreamClosed
	default:
	}
	close(w.done)
	w.mu.Lock()
	w.closed = true
	close(w.events)
	w.mu.Unlock()
	return nil
}

// Events returns the consumer side of the stream. It must be drained by
// exactly one goroutine; the channel is closed by Close.
func (w *Writer) Events() <-chan Event {
	return w.events
}

// Emitter returns an EmitFunc bound to this writer, handed to tools so they
// can publish data events mid-execution.
func (w *Writer) Emitter() EmitFunc {
	return func(topic, id string, payload any) error {
		ev, err := DataEvent(topic, id, payload)
		if err != nil {
			return err
		}
		return w.Write(ev)
	}
}
