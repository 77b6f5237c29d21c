package httpapi

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/skosovsky/agentstream"
)

// writeSSE frames one event as a server-sent event and flushes it so deltas
// reach the client without buffering.
func writeSSE(w http.ResponseWriter, flusher http.Flusher, ev agentstream.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// Decoder reads the SSE stream produced by the chat endpoint back into
// events. It is the client-side counterpart of the chat handler's framing.
type Decoder struct {
	scanner *bufio.Scanner
}

// NewDecoder wraps an SSE response body.
func NewDecoder(r io.Reader) *Decoder {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &Decoder{scanner: sc}
}

// Next returns the next event, or io.EOF when the stream ends. Comment lines
// and unknown fields are skipped per the SSE format.
func (d *Decoder) Next() (agentstream.Event, error) {
	var dataLines []string
	sawData := false
	for d.scanner.Scan() {
		line := d.scanner.Text()
		switch {
		case line == "":
			if !sawData {
				continue
			}
			var ev agentstream.Event
			payload := strings.Join(dataLines, "\n")
			if err := json.Unmarshal([]byte(payload), &ev); err != nil {
				return agentstream.Event{}, fmt.Errorf("decode event: %w", err)
			}
			return ev, nil
		case strings.HasPrefix(line, "data:"):
			sawData = true
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		default:
			// event: lines are redundant (the kind is in the payload) and
			// comment lines start with a colon; skip both.
		}
	}
	if err := d.scanner.Err(); err != nil {
		return agentstream.Event{}, err
	}
	if sawData {
		var ev agentstream.Event
		if err := json.Unmarshal([]byte(strings.Join(dataLines, "\n")), &ev); err != nil {
			return agentstream.Event{}, fmt.Errorf("decode event: %w", err)
		}
		return ev, nil
	}
	return agentstream.Event{}, io.EOF
}
