package agentstream

import (
	"errors"
	"fmt"
)

// Sentinel errors. Use errors.Is to check.
var (
	ErrToolNotFound     = errors.New("tool not found")
	ErrTimeout          = errors.New("tool execution timeout")
	ErrValidation       = errors.New("validation failed")
	ErrShutdown         = errors.New("registry is shutting down")
	ErrStreamAborted    = errors.New("stream aborted by consumer")
	ErrStreamClosed     = errors.New("write on closed event stream")
	ErrNotFound         = errors.New("not found")
	ErrUpstream         = errors.New("upstream service failure")
	ErrDeadlineExceeded = errors.New("exchange deadline exceeded")
)

// ClientError is an error that should be sent back to the model for
// self-correction (invalid JSON, schema violation, bad enum value).
// Do not expose stack traces or internal details through it.
// Err optionally wraps a sentinel (e.g. ErrValidation) for errors.Is.
type ClientError struct {
	Reason string
	Err    error
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("invalid tool input: %s", e.Reason)
}

// Unwrap supports errors.Is/errors.As on wrapped chains.
func (e *ClientError) Unwrap() error { return e.Err }

// SystemError represents an internal failure (provider down, panic, etc.).
// Neither the model nor the end user sees the underlying message.
type SystemError struct {
	Err error
}

func (e *SystemError) Error() string {
	return "internal system error during tool execution"
}

func (e *SystemError) Unwrap() error { return e.Err }

// IsClientError returns true if err is or wraps a ClientError.
func IsClientError(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce)
}

// IsSystemError returns true if err is or wraps a SystemError.
func IsSystemError(err error) bool {
	var se *SystemError
	return errors.As(err, &se)
}

// wrapJSONParseError returns a ClientError for JSON unmarshal failures so the
// extractor and the dynamic-tool path report parse errors consistently.
func wrapJSONParseError(err error) error {
	return &ClientError{Reason: "json parse error: " + err.Error()}
}

// panicError wraps a recovered panic value for SystemError.
type panicError struct{ p any }

func (e *panicError) Error() string {
	return "panic: " + fmt.Sprint(e.p)
}
