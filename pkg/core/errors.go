// Package core holds shared primitives for the voice bridge: the error
// taxonomy used at every component boundary.
package core

import (
	"errors"
	"fmt"
)

// ErrorType categorizes bridge errors by the recovery policy they demand.
type ErrorType string

const (
	// ErrConnection covers realtime socket failures. Retryable unless the
	// close/auth code marks it terminal.
	ErrConnection ErrorType = "connection_error"
	// ErrTranscription covers STT provider failures. Empty or low-quality
	// output is NOT a transcription error; it is "no usable input".
	ErrTranscription ErrorType = "transcription_error"
	// ErrSynthesis covers TTS provider failures; cascades to the next
	// provider in the chain.
	ErrSynthesis ErrorType = "synthesis_error"
	// ErrProtocol covers malformed inbound frames and transcoding
	// failures. The frame or utterance is dropped, the session continues.
	ErrProtocol ErrorType = "protocol_error"
	// ErrResourceExhaustion covers memory/timeout thresholds. Logged,
	// never aborts active calls.
	ErrResourceExhaustion ErrorType = "resource_exhaustion"
)

// Error is the bridge-wide error value. Components convert provider and
// transport failures into one of these before crossing a boundary.
type Error struct {
	Type      ErrorType `json:"type"`
	Message   string    `json:"message"`
	Provider  string    `json:"provider,omitempty"`
	Code      string    `json:"code,omitempty"`
	Retryable bool      `json:"retryable,omitempty"`
	Terminal  bool      `json:"terminal,omitempty"`

	underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Provider, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error { return e.underlying }

// IsRetryable reports whether the caller should retry the same operation.
func (e *Error) IsRetryable() bool {
	if e == nil {
		return false
	}
	return e.Retryable && !e.Terminal
}

// NewConnectionError creates a connection error. retryable distinguishes
// transient socket closes from auth-style terminal failures.
func NewConnectionError(message string, retryable bool, cause error) *Error {
	return &Error{
		Type:       ErrConnection,
		Message:    message,
		Retryable:  retryable,
		Terminal:   !retryable,
		underlying: cause,
	}
}

// NewTranscriptionError wraps an STT provider failure.
func NewTranscriptionError(provider string, cause error) *Error {
	return &Error{
		Type:       ErrTranscription,
		Message:    fmt.Sprintf("%v", cause),
		Provider:   provider,
		Retryable:  true,
		underlying: cause,
	}
}

// NewSynthesisError wraps a TTS provider failure.
func NewSynthesisError(provider string, cause error) *Error {
	return &Error{
		Type:       ErrSynthesis,
		Message:    fmt.Sprintf("%v", cause),
		Provider:   provider,
		Retryable:  true,
		underlying: cause,
	}
}

// NewProtocolError wraps a malformed-frame or transcoding failure.
func NewProtocolError(message string, cause error) *Error {
	return &Error{
		Type:       ErrProtocol,
		Message:    message,
		underlying: cause,
	}
}

// NewResourceError reports a memory or timeout threshold breach.
func NewResourceError(message string) *Error {
	return &Error{Type: ErrResourceExhaustion, Message: message}
}

// TypeOf returns the taxonomy type of err, or "" when err is not a bridge
// error.
func TypeOf(err error) ErrorType {
	var be *Error
	if errors.As(err, &be) {
		return be.Type
	}
	return ""
}

// IsTerminal reports whether err carries a terminal (non-retryable,
// non-failover) condition such as an authentication failure.
func IsTerminal(err error) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Terminal
	}
	return false
}
