package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures across the runtime. The API layer maps
// kinds to HTTP status codes; strategies use kinds to decide whether a
// failure is LLM-observable or terminal.
type ErrorKind string

const (
	// KindInvalidInput is a malformed request, upload, or tool argument
	KindInvalidInput ErrorKind = "INVALID_INPUT"
	// KindUnsupportedFormat is a dataset extension the reader cannot handle
	KindUnsupportedFormat ErrorKind = "UNSUPPORTED_FORMAT"
	// KindExecutorUnavailable means the sandbox could not spawn or touch the filesystem
	KindExecutorUnavailable ErrorKind = "EXECUTOR_UNAVAILABLE"
	// KindLLMFailed is a non-retryable LLM error or exhausted retries
	KindLLMFailed ErrorKind = "LLM_FAILED"
	// KindTimeout is a sandbox or LLM deadline hit
	KindTimeout ErrorKind = "TIMEOUT"
	// KindInvalidState is a mutation in a terminal phase or an I1 violation
	KindInvalidState ErrorKind = "INVALID_STATE"
	// KindUnknownSession is a control-surface reference to a missing session
	KindUnknownSession ErrorKind = "UNKNOWN_SESSION"
	// KindSessionNotReady is a fetch before the session reached a terminal phase
	KindSessionNotReady ErrorKind = "SESSION_NOT_READY"
	// KindCancelled is a cooperative stop observed mid-operation
	KindCancelled ErrorKind = "CANCELLED"
)

// Error is a kinded runtime error. Message is safe to surface to clients
// and to the LLM; Err carries the underlying cause for logs.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a kinded error with a formatted message
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates a kinded error wrapping an underlying cause
func WrapError(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the kind from an error chain; empty string if none
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind checks whether the error chain carries the given kind
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
