package model

import (
	"errors"
	"fmt"
)

// Kind classifies an error for programmatic handling by callers and by
// the embedding API layer.
type Kind string

const (
	// KindNotFound indicates an unknown variant or instance name.
	KindNotFound Kind = "not_found"

	// KindConflict indicates a name that already exists, a job already
	// in flight, or a cancel aimed at a terminal job.
	KindConflict Kind = "conflict"

	// KindForbidden indicates a capability flag disallows the requested
	// operation on the instance's variant.
	KindForbidden Kind = "forbidden"

	// KindIOFailure indicates a persistence read or write error.
	KindIOFailure Kind = "io_failure"

	// KindJobFailure indicates a background unit of work raised an
	// error. It is surfaced through status polling, never synchronously.
	KindJobFailure Kind = "job_failure"
)

// Error is a classified error with resource and operation context.
type Error struct {
	// Kind is the error classification.
	Kind Kind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Resource is the instance name the error relates to, if any.
	Resource string `json:"resource,omitempty"`

	// Op is the lifecycle operation being performed, if any.
	Op string `json:"op,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if e.Resource != "" {
		msg += fmt.Sprintf(" (resource=%s)", e.Resource)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error equality for errors.Is based on kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// WithResource adds instance-name context to the error.
func (e *Error) WithResource(name string) *Error {
	e.Resource = name
	return e
}

// WithOp adds operation context to the error.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// NewNotFound creates a new not-found error.
func NewNotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// NewConflict creates a new conflict error.
func NewConflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// NewForbidden creates a new forbidden error.
func NewForbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

// NewIOFailure creates a new I/O failure wrapping err.
func NewIOFailure(message string, err error) *Error {
	return &Error{Kind: KindIOFailure, Message: message, Err: err}
}

// NewJobFailure creates a new job failure wrapping err.
func NewJobFailure(message string, err error) *Error {
	return &Error{Kind: KindJobFailure, Message: message, Err: err}
}

// KindOf returns the kind of err, or the empty string if err is not a
// classified error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsNotFound reports whether err is classified as not found.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsConflict reports whether err is classified as a conflict.
func IsConflict(err error) bool { return KindOf(err) == KindConflict }

// IsForbidden reports whether err is classified as forbidden.
func IsForbidden(err error) bool { return KindOf(err) == KindForbidden }

// IsIOFailure reports whether err is classified as an I/O failure.
func IsIOFailure(err error) bool { return KindOf(err) == KindIOFailure }

// IsJobFailure reports whether err is classified as a job failure.
func IsJobFailure(err error) bool { return KindOf(err) == KindJobFailure }
