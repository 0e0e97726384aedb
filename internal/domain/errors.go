package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed gateway operation for the HTTP boundary.
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindInsufficientFunds ErrorKind = "insufficient-funds"
	KindUpstream          ErrorKind = "upstream"
	KindUpstreamTimeout   ErrorKind = "upstream-timeout"
	KindEventNotFound     ErrorKind = "event-not-found"
	KindUnknown           ErrorKind = "unknown"
)

// Error is the single error type returned by gateway operations.
type Error struct {
	Kind    ErrorKind
	Message string
	// Details is serialised verbatim; a string cause or a structured payload.
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Cause returns the message of the wrapped error, or Message when nothing is wrapped.
func (e *Error) Cause() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func NewValidationError(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// KindOf reports the kind of err, KindUnknown when err is not a *Error.
func KindOf(err error) ErrorKind {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Kind
	}
	return KindUnknown
}
