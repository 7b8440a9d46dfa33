// Package errs defines the error kinds shared by the gap engine.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an engine failure.
type Kind string

const (
	InvalidInput     Kind = "invalid_input"
	NoTimeframeData  Kind = "no_timeframe_data"
	UnknownStrategy  Kind = "unknown_strategy"
	ValidationFailed Kind = "validation_failed"
	NotFound         Kind = "not_found"
	Corrupt          Kind = "corrupt"
	IOFailure        Kind = "io_failure"
)

// Error carries a Kind alongside the message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an error of the given kind.
func New(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to err. A nil err yields nil.
func Wrap(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the outermost *Error in the chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
