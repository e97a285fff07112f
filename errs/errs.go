// Package errs provides structured error types and helpers for the cadenza core.
package errs

import (
	"errors"
	"strings"
)

// Code identifies a sequencer-core error category.
type Code string

const (
	// CodeRejected indicates an enqueue refused because the target sequencer
	// is absent or already going down.
	CodeRejected Code = "rejected"
	// CodeCapacity indicates the event-node pool could not supply a node.
	CodeCapacity Code = "capacity"
	// CodeInvalid indicates invalid input provided by the caller.
	CodeInvalid Code = "invalid_request"
	// CodeClosed indicates the owning context has been torn down.
	CodeClosed Code = "closed"
)

// E captures structured error information produced across the cadenza stack.
type E struct {
	Scope     string
	Code      Code
	Sequencer string
	Message   string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the scope and error code.
func New(scope string, code Code, opts ...Option) *E {
	e := &E{
		Scope:     strings.TrimSpace(scope),
		Code:      code,
		Sequencer: "",
		Message:   "",
		cause:     nil,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithSequencer records the name of the sequencer involved in the failure.
func WithSequencer(name string) Option {
	trimmed := strings.TrimSpace(name)
	return func(e *E) {
		e.Sequencer = trimmed
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string

	scope := strings.TrimSpace(e.Scope)
	if scope == "" {
		scope = "unknown"
	}
	parts = append(parts, "scope="+scope)

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = "unknown"
	}
	parts = append(parts, "code="+code)

	if e.Sequencer != "" {
		parts = append(parts, "seq="+e.Sequencer)
	}
	if e.Message != "" {
		parts = append(parts, "msg="+e.Message)
	}
	if e.cause != nil {
		parts = append(parts, "cause="+e.cause.Error())
	}
	return strings.Join(parts, " ")
}

// Unwrap exposes the underlying cause for errors.Is / errors.As chains.
func (e *E) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// CodeOf extracts the error code from err, or an empty code when err is not an *E.
func CodeOf(err error) Code {
	var e *E
	if errors.As(err, &e) && e != nil {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
