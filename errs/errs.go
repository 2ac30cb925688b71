// Package errs provides structured error types and helpers for softpool.
package errs

import (
	"errors"
	"strconv"
	"strings"
)

// Code identifies a pool error category.
type Code string

const (
	// CodeCreation indicates the factory could not produce a new object.
	CodeCreation Code = "creation_failed"
	// CodeActivation indicates an idle object failed its activation hook.
	CodeActivation Code = "activation_failed"
	// CodePassivation indicates a returned object failed its passivation hook.
	CodePassivation Code = "passivation_failed"
	// CodeValidation indicates an object failed its borrow-time validation.
	CodeValidation Code = "validation_failed"
	// CodeExhausted indicates no idle object was usable and creation failed
	// or the retry budget ran out.
	CodeExhausted Code = "exhausted"
	// CodeClosed indicates an operation was attempted on a closed pool.
	CodeClosed Code = "pool_closed"
	// CodeNotBorrowed indicates the pool does not recognize the object as
	// currently borrowed from it.
	CodeNotBorrowed Code = "not_borrowed"
	// CodeInvalid indicates invalid input provided by the caller.
	CodeInvalid Code = "invalid_request"
)

// E captures structured error information produced by pool operations.
type E struct {
	Pool     string
	Code     Code
	ObjectID string
	Message  string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the named pool and error code.
func New(pool string, code Code, opts ...Option) *E {
	e := &E{
		Pool:     strings.TrimSpace(pool),
		Code:     code,
		ObjectID: "",
		Message:  "",
		cause:    nil,
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

// WithObjectID records the pooled object identity the error relates to.
func WithObjectID(id string) Option {
	trimmed := strings.TrimSpace(id)
	return func(e *E) {
		e.ObjectID = trimmed
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

	pool := strings.TrimSpace(e.Pool)
	if pool == "" {
		pool = "unknown"
	}
	parts = append(parts, "pool="+pool)

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = "unknown"
	}
	parts = append(parts, "code="+code)

	if e.ObjectID != "" {
		parts = append(parts, "object="+e.ObjectID)
	}
	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// CodeOf extracts the pool error code from err, unwrapping as needed.
// It returns an empty code when err carries no pool envelope.
func CodeOf(err error) Code {
	var e *E
	if errors.As(err, &e) && e != nil {
		return e.Code
	}
	return ""
}

// IsClosed reports whether err indicates an operation on a closed pool.
func IsClosed(err error) bool { return CodeOf(err) == CodeClosed }

// IsNotBorrowed reports whether err indicates an object unknown to the pool.
func IsNotBorrowed(err error) bool { return CodeOf(err) == CodeNotBorrowed }

// IsExhausted reports whether err indicates no object could be obtained.
func IsExhausted(err error) bool { return CodeOf(err) == CodeExhausted }
