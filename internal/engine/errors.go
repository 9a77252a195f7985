package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/cognos/internal/effect"
	"github.com/roach88/cognos/internal/schema"
)

// RuntimeError represents an error detected while executing a program.
//
// Runtime errors include:
//   - Undefined variables, bad operand types, division by zero
//   - Unknown flows or types (NOT_FOUND)
//   - Misused futures (CONCURRENCY)
//   - Loop and call-depth limits
//
// All of them are recoverable by try/catch.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Flow names the flow executing when the error was raised.
	Flow string

	// Line is the 1-based source line, 0 when unknown.
	Line int
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeRuntime is a general evaluation failure.
	ErrCodeRuntime RuntimeErrorCode = "RUNTIME"

	// ErrCodeNotFound indicates an unknown flow or type name.
	ErrCodeNotFound RuntimeErrorCode = "NOT_FOUND"

	// ErrCodeConcurrency indicates a misused or cancelled future.
	ErrCodeConcurrency RuntimeErrorCode = "CONCURRENCY"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	switch {
	case e.Flow != "" && e.Line > 0:
		return fmt.Sprintf("%s (flow %s, line %d)", e.Message, e.Flow, e.Line)
	case e.Line > 0:
		return fmt.Sprintf("%s (line %d)", e.Message, e.Line)
	}
	return e.Message
}

func newError(code RuntimeErrorCode, format string, args ...any) *RuntimeError {
	return &RuntimeError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Errorf creates a RUNTIME error.
func Errorf(format string, args ...any) *RuntimeError {
	return newError(ErrCodeRuntime, format, args...)
}

// NotFoundf creates a NOT_FOUND error.
func NotFoundf(format string, args ...any) *RuntimeError {
	return newError(ErrCodeNotFound, format, args...)
}

// Concurrencyf creates a CONCURRENCY error.
func Concurrencyf(format string, args ...any) *RuntimeError {
	return newError(ErrCodeConcurrency, format, args...)
}

// IsNotFound returns true if err is a NOT_FOUND runtime error.
// Uses errors.As to handle wrapped errors.
func IsNotFound(err error) bool {
	var re *RuntimeError
	return errors.As(err, &re) && re.Code == ErrCodeNotFound
}

// IsConcurrencyError returns true if err is a CONCURRENCY runtime error.
func IsConcurrencyError(err error) bool {
	var re *RuntimeError
	return errors.As(err, &re) && re.Code == ErrCodeConcurrency
}

// cancelledError unwinds a cancelled branch or task. try/catch never
// intercepts it.
type cancelledError struct {
	cause error
}

func (e *cancelledError) Error() string {
	if e.cause != nil {
		return "cancelled: " + e.cause.Error()
	}
	return "cancelled"
}

func (e *cancelledError) Unwrap() error { return e.cause }

// IsCancelled reports whether err is the internal cancellation signal.
func IsCancelled(err error) bool {
	var ce *cancelledError
	return errors.As(err, &ce)
}

// ErrorKind is the user-facing category of an error.
type ErrorKind string

const (
	KindRuntime         ErrorKind = "RuntimeError"
	KindNotFound        ErrorKind = "NotFoundError"
	KindConcurrency     ErrorKind = "ConcurrencyError"
	KindValidation      ErrorKind = "ValidationError"
	KindEffectExhausted ErrorKind = "EffectExhaustedError"
	KindEffectDenied    ErrorKind = "EffectDeniedError"
	KindCancelled       ErrorKind = "Cancelled"
)

// Classify maps any error to its kind. Errors from outside the taxonomy
// (for example a failed file read in the Live boundary) are RuntimeErrors.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if IsCancelled(err) {
		return KindCancelled
	}
	var re *RuntimeError
	if errors.As(err, &re) {
		switch re.Code {
		case ErrCodeNotFound:
			return KindNotFound
		case ErrCodeConcurrency:
			return KindConcurrency
		}
		return KindRuntime
	}
	switch {
	case schema.IsValidationError(err):
		return KindValidation
	case effect.IsExhausted(err):
		return KindEffectExhausted
	case effect.IsDenied(err):
		return KindEffectDenied
	}
	return KindRuntime
}

// at stamps a location on RuntimeErrors that do not have one yet.
func at(err error, flow string, line int) error {
	var re *RuntimeError
	if errors.As(err, &re) {
		if re.Line == 0 {
			re.Line = line
		}
		if re.Flow == "" {
			re.Flow = flow
		}
	}
	return err
}
