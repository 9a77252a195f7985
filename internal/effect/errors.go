package effect

import (
	"errors"
	"fmt"
)

// ExhaustedError is returned by Scripted when the script has no answer for
// an operation.
type ExhaustedError struct {
	Op     OpKind
	Detail string
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("script exhausted for %s: %s", e.Op, e.Detail)
}

// DeniedError is returned when the shell policy forbids a command.
type DeniedError struct {
	Command string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("shell execution denied: %s", e.Command)
}

// IsExhausted reports whether err is or wraps an ExhaustedError.
func IsExhausted(err error) bool {
	var e *ExhaustedError
	return errors.As(err, &e)
}

// IsDenied reports whether err is or wraps a DeniedError.
func IsDenied(err error) bool {
	var e *DeniedError
	return errors.As(err, &e)
}
