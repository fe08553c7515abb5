package expr

import (
	"errors"
	"fmt"
)

// SyntaxError reports a malformed expression. Programs reaching the engine
// are expected to parse; a SyntaxError there is a precondition violation.
type SyntaxError struct {
	Pos     int // byte offset into the source
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at offset %d: %s", e.Pos, e.Message)
}

// EvalError is a semantic evaluation failure. Message is stable across runs
// and free of host-specific data.
type EvalError struct {
	Message string
}

func (e *EvalError) Error() string {
	return e.Message
}

func evalErrorf(format string, args ...any) *EvalError {
	return &EvalError{Message: fmt.Sprintf(format, args...)}
}

// IsEvalError checks if an error is an EvalError.
func IsEvalError(err error) bool {
	var e *EvalError
	return errors.As(err, &e)
}
