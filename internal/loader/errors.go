package loader

import (
	"errors"
	"fmt"

	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// Error code constants for load failures. Validation failures reuse the
// ir package's E1xx codes.
const (
	ErrCodeGeneric        = "E001" // Generic/unknown error
	ErrCodeUnsupported    = "E002" // Unsupported source extension
	ErrCodeReadFailed     = "E003" // Source could not be read
	ErrCodeLoadFailed     = "E004" // CUE load failed
	ErrCodeNotFound       = "E005" // Path not found
	ErrCodeBuildFailed    = "E006" // CUE build or JSON parse failed
	ErrCodeSchema         = "E007" // Source does not match #Program
	ErrCodeDecode         = "E008" // Schema-valid source failed to decode
	ErrCodeInvalidProgram = "E009" // Expression or constraint problem
)

// LoadError represents an error that occurred while loading a program.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsLoadError checks if an error is a LoadError.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}

// fromCUE converts a CUE error into LoadErrors, one per underlying error,
// each with its first position.
func fromCUE(code string, err error) []error {
	var out []error
	for _, e := range cueerrors.Errors(err) {
		le := &LoadError{Code: code, Message: e.Error()}
		if positions := cueerrors.Positions(e); len(positions) > 0 {
			le.Pos = positions[0]
		}
		out = append(out, le)
	}
	if len(out) == 0 {
		out = append(out, &LoadError{Code: code, Message: err.Error()})
	}
	return out
}
