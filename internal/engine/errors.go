package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is the stable, closed taxonomy of semantic run failures.
// Every FailureTrace carries exactly one of these.
type ErrorKind string

const (
	// KindInadmissible: the resolver proved no execution exists.
	KindInadmissible ErrorKind = "Inadmissible"

	// KindLinearityViolation: a Q resource was misused or left unresolved.
	KindLinearityViolation ErrorKind = "LinearityViolation"

	// KindRuntimeFault: a K statement performed an invalid operation.
	KindRuntimeFault ErrorKind = "RuntimeFault"

	// KindEffectRealizationFailure: an external action failed in realize mode.
	KindEffectRealizationFailure ErrorKind = "EffectRealizationFailure"

	// KindReplayMismatch: a replayed trace differs from the recorded one.
	KindReplayMismatch ErrorKind = "ReplayMismatch"
)

// Valid reports whether k is one of the defined kinds.
func (k ErrorKind) Valid() bool {
	switch k {
	case KindInadmissible, KindLinearityViolation, KindRuntimeFault,
		KindEffectRealizationFailure, KindReplayMismatch:
		return true
	}
	return false
}

// Fault is a semantic, run-ending failure. It always becomes a FailureTrace;
// Message must be stable across runs and free of host-specific data.
type Fault struct {
	Kind    ErrorKind
	Message string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// NewFault creates a Fault with a formatted message.
func NewFault(kind ErrorKind, format string, args ...any) *Fault {
	return &Fault{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AsFault extracts a Fault from err.
// Uses errors.As to handle wrapped errors.
func AsFault(err error) (*Fault, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// IsFault returns true if err is a Fault of the given kind.
func IsFault(err error, kind ErrorKind) bool {
	f, ok := AsFault(err)
	return ok && f.Kind == kind
}

// ErrCancelled reports a host-triggered abort. It is never encoded as a
// FailureTrace: the cause is external, not semantic.
var ErrCancelled = errors.New("run cancelled")

// IsCancelled returns true if err reports a cancelled run.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// PreconditionError reports a program or bundle the engine refuses to run
// because it is structurally malformed. Loaders are expected to catch these
// first; reaching the engine with one is a caller bug, not a program fault.
type PreconditionError struct {
	Problems []string
}

func (e *PreconditionError) Error() string {
	if len(e.Problems) == 1 {
		return "precondition violated: " + e.Problems[0]
	}
	return fmt.Sprintf("precondition violated (%d problems): %s", len(e.Problems), strings.Join(e.Problems, "; "))
}

// NewPreconditionError creates a PreconditionError with a single problem.
func NewPreconditionError(format string, args ...any) *PreconditionError {
	return &PreconditionError{Problems: []string{fmt.Sprintf(format, args...)}}
}

// IsPrecondition returns true if err is a PreconditionError.
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}
