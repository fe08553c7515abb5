package engine

import (
	"context"

	"github.com/roach88/dustrun/internal/ir"
)

// Execute runs prog to completion and returns its trace.
//
// Semantic failures come back as a FailureTrace with a nil error. The
// error return is reserved for host conditions: ErrCancelled and
// PreconditionError.
func Execute(ctx context.Context, prog *ir.Program, cfg Config, opts ...Option) (Trace, error) {
	m, err := NewMachine(prog, cfg, opts...)
	if err != nil {
		return Trace{}, err
	}
	return m.Run(ctx)
}
