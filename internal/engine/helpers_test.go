package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/dustrun/internal/ir"
	"github.com/roach88/dustrun/internal/testutil"
)

func quietOptions(extra ...Option) []Option {
	return append([]Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithRunIDGenerator(testutil.NewSequentialRunIDGenerator("test-run")),
	}, extra...)
}

func execute(t *testing.T, prog *ir.Program, cfg Config, opts ...Option) Trace {
	t.Helper()
	trace, err := Execute(context.Background(), prog, cfg, quietOptions(opts...)...)
	require.NoError(t, err)
	require.False(t, trace.IsZero())
	return trace
}

func simulate(t *testing.T, prog *ir.Program) Trace {
	t.Helper()
	return execute(t, prog, Config{Mode: ModeSimulate})
}

func requireFault(t *testing.T, trace Trace, kind ErrorKind, message string) {
	t.Helper()
	require.NotNil(t, trace.Failure, "expected failure trace, got %s", trace)
	require.Equal(t, kind, trace.Failure.Kind)
	require.Equal(t, message, trace.Failure.Message)
}

// countingRealizer counts calls per kind and fails for kinds in failOn.
type countingRealizer struct {
	calls  []EffectEvent
	failOn map[string]bool
}

func (c *countingRealizer) Realize(_ context.Context, ev EffectEvent) error {
	c.calls = append(c.calls, ev)
	if c.failOn[ev.Kind] {
		return errSinkDown
	}
	return nil
}

var errSinkDown = &hostError{"sink /dev/effects unavailable"}

type hostError struct{ msg string }

func (e *hostError) Error() string { return e.msg }
