package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dustrun/internal/engine"
	"github.com/roach88/dustrun/internal/testutil"
)

func TestBeginRun_DuplicateID(t *testing.T) {
	s := createTestStore(t)
	prog := testutil.HelloProgram()
	beginTestRun(t, s, "run-1", prog, engine.DefaultConfig())

	err := s.BeginRun(context.Background(), RunStart{
		ID: "run-1", ProgramName: prog.Name, Digest: "d", Mode: engine.ModeSimulate,
	})
	assert.Error(t, err)
}

func TestBeginRun_RejectsUnknownMode(t *testing.T) {
	s := createTestStore(t)
	err := s.BeginRun(context.Background(), RunStart{ID: "r", ProgramName: "p", Digest: "d", Mode: "dry-run"})
	assert.Error(t, err)
}

func TestFinishRun_Success(t *testing.T) {
	s := createTestStore(t)
	trace := runAndFinish(t, s, "run-1", testutil.HelloProgram(), engine.DefaultConfig())

	run, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, run.Status)
	assert.Equal(t, OutcomeSuccess, run.Outcome)
	assert.Equal(t, trace.Digest(), run.TraceDigest)
	assert.Equal(t, "hello", run.ProgramName)
	assert.Equal(t, "simulate", run.Mode)

	b, err := run.Bundle()
	require.NoError(t, err)
	assert.True(t, b.Trace.Equal(trace))
}

func TestFinishRun_Failure(t *testing.T) {
	s := createTestStore(t)
	runAndFinish(t, s, "run-1", testutil.LeakProgram(), engine.DefaultConfig())

	run, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, run.Status)
	assert.Equal(t, "LinearityViolation", run.Outcome)
}

func TestFinishRun_OnlyOnce(t *testing.T) {
	s := createTestStore(t)
	prog := testutil.HelloProgram()
	trace := runAndFinish(t, s, "run-1", prog, engine.DefaultConfig())

	b, err := engine.NewBundle(prog, engine.DefaultConfig(), trace)
	require.NoError(t, err)
	assert.Error(t, s.FinishRun(context.Background(), "run-1", b))
	assert.Error(t, s.FinishRun(context.Background(), "missing", b))
}

func TestCancelRun(t *testing.T) {
	s := createTestStore(t)
	beginTestRun(t, s, "run-1", testutil.HelloProgram(), engine.DefaultConfig())

	require.NoError(t, s.CancelRun(context.Background(), "run-1"))
	run, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, run.Status)
	assert.False(t, run.HasBundle())

	_, err = run.Bundle()
	assert.Error(t, err)
}

func TestAbortRun(t *testing.T) {
	s := createTestStore(t)
	beginTestRun(t, s, "run-1", testutil.HelloProgram(), engine.DefaultConfig())

	require.NoError(t, s.AbortRun(context.Background(), "run-1"))
	run, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, run.Status)
	assert.Equal(t, OutcomeAborted, run.Outcome)
	assert.False(t, run.HasBundle())

	// Only running runs can be aborted.
	assert.Error(t, s.AbortRun(context.Background(), "run-1"))
	assert.Error(t, s.AbortRun(context.Background(), "missing"))
}

func TestOutbox_RecordsRealizedEffects(t *testing.T) {
	s := createTestStore(t)
	prog := mixedKindsProgram()
	cfg := engine.Config{Mode: engine.ModeRealize}
	outbox := s.NewOutbox("run-1")

	runAndFinish(t, s, "run-1", prog, cfg,
		engine.WithRealizers(outbox.Wrap(prog.EffectKinds(), nil)))

	effects, err := s.RealizedEffects(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, []RealizedEffect{
		{Seq: 1, Kind: "emit", Payload: "Hello"},
		{Seq: 2, Kind: "qpu", Payload: "q#0"},
		{Seq: 3, Kind: "qpu", Payload: "q#0 -> m=0"},
	}, effects)
	assert.Equal(t, 3, outbox.Count())
}

func TestOutbox_SimulateRecordsNothing(t *testing.T) {
	s := createTestStore(t)
	prog := mixedKindsProgram()
	outbox := s.NewOutbox("run-1")

	runAndFinish(t, s, "run-1", prog, engine.DefaultConfig(),
		engine.WithRealizers(outbox.Wrap(prog.EffectKinds(), nil)))

	effects, err := s.RealizedEffects(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Empty(t, effects)
}

func TestOutbox_KeepsPartialLogOfFailedRun(t *testing.T) {
	s := createTestStore(t)
	prog := testutil.NewProgram("partial").
		Stmt(
			irEffect("emit", `"one"`),
			irEffect("alarm", `"two"`),
			irEffect("emit", `"three"`),
		).
		Build()
	cfg := engine.Config{Mode: engine.ModeRealize}
	outbox := s.NewOutbox("run-1")
	failing := engine.Realizers{
		"alarm": engine.RealizerFunc(func(context.Context, engine.EffectEvent) error {
			return errors.New("pager offline")
		}),
	}

	trace := runAndFinish(t, s, "run-1", prog, cfg,
		engine.WithRealizers(outbox.Wrap(prog.EffectKinds(), failing)))
	require.NotNil(t, trace.Failure)
	assert.Equal(t, engine.KindEffectRealizationFailure, trace.Failure.Kind)

	effects, err := s.RealizedEffects(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, []RealizedEffect{{Seq: 1, Kind: "emit", Payload: "one"}}, effects)
}

func TestOutbox_UnknownRunFailsRealization(t *testing.T) {
	s := createTestStore(t)
	prog := testutil.HelloProgram()
	outbox := s.NewOutbox("never-begun")

	trace, err := engine.Execute(context.Background(), prog, engine.Config{Mode: engine.ModeRealize},
		engine.WithRealizers(outbox.Wrap(prog.EffectKinds(), nil)))
	require.NoError(t, err)
	require.NotNil(t, trace.Failure)
	assert.Equal(t, `effect "emit" could not be realized`, trace.Failure.Message)
}
