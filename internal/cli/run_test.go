package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dustrun/internal/engine"
	"github.com/roach88/dustrun/internal/store"
)

func TestRun_SimulateHello(t *testing.T) {
	stdout, _, err := execute(t, NewRunCommand(textOpts()), programFile("hello.json"))
	require.NoError(t, err)
	assert.Equal(t, "✓ Success at tick 1\n  [1] emit: Hello\n", stdout)
}

func TestRun_RealizeWritesEffectsFirst(t *testing.T) {
	stdout, _, err := execute(t, NewRunCommand(textOpts()), "--effects", "realize", programFile("hello.json"))
	require.NoError(t, err)
	assert.Equal(t, "emit: Hello\n✓ Success at tick 1\n  [1] emit: Hello\n", stdout)
}

func TestRun_RealizeJSONKeepsStdoutClean(t *testing.T) {
	stdout, stderr, err := execute(t, NewRunCommand(jsonOpts()), "--effects", "realize", programFile("hello.json"))
	require.NoError(t, err)
	assert.Contains(t, stderr, `msg="effect realized" kind=emit payload=Hello`)

	resp := decodeResponse(t, stdout)
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, resp.RunID)

	var res TraceResult
	decodeData(t, resp, &res)
	assert.Equal(t, "hello", res.Program)
	assert.Equal(t, engine.ModeRealize, res.Mode)
	assert.Equal(t, res.Trace.Digest(), res.Digest)
	assert.Equal(t,
		`{"returned":null,"effects":{"events":[{"kind":"emit","payload":"Hello"}]},"time":{"tick":1}}`,
		string(res.Trace.Bytes()))
}

func TestRun_ReturnedValue(t *testing.T) {
	stdout, _, err := execute(t, NewRunCommand(textOpts()), programFile("point.json"))
	require.NoError(t, err)
	assert.Equal(t, "✓ Success at tick 2\n  returned: Point{x:1,y:2}\n  no effects\n", stdout)
}

func TestRun_MixedRegimes(t *testing.T) {
	stdout, _, err := execute(t, NewRunCommand(textOpts()), programFile("mixed.cue"))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 9)
	assert.Equal(t, "✓ Success at tick 14", lines[0])
	assert.Equal(t, `  returned: Reading{label:"done",bit:1}`, lines[1])
	assert.Equal(t, "  [1] emit: 42", lines[2])
	assert.Equal(t, "  [7] log: Reading{label:\"done\",bit:1}", lines[8])
}

func TestRun_FailureTraces(t *testing.T) {
	tests := []struct {
		program string
		want    string
	}{
		{"leak.json", `✗ LinearityViolation: resource "q" was never measured or deallocated`},
		{"unsat.json", "✗ Inadmissible: constraint unsatisfiable: x Gt 5"},
	}

	for _, tt := range tests {
		t.Run(tt.program, func(t *testing.T) {
			stdout, _, err := execute(t, NewRunCommand(textOpts()), programFile(tt.program))
			require.Error(t, err)
			assert.Equal(t, ExitSemanticFailure, GetExitCode(err))
			assert.Equal(t, tt.want+"\n", stdout)
		})
	}
}

func TestRun_FailureTraceJSON(t *testing.T) {
	stdout, _, err := execute(t, NewRunCommand(jsonOpts()), programFile("leak.json"))
	require.Error(t, err)
	assert.Equal(t, ExitSemanticFailure, GetExitCode(err))

	resp := decodeResponse(t, stdout)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(engine.KindLinearityViolation), resp.Error.Code)

	var res TraceResult
	decodeData(t, resp, &res)
	assert.False(t, res.Trace.IsSuccess())
}

func TestRun_LoadErrors(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"name": "bad", "body": [{"regime": "K", "op": "jump"}]}`), 0o644))

	stdout, _, err := execute(t, NewRunCommand(textOpts()), bad)
	require.Error(t, err)
	assert.Equal(t, ExitLoadError, GetExitCode(err))
	assert.True(t, strings.HasPrefix(stdout, "✗ "+bad+"\n"), stdout)
	assert.Contains(t, stdout, "E007")

	_, _, err = execute(t, NewRunCommand(textOpts()), filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.Equal(t, ExitLoadError, GetExitCode(err))
}

func TestRun_InvalidEffectsFlag(t *testing.T) {
	_, _, err := execute(t, NewRunCommand(textOpts()), "--effects", "pretend", programFile("hello.json"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid --effects")
}

func TestRun_MissingArgument(t *testing.T) {
	_, _, err := execute(t, NewRunCommand(textOpts()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestRun_EmitTraceWritesBundle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hello.bundle.json")
	_, _, err := execute(t, NewRunCommand(textOpts()), "--emit-trace", path, programFile("hello.json"))
	require.NoError(t, err)

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	b, err := engine.DecodeBundle(file)
	require.NoError(t, err)
	assert.Equal(t, "hello", b.Program.Name)
	assert.Equal(t, engine.ModeSimulate, b.Config.Mode)
	require.NoError(t, b.CheckFormat())

	report, err := engine.VerifyBundle(context.Background(), b)
	require.NoError(t, err)
	assert.True(t, report.Match)
}

func TestRun_EmitTraceForFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leak.bundle.json")
	_, _, err := execute(t, NewRunCommand(textOpts()), "--emit-trace", path, programFile("leak.json"))
	require.Error(t, err)
	assert.Equal(t, ExitSemanticFailure, GetExitCode(err))
	assert.FileExists(t, path, "failure traces are replayable too")
}

func TestRun_RecordsHistory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	_, _, err := execute(t, NewRunCommand(textOpts()), "--db", dbPath, "--effects", "realize", programFile("hello.json"))
	require.NoError(t, err)
	_, _, err = execute(t, NewRunCommand(textOpts()), "--db", dbPath, programFile("leak.json"))
	require.Error(t, err)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	runs, err := st.ListRuns(ctx, store.ListOptions{})
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, "hello", runs[0].ProgramName)
	assert.Equal(t, store.StatusSucceeded, runs[0].Status)
	assert.Equal(t, "realize", runs[0].Mode)
	assert.True(t, runs[0].HasBundle())

	assert.Equal(t, "leak", runs[1].ProgramName)
	assert.Equal(t, store.StatusFailed, runs[1].Status)
	assert.Equal(t, string(engine.KindLinearityViolation), runs[1].Outcome)

	realized, err := st.RealizedEffects(ctx, runs[0].ID)
	require.NoError(t, err)
	require.Len(t, realized, 1)
	assert.Equal(t, store.RealizedEffect{Seq: 1, Kind: "emit", Payload: "Hello"}, realized[0])
}

func TestRun_FixedRunID(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	opts := &RunOptions{
		RootOptions: jsonOpts(),
		Database:    dbPath,
		Effects:     string(engine.ModeSimulate),
		RunIDs:      engine.NewFixedGenerator("run-fixed"),
	}
	cmd := NewRunCommand(opts.RootOptions)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runProgram(opts, args[0], cmd)
	}

	stdout, _, err := execute(t, cmd, programFile("hello.json"))
	require.NoError(t, err)
	assert.Equal(t, "run-fixed", decodeResponse(t, stdout).RunID)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	run, err := st.GetRun(context.Background(), "run-fixed")
	require.NoError(t, err)
	assert.Equal(t, store.StatusSucceeded, run.Status)
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cmd := NewRunCommand(textOpts())
	cmd.SetContext(ctx)
	stdout, _, err := execute(t, cmd, programFile("hello.json"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.True(t, engine.IsCancelled(err))
	assert.Empty(t, stdout, "a cancelled run prints no trace")
}

func TestRecordUnfinished(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	for _, id := range []string{"run-host", "run-cancel"} {
		require.NoError(t, st.BeginRun(ctx, store.RunStart{ID: id, ProgramName: "hello", Digest: "d", Mode: engine.ModeSimulate}))
	}

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	recordUnfinished(ctx, st, "run-host", errors.New("disk full"), logger)
	recordUnfinished(ctx, st, "run-cancel", fmt.Errorf("%w: interrupted", engine.ErrCancelled), logger)
	assert.Empty(t, logs.String())

	run, err := st.GetRun(ctx, "run-host")
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, run.Status)
	assert.Equal(t, store.OutcomeAborted, run.Outcome)

	run, err = st.GetRun(ctx, "run-cancel")
	require.NoError(t, err)
	assert.Equal(t, store.StatusCancelled, run.Status)

	// A run that already ended is left alone and the failure is logged.
	recordUnfinished(ctx, st, "run-host", errors.New("again"), logger)
	assert.Contains(t, logs.String(), `msg="failed to record run end" run_id=run-host status=failed`)
}
