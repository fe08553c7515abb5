package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/dustrun/internal/engine"
	"github.com/roach88/dustrun/internal/ir"
	"github.com/roach88/dustrun/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Effects   string // simulate | realize
	EmitTrace string // bundle output path
	Database  string // optional run history
	Trace     bool   // per-tick debug logs

	// RunIDs allows overriding the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs engine.RunIDGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <program>",
		Short: "Execute a program and print its trace",
		Long: `Execute a DIR program (.json or .cue) and print its trace.

In simulate mode effects are only recorded. In realize mode each effect is
also written as a "kind: payload" line: to stdout with --format text, to
stderr with --format json.

--emit-trace writes a replayable bundle. --db records the run, its bundle
and every realized effect in a SQLite run history.

Exit codes:
  0  - Success trace
  2  - Command error
  3  - Program failed to load or validate
  10 - Failure trace

Examples:
  dustrun run hello.json
  dustrun run hello.json --effects realize
  dustrun run mixed.cue --emit-trace mixed.bundle.json --db ./runs.db
  dustrun run point.json --format json --trace -v`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProgram(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Effects, "effects", string(engine.ModeSimulate), "effect mode (simulate|realize)")
	cmd.Flags().StringVar(&opts.EmitTrace, "emit-trace", "", "write a replayable bundle to this path")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the run in this SQLite database")
	cmd.Flags().BoolVar(&opts.Trace, "trace", false, "log every tick at debug level")

	return cmd
}

func runProgram(opts *RunOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	logger := opts.logger(cmd)
	ctx, stop := signalContext(cmd, logger)
	defer stop()

	mode, err := engine.ParseMode(opts.Effects)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --effects", err)
	}
	prog, err := loadProgram(f, path)
	if err != nil {
		return err
	}
	cfg := engine.Config{Mode: mode, Trace: opts.Trace}

	gen := opts.RunIDs
	if gen == nil {
		gen = engine.UUIDv7Generator{}
	}
	runID := gen.Generate()

	realizers := realizersFor(prog, mode, f, logger)

	var st *store.Store
	if opts.Database != "" {
		st, err = store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()

		digest, err := engine.InputDigest(prog, cfg)
		if err != nil {
			return engineExitError("failed to digest program", err)
		}
		err = st.BeginRun(ctx, store.RunStart{
			ID:          runID,
			ProgramName: prog.Name,
			Digest:      digest,
			Mode:        mode,
		})
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to record run", err)
		}
		if mode == engine.ModeRealize {
			realizers = st.NewOutbox(runID).Wrap(prog.EffectKinds(), realizers)
		}
	}

	trace, err := engine.Execute(ctx, prog, cfg,
		engine.WithLogger(logger),
		engine.WithRealizers(realizers),
		engine.WithRunIDGenerator(engine.NewFixedGenerator(runID)),
	)
	if err != nil {
		if st != nil {
			recordUnfinished(context.WithoutCancel(ctx), st, runID, err, logger)
		}
		return engineExitError("run did not complete", err)
	}

	bundle, err := engine.NewBundle(prog, cfg, trace)
	if err != nil {
		if st != nil {
			recordUnfinished(context.WithoutCancel(ctx), st, runID, err, logger)
		}
		return engineExitError("failed to assemble bundle", err)
	}
	if st != nil {
		if err := st.FinishRun(ctx, runID, bundle); err != nil {
			return WrapExitError(ExitCommandError, "failed to record run", err)
		}
		f.VerboseLog("recorded run %s in %s", runID, opts.Database)
	}
	if opts.EmitTrace != "" {
		if err := writeBundle(opts.EmitTrace, bundle); err != nil {
			return WrapExitError(ExitCommandError, "failed to write bundle", err)
		}
		f.VerboseLog("wrote bundle to %s", opts.EmitTrace)
	}

	logger.Debug("run complete", "run_id", runID, "trace_digest", trace.Digest())
	return outputTrace(f, runID, TraceResult{
		Program: prog.Name,
		Mode:    mode,
		Digest:  trace.Digest(),
		Trace:   trace,
	})
}

// recordUnfinished closes the history row of a run that ended without a
// bundle: cancelled when cause is a cancellation, aborted otherwise.
func recordUnfinished(ctx context.Context, st *store.Store, runID string, cause error, logger *slog.Logger) {
	end, status := st.AbortRun, store.StatusFailed
	if engine.IsCancelled(cause) {
		end, status = st.CancelRun, store.StatusCancelled
	}
	if err := end(ctx, runID); err != nil {
		logger.Error("failed to record run end", "run_id", runID, "status", status, "error", err)
	}
}

// realizersFor binds a realizer to every effect kind of prog: a writer on
// stdout for text output, log records for JSON output. In simulate mode no
// realizer is ever called and none is bound.
func realizersFor(prog *ir.Program, mode engine.Mode, f *OutputFormatter, logger *slog.Logger) engine.Realizers {
	if mode != engine.ModeRealize {
		return nil
	}
	r := engine.NewWriterRealizer(f.Writer)
	if f.IsJSON() {
		r = engine.NewLogRealizer(logger)
	}

	realizers := make(engine.Realizers)
	for _, kind := range prog.EffectKinds() {
		realizers[kind] = r
	}
	return realizers
}

func writeBundle(path string, b *engine.Bundle) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := file.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("close %s: %w", path, closeErr)
		}
	}()
	return b.Encode(file)
}
