package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/dustrun/internal/engine"
	"github.com/roach88/dustrun/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	RunID    string
}

// ReplayResult holds the outcome of verifying one bundle.
type ReplayResult struct {
	Program        string       `json:"program"`
	Mode           engine.Mode  `json:"mode"`
	Match          bool         `json:"match"`
	Reason         string       `json:"reason,omitempty"`
	RecordedDigest string       `json:"recorded_digest"`
	ReplayedDigest string       `json:"replayed_digest,omitempty"`
	Trace          engine.Trace `json:"trace"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay [bundle]",
		Short: "Re-execute a bundle and verify its trace",
		Long: `Re-execute a pinned run and verify it reproduces the recorded trace
byte for byte.

The bundle is read from a file written by "run --emit-trace", or from a
run recorded with "run --db". Replay never realizes effects.

Exit codes:
  0 - Replayed trace matches the recording
  1 - Replay mismatch
  2 - Command error (unreadable or unsupported bundle, unknown run, etc.)

Examples:
  dustrun replay hello.bundle.json
  dustrun replay --db ./runs.db --run 0190f5c2-7d1e-7c3a-9b40-2f1d8e6a5c10
  dustrun replay hello.bundle.json --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite run history")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "replay the stored bundle of this run")

	return cmd
}

func runReplay(opts *ReplayOptions, args []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	logger := opts.logger(cmd)
	ctx, stop := signalContext(cmd, logger)
	defer stop()

	bundle, err := loadBundle(ctx, opts, args)
	if err != nil {
		return err
	}

	if bundle.ExternallyFailed() {
		logger.Warn("recorded run failed while realizing an effect; replay does not realize and will not reproduce it",
			"program", bundle.Program.Name,
			"recorded", bundle.Trace.Failure.Message)
	}

	report, err := engine.VerifyBundle(ctx, bundle, engine.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "replay did not complete", err)
	}

	result := ReplayResult{
		Program:        bundle.Program.Name,
		Mode:           bundle.Config.Mode,
		Match:          report.Match,
		Reason:         report.Reason,
		RecordedDigest: report.RecordedDigest,
		ReplayedDigest: report.ReplayedDigest,
		Trace:          report.Trace,
	}
	if f.IsJSON() {
		return outputReplayJSON(f, result)
	}
	return outputReplayText(f, result)
}

// loadBundle reads the bundle named by a file argument or by --db/--run.
func loadBundle(ctx context.Context, opts *ReplayOptions, args []string) (*engine.Bundle, error) {
	switch {
	case len(args) == 1 && opts.RunID != "":
		return nil, NewExitError(ExitCommandError, "give either a bundle file or --run, not both")
	case len(args) == 1:
		return readBundle(args[0])
	case opts.RunID == "":
		return nil, NewExitError(ExitCommandError, "a bundle file or --run is required")
	case opts.Database == "":
		return nil, NewExitError(ExitCommandError, "--run requires --db")
	}

	st, err := openExistingStore(opts.Database)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	run, err := st.GetRun(ctx, opts.RunID)
	if errors.Is(err, store.ErrRunNotFound) {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("run %s not found", opts.RunID))
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read run", err)
	}
	b, err := run.Bundle()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "run cannot be replayed", err)
	}
	return b, nil
}

func readBundle(path string) (*engine.Bundle, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open bundle", err)
	}
	defer file.Close()

	b, err := engine.DecodeBundle(file)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to decode bundle %s", path), err)
	}
	return b, nil
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(f *OutputFormatter, result ReplayResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}
	if !result.Match {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    string(engine.KindReplayMismatch),
			Message: result.Reason,
		}
	}
	if err := f.Encode(response); err != nil {
		return err
	}

	if !result.Match {
		return NewExitError(ExitFailure, "replay mismatch: "+result.Reason)
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(f *OutputFormatter, result ReplayResult) error {
	w := f.Writer

	fmt.Fprintf(w, "Replay: %s (%s)\n", result.Program, result.Mode)
	if !result.Match {
		fmt.Fprintf(w, "✗ %s: %s\n", engine.KindReplayMismatch, result.Reason)
		fmt.Fprintf(w, "  recorded: %s\n", result.RecordedDigest)
		if result.ReplayedDigest != "" {
			fmt.Fprintf(w, "  replayed: %s\n", result.ReplayedDigest)
		}
		return NewExitError(ExitFailure, "replay mismatch: "+result.Reason)
	}

	fmt.Fprintln(w, "✓ Replayed trace matches recording")
	f.VerboseLog("trace digest: %s", result.RecordedDigest)
	writeTraceText(w, result.Trace)
	return nil
}
