package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/dustrun/internal/store"
)

// RunsOptions holds flags for the runs command group.
type RunsOptions struct {
	*RootOptions
	Database string
	Program  string
	Digest   string
	Status   string
	Limit    int
}

// RunDetail is one stored run with its realized-effect outbox.
type RunDetail struct {
	store.Run
	Realized []store.RealizedEffect `json:"realized_effects"`
}

// NewRunsCommand creates the runs command group.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded run history",
		Long: `Inspect runs recorded with "run --db".

Runs are listed in the order they were started. A run's outbox holds every
effect whose external action succeeded, including those of runs that later
failed or were cancelled.

Examples:
  dustrun runs list --db ./runs.db
  dustrun runs list --db ./runs.db --program hello --status failed
  dustrun runs show --db ./runs.db 0190f5c2-7d1e-7c3a-9b40-2f1d8e6a5c10`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite run history (required)")
	_ = cmd.MarkPersistentFlagRequired("db")

	list := &cobra.Command{
		Use:           "list",
		Short:         "List recorded runs",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunsList(opts, cmd)
		},
	}
	list.Flags().StringVar(&opts.Program, "program", "", "only runs of this program")
	list.Flags().StringVar(&opts.Digest, "digest", "", "only runs with this input digest")
	list.Flags().StringVar(&opts.Status, "status", "", "only runs in this status (running|succeeded|failed|cancelled)")
	list.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of runs (0 = all)")

	show := &cobra.Command{
		Use:           "show <run-id>",
		Short:         "Show one run and its realized effects",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunsShow(opts, args[0], cmd)
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}

// openExistingStore opens a run history that must already exist.
func openExistingStore(path string) (*store.Store, error) {
	st, err := store.OpenExisting(path)
	if errors.Is(err, store.ErrDatabaseNotFound) {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("database not found: %s", path), err)
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

func runRunsList(opts *RunsOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	switch opts.Status {
	case "", store.StatusRunning, store.StatusSucceeded, store.StatusFailed, store.StatusCancelled:
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid --status %q", opts.Status))
	}

	st, err := openExistingStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	if v, err := st.SchemaVersion(); err == nil {
		f.VerboseLog("run history %s at schema version %d", opts.Database, v)
	}

	runs, err := st.ListRuns(cmd.Context(), store.ListOptions{
		Program: opts.Program,
		Digest:  opts.Digest,
		Status:  opts.Status,
		Limit:   opts.Limit,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	if f.IsJSON() {
		return f.Success(runs)
	}

	w := f.Writer
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs found.")
		return nil
	}
	fmt.Fprintf(w, "Runs: %d\n\n", len(runs))
	for _, r := range runs {
		fmt.Fprintf(w, "%s %s  %s  %s\n", statusMarker(r.Status), r.ID, r.ProgramName, r.Mode)
		if r.Outcome != "" {
			fmt.Fprintf(w, "  %s: %s\n", r.Status, r.Outcome)
		} else {
			fmt.Fprintf(w, "  %s\n", r.Status)
		}
		f.VerboseLog("%s trace digest: %s", r.ID, r.TraceDigest)
	}
	return nil
}

func runRunsShow(opts *RunsOptions, runID string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	st, err := openExistingStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	run, err := st.GetRun(cmd.Context(), runID)
	if errors.Is(err, store.ErrRunNotFound) {
		return NewExitError(ExitCommandError, fmt.Sprintf("run %s not found", runID))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}
	realized, err := st.RealizedEffects(cmd.Context(), runID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read realized effects", err)
	}

	detail := RunDetail{Run: run, Realized: realized}
	if f.IsJSON() {
		return f.Success(detail)
	}

	w := f.Writer
	fmt.Fprintf(w, "%s Run: %s\n", statusMarker(run.Status), run.ID)
	fmt.Fprintf(w, "  Program: %s\n", run.ProgramName)
	fmt.Fprintf(w, "  Mode: %s\n", run.Mode)
	fmt.Fprintf(w, "  Status: %s\n", run.Status)
	if run.Outcome != "" {
		fmt.Fprintf(w, "  Outcome: %s\n", run.Outcome)
	}
	fmt.Fprintf(w, "  Input digest: %s\n", run.Digest)
	if run.TraceDigest != "" {
		fmt.Fprintf(w, "  Trace digest: %s\n", run.TraceDigest)
	}
	fmt.Fprintf(w, "  Replayable: %v\n", run.HasBundle())

	if len(realized) == 0 {
		fmt.Fprintln(w, "  Realized effects: none")
		return nil
	}
	fmt.Fprintf(w, "  Realized effects: %d\n", len(realized))
	for _, e := range realized {
		fmt.Fprintf(w, "    [%d] %s: %s\n", e.Seq, e.Kind, e.Payload)
	}
	return nil
}

func statusMarker(status string) string {
	switch status {
	case store.StatusSucceeded:
		return "✓"
	case store.StatusFailed:
		return "✗"
	default:
		return "-"
	}
}
