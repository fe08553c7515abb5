package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/dustrun/internal/engine"
	"github.com/roach88/dustrun/internal/ir"
)

// ExplainResult is the resolver's decision for one program.
type ExplainResult struct {
	Program    string         `json:"program"`
	Admissible bool           `json:"admissible"`
	Reason     string         `json:"reason,omitempty"`
	Witness    engine.Witness `json:"witness"`
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "explain <program>",
		Short: "Show the admissibility witness of a program",
		Long: `Resolve a program's Φ constraints and Q budget without stepping it,
and print the witness the resolver produced.

An admissible program shows the satisfying assignment and the peak number
of live Q handles. An inadmissible one shows why no run can start.

Exit codes:
  0  - Admissible
  2  - Command error
  3  - Program failed to load or validate
  10 - Inadmissible

Examples:
  dustrun explain point.json
  dustrun explain unsat.json --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runExplain(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	logger := opts.logger(cmd)
	ctx, stop := signalContext(cmd, logger)
	defer stop()

	prog, err := loadProgram(f, path)
	if err != nil {
		return err
	}

	m, err := engine.NewMachine(prog, engine.DefaultConfig(), engine.WithLogger(logger))
	if err != nil {
		return engineExitError("failed to prepare program", err)
	}
	// The first step performs resolution and nothing else observable.
	if _, err := m.Step(ctx); err != nil {
		return engineExitError("resolution did not complete", err)
	}
	res, ok := m.Resolution()
	if !ok {
		return NewExitError(ExitCommandError, "resolution produced no decision")
	}

	result := ExplainResult{
		Program:    prog.Name,
		Admissible: res.Admissible,
		Reason:     res.Reason,
		Witness:    res.Witness,
	}

	if f.IsJSON() {
		resp := CLIResponse{Status: "ok", Data: result, RunID: m.RunID()}
		if !res.Admissible {
			resp.Status = "error"
			resp.Error = &CLIError{Code: string(engine.KindInadmissible), Message: res.Reason}
		}
		if err := f.Encode(resp); err != nil {
			return err
		}
	} else {
		writeExplainText(f, result)
	}

	if !res.Admissible {
		return NewExitError(ExitSemanticFailure, fmt.Sprintf("%s: %s", engine.KindInadmissible, res.Reason))
	}
	return nil
}

func writeExplainText(f *OutputFormatter, r ExplainResult) {
	w := f.Writer

	fmt.Fprintf(w, "Program: %s\n", r.Program)
	if r.Admissible {
		fmt.Fprintln(w, "✓ Admissible")
	} else {
		fmt.Fprintf(w, "✗ %s: %s\n", engine.KindInadmissible, r.Reason)
	}

	wt := r.Witness
	fmt.Fprintf(w, "Witness %s (%s)\n", wt.ID, wt.Kind)
	fmt.Fprintf(w, "  peak live handles: %d\n", wt.PeakLive)
	if wt.Note != "" {
		fmt.Fprintf(w, "  note: %s\n", wt.Note)
	}
	if len(wt.Assignment) > 0 {
		fmt.Fprintln(w, "  assignment:")
		for _, b := range wt.Assignment {
			fmt.Fprintf(w, "    %s = %s\n", b.Name, ir.Render(b.Value))
		}
	}
	f.VerboseLog("constraint digest: %s", wt.ConstraintDigest)
}
