package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/dustrun/internal/engine"
	"github.com/roach88/dustrun/internal/ir"
)

// StepOptions holds flags for the step command.
type StepOptions struct {
	*RootOptions
	Effects string
	Limit   int // pause after this many statements; 0 runs to the end
}

// StepRecord describes one executed statement.
type StepRecord struct {
	Tick     uint64           `json:"tick"`
	PC       int              `json:"pc"`
	Regime   ir.Regime        `json:"regime"`
	Op       ir.Op            `json:"op"`
	Bindings []engine.Binding `json:"bindings,omitempty"`
	Handles  []engine.Handle  `json:"handles,omitempty"`
}

// StepResult is the JSON payload of the step command.
type StepResult struct {
	Program    string        `json:"program"`
	Admissible bool          `json:"admissible"`
	Steps      []StepRecord  `json:"steps"`
	State      engine.State  `json:"state"`
	Trace      *engine.Trace `json:"trace,omitempty"`
}

// NewStepCommand creates the step command.
func NewStepCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StepOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "step <program>",
		Short: "Execute a program one statement at a time",
		Long: `Drive a program through the machine one step at a time and print
the logical time, program counter, regime and op of every executed
statement. With --verbose, the visible K bindings and the Q arena are
printed after each step.

Resolution happens before the first statement and is shown as its own line.
Φ statements are consumed by resolution and never appear as steps.

Exit codes:
  0  - Success trace, or paused by --limit
  2  - Command error
  3  - Program failed to load or validate
  10 - Failure trace

Examples:
  dustrun step mixed.cue
  dustrun step mixed.cue --limit 3 -v
  dustrun step leak.json --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStep(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Effects, "effects", string(engine.ModeSimulate), "effect mode (simulate|realize)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "pause after this many statements (0 = no limit)")

	return cmd
}

func runStep(opts *StepOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	logger := opts.logger(cmd)
	ctx, stop := signalContext(cmd, logger)
	defer stop()

	mode, err := engine.ParseMode(opts.Effects)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --effects", err)
	}
	if opts.Limit < 0 {
		return NewExitError(ExitCommandError, "--limit must not be negative")
	}
	prog, err := loadProgram(f, path)
	if err != nil {
		return err
	}

	m, err := engine.NewMachine(prog, engine.Config{Mode: mode},
		engine.WithLogger(logger),
		engine.WithRealizers(realizersFor(prog, mode, f, logger)),
	)
	if err != nil {
		return engineExitError("failed to prepare program", err)
	}

	result := StepResult{Program: prog.Name, Steps: []StepRecord{}}

	done, err := m.Step(ctx)
	if err != nil {
		return engineExitError("resolution did not complete", err)
	}
	res, _ := m.Resolution()
	result.Admissible = res.Admissible
	if !f.IsJSON() {
		if res.Admissible {
			fmt.Fprintf(f.Writer, "resolve: admissible (%s)\n", res.Witness.ID)
		} else {
			fmt.Fprintf(f.Writer, "resolve: %s\n", res.Reason)
		}
	}

	for !done {
		if opts.Limit > 0 && len(result.Steps) == opts.Limit {
			break
		}
		s, _ := m.Next()
		pc := m.PC()

		done, err = m.Step(ctx)
		if err != nil {
			return engineExitError("run did not complete", err)
		}

		rec := StepRecord{Tick: m.Tick(), PC: pc, Regime: s.Regime(), Op: s.Op()}
		if opts.Verbose {
			rec.Bindings = m.Bindings()
			rec.Handles = m.Handles()
		}
		result.Steps = append(result.Steps, rec)
		if !f.IsJSON() {
			writeStepText(f, rec)
		}
	}

	result.State = m.State()
	trace, finished := m.Trace()
	if finished {
		result.Trace = &trace
	}

	if f.IsJSON() {
		resp := CLIResponse{Status: "ok", Data: result, RunID: m.RunID()}
		if fault := trace.Fault(); finished && fault != nil {
			resp.Status = "error"
			resp.Error = &CLIError{Code: string(fault.Kind), Message: fault.Message}
		}
		if err := f.Encode(resp); err != nil {
			return err
		}
	} else if finished {
		writeTraceText(f.Writer, trace)
	} else {
		fmt.Fprintf(f.Writer, "paused at pc %d after %d step(s)\n", m.PC(), len(result.Steps))
	}

	if fault := trace.Fault(); finished && fault != nil {
		return WrapExitError(ExitSemanticFailure, "run failed", fault)
	}
	return nil
}

func writeStepText(f *OutputFormatter, rec StepRecord) {
	fmt.Fprintf(f.Writer, "tick %d  pc %d  %s %s\n", rec.Tick, rec.PC, rec.Regime, rec.Op)
	if !f.Verbose {
		return
	}
	for _, b := range rec.Bindings {
		fmt.Fprintf(f.Writer, "    %s = %s\n", b.Name, ir.Render(b.Value))
	}
	for _, h := range rec.Handles {
		fmt.Fprintf(f.Writer, "    #%d %s: %s (%s)\n", h.ID, h.Owner, h.Type, h.State)
	}
}
