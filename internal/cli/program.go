package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/dustrun/internal/engine"
	"github.com/roach88/dustrun/internal/ir"
	"github.com/roach88/dustrun/internal/loader"
)

// LoadProblem is one load or validation error in JSON output.
type LoadProblem struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

func toLoadProblems(errs []error) []LoadProblem {
	problems := make([]LoadProblem, 0, len(errs))
	for _, err := range errs {
		var le *loader.LoadError
		if !errors.As(err, &le) {
			problems = append(problems, LoadProblem{Code: loader.ErrCodeGeneric, Message: err.Error()})
			continue
		}
		p := LoadProblem{Code: le.Code, Message: le.Message}
		if le.Pos.IsValid() {
			p.File = le.Pos.Filename()
			p.Line = le.Pos.Line()
			p.Column = le.Pos.Column()
		}
		problems = append(problems, p)
	}
	return problems
}

// loadProgram loads a program source, collecting every problem. Any
// problem is reported through f and returned as an ExitLoadError.
func loadProgram(f *OutputFormatter, path string) (*ir.Program, error) {
	res, errs := loader.Load(path, loader.LoadModeCollectAll)
	if len(errs) > 0 {
		return nil, outputLoadErrors(f, path, errs)
	}
	f.VerboseLog("loaded %s (%s): %d statement(s)", path, res.Format, len(res.Program.Body))
	return res.Program, nil
}

func outputLoadErrors(f *OutputFormatter, path string, errs []error) error {
	problems := toLoadProblems(errs)
	if f.IsJSON() {
		if err := f.Error(problems[0].Code, fmt.Sprintf("%s: %d load error(s)", path, len(problems)), problems); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(f.Writer, "✗ %s\n", path)
		for _, err := range errs {
			fmt.Fprintf(f.Writer, "  %v\n", err)
		}
	}
	return NewExitError(ExitLoadError, fmt.Sprintf("%s: %d load error(s)", path, len(problems)))
}

// TraceResult is the JSON payload of commands that end in a trace.
type TraceResult struct {
	Program string       `json:"program"`
	Mode    engine.Mode  `json:"mode"`
	Digest  string       `json:"trace_digest"`
	Trace   engine.Trace `json:"trace"`
}

// outputTrace prints a trace. A FailureTrace is returned as an
// ExitSemanticFailure after it has been printed.
func outputTrace(f *OutputFormatter, runID string, res TraceResult) error {
	fault := res.Trace.Fault()
	if f.IsJSON() {
		resp := CLIResponse{Status: "ok", Data: res, RunID: runID}
		if fault != nil {
			resp.Status = "error"
			resp.Error = &CLIError{Code: string(fault.Kind), Message: fault.Message}
		}
		if err := f.Encode(resp); err != nil {
			return err
		}
	} else {
		writeTraceText(f.Writer, res.Trace)
		f.VerboseLog("trace digest: %s", res.Digest)
	}

	if fault != nil {
		return WrapExitError(ExitSemanticFailure, "run failed", fault)
	}
	return nil
}

func writeTraceText(w io.Writer, t engine.Trace) {
	if fault := t.Fault(); fault != nil {
		fmt.Fprintf(w, "✗ %v\n", fault)
		return
	}

	s := t.Success
	fmt.Fprintf(w, "✓ Success at tick %d\n", s.Tick)
	if s.Returned != nil {
		fmt.Fprintf(w, "  returned: %s\n", ir.Render(s.Returned))
	}
	if len(s.Effects) == 0 {
		fmt.Fprintln(w, "  no effects")
		return
	}
	for i, ev := range s.Effects {
		fmt.Fprintf(w, "  [%d] %s: %s\n", i+1, ev.Kind, ev.Payload)
	}
}

// signalContext derives a context from the command's that is cancelled
// on SIGINT or SIGTERM. The returned stop function must be called.
func signalContext(cmd *cobra.Command, logger *slog.Logger) (context.Context, func()) {
	// Use command's context if available (for testing), otherwise create one
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, cancelling run", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan) // Prevent signal handler leak
		cancel()
	}
}

// engineExitError maps a host error from the engine to an exit code.
func engineExitError(message string, err error) error {
	switch {
	case engine.IsPrecondition(err):
		return WrapExitError(ExitLoadError, message, err)
	default:
		return WrapExitError(ExitCommandError, message, err)
	}
}
