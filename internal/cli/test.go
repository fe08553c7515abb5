package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/dustrun/internal/engine"
	"github.com/roach88/dustrun/internal/harness"
)

// DefaultFixturesDir is where the test command looks without an argument.
const DefaultFixturesDir = "testdata/fixtures"

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // fixture filter (glob pattern)
}

// FixtureResult holds the result of a single fixture execution.
type FixtureResult struct {
	Name    string   `json:"name"`
	Path    string   `json:"path"`
	Pass    bool     `json:"pass"`
	Outcome string   `json:"outcome,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Fixtures []FixtureResult `json:"fixtures"`
	Passed   int             `json:"passed"`
	Failed   int             `json:"failed"`
	Total    int             `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test [fixtures-dir]",
		Short: "Run conformance fixtures",
		Long: `Run the conformance fixtures in a directory (default testdata/fixtures).

Each fixture names a program, the outcome it must reach and optional
assertions and replay checks. When golden/<name>.golden exists next to a
fixture, the result snapshot must match it byte for byte. --update
rewrites the golden files from the current results.

Exit codes:
  0 - All fixtures passed
  1 - One or more fixtures failed
  2 - Command error (invalid paths, etc.)

Examples:
  dustrun test
  dustrun test ./testdata/fixtures --filter "replay*"
  dustrun test --update
  dustrun test --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := DefaultFixturesDir
			if len(args) == 1 {
				dir = args[0]
			}
			return runTests(opts, dir, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter fixtures by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, dir string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	logger := opts.logger(cmd)

	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return NewExitError(ExitCommandError, fmt.Sprintf("fixtures directory not found: %s", dir))
	}
	paths, err := harness.FindFixtures(dir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find fixtures", err)
	}

	if len(paths) == 0 {
		if f.IsJSON() {
			return outputTestJSON(f, TestResult{Fixtures: []FixtureResult{}})
		}
		fmt.Fprintln(f.Writer, "No fixtures found.")
		return nil
	}

	// Fixtures that fail to load are reported in place; the rest run as
	// one batch.
	results := make([]FixtureResult, len(paths))
	var fixtures []*harness.Fixture
	var slots []int
	for i, path := range paths {
		fx, err := harness.LoadFixture(path)
		if err != nil {
			results[i] = FixtureResult{
				Name:   fixtureName(path),
				Path:   path,
				Errors: []string{fmt.Sprintf("failed to load fixture: %v", err)},
			}
			continue
		}
		fixtures = append(fixtures, fx)
		slots = append(slots, i)
	}

	ctx, stop := signalContext(cmd, logger)
	defer stop()

	h := harness.New(harness.WithLogger(logger))
	ran, err := h.RunAll(ctx, fixtures)
	if err != nil {
		if engine.IsCancelled(err) {
			return WrapExitError(ExitCommandError, "test run cancelled", err)
		}
		return WrapExitError(ExitCommandError, "test run failed", err)
	}
	for j, res := range ran {
		i := slots[j]
		results[i] = checkFixture(opts, paths[i], res)
	}

	summary := TestResult{Fixtures: results, Total: len(results)}
	for _, r := range results {
		if r.Pass {
			summary.Passed++
		} else {
			summary.Failed++
		}
	}

	if f.IsJSON() {
		return outputTestJSON(f, summary)
	}
	return outputTestText(f, summary, opts.Update)
}

// checkFixture folds the golden comparison, or the golden update, into a
// fixture's harness result.
func checkFixture(opts *TestOptions, path string, res *harness.Result) FixtureResult {
	out := FixtureResult{
		Name:   res.Name,
		Path:   path,
		Pass:   res.Pass,
		Errors: res.Errors,
	}
	if res.Trace.IsZero() {
		// The fixture never ran; there is nothing to snapshot.
		return out
	}
	out.Outcome = res.Outcome()

	if opts.Update {
		if err := harness.UpdateGolden(path, res); err != nil {
			out.Pass = false
			out.Errors = append(out.Errors, fmt.Sprintf("failed to update golden file: %v", err))
		}
		return out
	}

	match, err := harness.CompareGolden(path, res)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// No golden file - expectations and assertions only
	case err != nil:
		out.Pass = false
		out.Errors = append(out.Errors, fmt.Sprintf("golden comparison failed: %v", err))
	case !match:
		out.Pass = false
		out.Errors = append(out.Errors, "result does not match golden file (run with --update to regenerate)")
	}
	return out
}

func fixtureName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// outputTestJSON outputs the test result as JSON.
func outputTestJSON(f *OutputFormatter, result TestResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	if result.Failed > 0 {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_TEST_FAILED",
			Message: fmt.Sprintf("%d fixture(s) failed", result.Failed),
		}
	}

	if err := f.Encode(response); err != nil {
		return err
	}

	if result.Failed > 0 {
		// Test failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("%d fixture(s) failed", result.Failed))
	}
	return nil
}

// outputTestText outputs the test result as text.
func outputTestText(f *OutputFormatter, result TestResult, updated bool) error {
	w := f.Writer

	for _, r := range result.Fixtures {
		if r.Pass {
			if updated {
				fmt.Fprintf(w, "✓ %s (golden updated)\n", r.Name)
			} else {
				fmt.Fprintf(w, "✓ %s\n", r.Name)
			}
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", r.Name)
		for _, e := range r.Errors {
			for _, line := range strings.Split(strings.TrimRight(e, "\n"), "\n") {
				fmt.Fprintf(w, "  %s\n", line)
			}
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		// Test failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("%d fixture(s) failed", result.Failed))
	}
	return nil
}
