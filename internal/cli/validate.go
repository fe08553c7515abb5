package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/dustrun/internal/loader"
)

// FileValidation holds the validation result of one program source.
type FileValidation struct {
	Path       string        `json:"path"`
	Valid      bool          `json:"valid"`
	Program    string        `json:"program,omitempty"`
	Format     string        `json:"format,omitempty"`
	Statements int           `json:"statements,omitempty"`
	Errors     []LoadProblem `json:"errors,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid bool             `json:"valid"`
	Files []FileValidation `json:"files"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <program>...",
		Short: "Validate programs without running them",
		Long: `Validate DIR program sources without running them.

Checks the source against the program schema, then the static rules:
declared variables and shapes, domains, regime and op pairs, expression
syntax and constraint references. Every problem in every file is reported.

Exit codes:
  0 - All programs valid
  2 - Command error
  3 - One or more programs invalid`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	result := ValidationResult{Valid: true, Files: make([]FileValidation, 0, len(paths))}
	invalid := 0
	for _, path := range paths {
		fv := validateFile(path)
		formatter.VerboseLog("validated %s: %d problem(s)", path, len(fv.Errors))
		if !fv.Valid {
			result.Valid = false
			invalid++
		}
		result.Files = append(result.Files, fv)
	}

	if formatter.IsJSON() {
		return outputValidationJSON(formatter, result, invalid)
	}
	return outputValidationText(formatter, result, invalid)
}

// validateFile loads one source in collect-all mode.
func validateFile(path string) FileValidation {
	res, errs := loader.Load(path, loader.LoadModeCollectAll)
	if len(errs) > 0 {
		return FileValidation{Path: path, Errors: toLoadProblems(errs)}
	}
	return FileValidation{
		Path:       path,
		Valid:      true,
		Program:    res.Program.Name,
		Format:     res.Format,
		Statements: len(res.Program.Body),
	}
}

func validationFailure(result ValidationResult, invalid int) error {
	return NewExitError(ExitLoadError, fmt.Sprintf("validation failed for %d of %d file(s)", invalid, len(result.Files)))
}

// outputValidationJSON outputs the validation result as JSON.
func outputValidationJSON(f *OutputFormatter, result ValidationResult, invalid int) error {
	if result.Valid {
		return f.Success(result)
	}

	response := CLIResponse{Status: "error", Data: result}
	for _, fv := range result.Files {
		if !fv.Valid {
			response.Error = &CLIError{
				Code:    fv.Errors[0].Code,
				Message: fmt.Sprintf("%s: %s", fv.Path, fv.Errors[0].Message),
			}
			break
		}
	}
	if err := f.Encode(response); err != nil {
		return err
	}
	return validationFailure(result, invalid)
}

// outputValidationText outputs the validation result as text.
func outputValidationText(f *OutputFormatter, result ValidationResult, invalid int) error {
	w := f.Writer
	for _, fv := range result.Files {
		if fv.Valid {
			fmt.Fprintf(w, "✓ %s (%s, %d statements)\n", fv.Path, fv.Program, fv.Statements)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", fv.Path)
		for _, p := range fv.Errors {
			if p.Line > 0 {
				fmt.Fprintf(w, "  line %d: %s: %s\n", p.Line, p.Code, p.Message)
			} else {
				fmt.Fprintf(w, "  %s: %s\n", p.Code, p.Message)
			}
		}
	}

	if result.Valid {
		fmt.Fprintln(w, "✓ All programs valid")
		return nil
	}
	fmt.Fprintf(w, "✗ Validation failed: %d of %d file(s) invalid\n", invalid, len(result.Files))
	return validationFailure(result, invalid)
}
