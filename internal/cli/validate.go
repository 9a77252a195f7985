package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/cognos/internal/compiler"
	"github.com/roach88/cognos/internal/ir"
	"github.com/roach88/cognos/internal/schema"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	CUE  string // CUE type definitions
	Type string // type to validate --data against
	Data string // JSON document, "-" for stdin
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                        `json:"valid"`
	Errors   []compiler.Diagnostic       `json:"errors,omitempty"`
	Warnings []compiler.RecursionWarning `json:"warnings,omitempty"`
	Value    any                         `json:"value,omitempty"` // validated --data
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <program.cg>",
		Short: "Check a program's declarations without running it",
		Long: `Validate a program's type declarations and control structure.

Reports duplicate or undefined types, malformed generics and break/continue
outside a loop. Recursive flow cycles are reported as warnings. Type names
defined in --cue count as declared.

With --type and --data, a JSON document is also validated against a type
the way think(format=...) validates model output.

Exit codes:
  0 - Valid
  1 - Validation failed
  2 - Command error (unreadable input, parse error)

Examples:
  cognos validate agent.cg
  cognos validate agent.cg --cue types.cue
  cognos validate agent.cg --type Insight --data answer.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.CUE, "cue", "", "CUE file with additional type definitions")
	cmd.Flags().StringVar(&opts.Type, "type", "", "type to validate --data against")
	cmd.Flags().StringVar(&opts.Data, "data", "", "JSON document to validate (- for stdin)")
	cmd.MarkFlagsRequiredTogether("type", "data")

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	prog, err := loadProgram(path, cmd.InOrStdin())
	if err != nil {
		return outputLoadError(formatter, err)
	}
	external, err := loadTypes(opts.CUE)
	if err != nil {
		return outputLoadError(formatter, err)
	}
	formatter.VerboseLog("Loaded %d type(s) from %s", len(external), opts.CUE)

	result := ValidationResult{
		Errors:   compiler.Check(prog.AST, external),
		Warnings: compiler.AnalyzeRecursion(prog.AST),
	}

	if opts.Type != "" && len(result.Errors) == 0 {
		types := mergeTypes(schema.FromProgram(prog.AST), external)
		value, err := validateData(opts, types, cmd.InOrStdin())
		if err != nil {
			var le *LoadError
			if errors.As(err, &le) {
				return outputLoadError(formatter, err)
			}
			result.Errors = append(result.Errors, compiler.Diagnostic{
				Field:   opts.Type,
				Message: err.Error(),
				Code:    ErrCodeValidation,
			})
		} else {
			result.Value = ir.ToGo(value)
		}
	}

	if len(result.Errors) > 0 {
		return outputValidationErrors(formatter, result)
	}
	return outputValidateSuccess(formatter, result)
}

func validateData(opts *ValidateOptions, types schema.Types, stdin io.Reader) (ir.Value, error) {
	typ, ok := types.ResolveType(opts.Type)
	if !ok {
		return nil, fmt.Errorf("unknown type %s", opts.Type)
	}

	var (
		data []byte
		err  error
	)
	if opts.Data == stdinPath {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(opts.Data)
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeReadFailed, Message: fmt.Sprintf("cannot read data %s", opts.Data), Err: err}
	}
	return schema.Validator{Resolver: types}.Decode(typ, string(data))
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	result.Valid = true
	if formatter.JSON() {
		return formatter.Success(result)
	}

	fmt.Fprintln(formatter.Writer, "✓ Program valid")
	for _, w := range result.Warnings {
		fmt.Fprintf(formatter.Writer, "  warning: %s\n", w.Message)
	}
	return nil
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	errs := result.Errors
	if formatter.JSON() {
		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}
		if err := formatter.Encode(response); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return reportedError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}

	// Validation failures = exit code 1 (test/validation failure)
	return reportedError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
