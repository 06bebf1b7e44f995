package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/docmap/internal/schema"
	"github.com/roach88/docmap/internal/schemaload"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Entities []string          `json:"entities,omitempty"`
	Errors   []ValidationError `json:"errors,omitempty"`
}

// ValidationError is one problem found in the schema declarations.
type ValidationError struct {
	Code    string `json:"code"`
	Entity  string `json:"entity,omitempty"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [schema-dir]",
		Short: "Validate entity declarations and resolve every relation",
		Long: `Load the CUE entity declarations of a directory, register them and
resolve every back-reference once. All problems are reported together.

The directory defaults to schema.dir from the config file.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := rootOpts.schemaDir(args)
			if err != nil {
				return err
			}
			return runValidate(rootOpts, dir, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, schemaDir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	result, loadErrors := schemaload.LoadDir(schemaDir, schemaload.CollectAll)
	if result == nil && len(loadErrors) > 0 {
		var loadErr *schemaload.LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Message, nil)
		}
		return outputValidateError(formatter, schemaload.ErrCodeGeneric, loadErrors[0].Error(), nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", result.FileCount, schemaDir)

	if len(loadErrors) > 0 {
		return outputValidationErrors(formatter, toValidationErrors(loadErrors))
	}

	return outputValidateSuccess(formatter, result.Registry)
}

// schemaDir returns the positional directory or the configured one.
func (o *RootOptions) schemaDir(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	cfg, err := o.config()
	if err != nil {
		return "", err
	}
	return cfg.Schema.Dir, nil
}

// loadRegistry loads schemaDir and fails on the first problem.
func loadRegistry(schemaDir string) (*schema.Registry, error) {
	result, errs := schemaload.LoadDir(schemaDir, schemaload.FailFast)
	if len(errs) > 0 {
		return nil, WrapExitError(ExitCommandError, "failed to load schema", errs[0])
	}
	return result.Registry, nil
}

func toValidationErrors(errs []error) []ValidationError {
	out := make([]ValidationError, 0, len(errs))
	for _, err := range errs {
		var loadErr *schemaload.LoadError
		if !errors.As(err, &loadErr) {
			out = append(out, ValidationError{Code: schemaload.ErrCodeGeneric, Message: err.Error()})
			continue
		}
		ve := ValidationError{Code: loadErr.Code, Entity: loadErr.Entity, Message: loadErr.Message}
		if loadErr.Pos.IsValid() {
			ve.Line = loadErr.Pos.Line()
		}
		out = append(out, ve)
	}
	return out
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, reg *schema.Registry) error {
	var names []string
	for _, s := range reg.Schemas() {
		names = append(names, s.TypeName())
	}

	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Entities: names})
	}

	formatter.Check("All entities valid (%d)", len(names))
	return nil
}

// outputValidateError outputs a single validation error.
func outputValidateError(formatter *OutputFormatter, code, message string, details interface{}) error {
	_ = formatter.Error(code, message, details)
	// Load errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []ValidationError) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	formatter.Cross("Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		if err.Entity != "" {
			fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Entity, err.Message)
		} else {
			fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", err.Code, err.Message)
		}
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
