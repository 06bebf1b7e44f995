package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/docmap/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run schema scenarios",
		Long: `Run YAML scenarios against their schemas in an in-memory database.

Each scenario seeds fixtures, runs query, update and remove steps and
evaluates its assertions. When golden/<scenario>.golden exists next to a
scenario file the step results must match it.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  docmap test ./scenarios
  docmap test ./scenarios --filter "member*"
  docmap test ./scenarios --update`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	if _, err := os.Stat(scenariosDir); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", scenariosDir))
	}

	files, err := harness.FindScenarios(scenariosDir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(files)),
		Total:     len(files),
	}
	if len(files) == 0 {
		if formatter.Format == "json" {
			return formatter.Success(result)
		}
		fmt.Fprintln(formatter.Writer, "No scenarios found.")
		return nil
	}

	for _, file := range files {
		sr := runScenario(opts, file, cmd)
		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}

		if formatter.Format == "json" {
			continue
		}
		if sr.Pass {
			formatter.Check("%s", sr.Name)
			continue
		}
		formatter.Cross("%s", sr.Name)
		for _, e := range sr.Errors {
			fmt.Fprintf(formatter.Writer, "  %s\n", e)
		}
	}

	var failed error
	if result.Failed > 0 {
		failed = NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	if formatter.Format == "json" {
		if failed != nil {
			if err := formatter.Error("E_TEST_FAILED", failed.Error(), result); err != nil {
				return err
			}
			return failed
		}
		return formatter.Success(result)
	}

	fmt.Fprintln(formatter.Writer)
	fmt.Fprintf(formatter.Writer, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	if failed != nil {
		return failed
	}
	formatter.Check("All scenarios passed")
	return nil
}

// runScenario loads, runs and golden-checks one scenario file.
func runScenario(opts *TestOptions, file string, cmd *cobra.Command) ScenarioResult {
	fail := func(name string, format string, args ...any) ScenarioResult {
		return ScenarioResult{Name: name, Errors: []string{fmt.Sprintf(format, args...)}}
	}

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return fail(filepath.Base(file), "failed to load scenario: %v", err)
	}

	result, err := harness.Run(commandContext(cmd), scenario)
	if err != nil {
		return fail(scenario.Name, "execution failed: %v", err)
	}
	opts.formatter(cmd).VerboseLog("Ran %s: %d step(s)", scenario.Name, len(result.Steps))

	snapshot, err := harness.Snapshot(scenario.Name, result)
	if err != nil {
		return fail(scenario.Name, "failed to render results: %v", err)
	}

	goldenPath := harness.GoldenPath(file)
	switch golden, err := os.ReadFile(goldenPath); {
	case opts.Update:
		if err := os.MkdirAll(filepath.Dir(goldenPath), 0755); err != nil {
			return fail(scenario.Name, "failed to create golden directory: %v", err)
		}
		if err := os.WriteFile(goldenPath, snapshot, 0644); err != nil {
			return fail(scenario.Name, "failed to write golden file: %v", err)
		}
	case os.IsNotExist(err):
	case err != nil:
		return fail(scenario.Name, "failed to read golden file: %v", err)
	case !bytes.Equal(golden, snapshot):
		result.AddError("step results do not match golden file (run with --update to regenerate)")
	}

	return ScenarioResult{
		Name:   scenario.Name,
		Pass:   result.Pass,
		Errors: result.Errors,
	}
}
