package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"

	"github.com/roach88/cognos/internal/harness"
)

// DefaultScenarioDir is searched when no paths are given.
const DefaultScenarioDir = "testdata/scenarios"

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update  bool          // regenerate golden files
	Golden  string        // golden file directory
	Filter  string        // scenario filter (glob pattern)
	Types   string        // CUE type definitions shared by every scenario
	Timeout time.Duration // per-scenario limit
}

// ScenarioResult holds the result of a single scenario.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Path   string   `json:"path"`
	Pass   bool     `json:"pass"`
	RunID  string   `json:"run_id,omitempty"`
	Digest string   `json:"digest,omitempty"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test results.
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
		Use:   "test [paths...]",
		Short: "Run scenario files",
		Long: `Run YAML scenarios against replay scripts.

Each scenario names a program, a replay script and the expected output,
result or error, plus optional trace assertions. Directories are searched
recursively for .yaml and .yml files (default ./testdata/scenarios).

With --golden, each scenario's output and normalised trace is also compared
against <dir>/<name>.golden; --update rewrites those files instead.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  cognos test
  cognos test ./scenarios --filter "tool_*"
  cognos test ./scenarios --golden testdata/golden --update
  cognos test ./scenarios --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{DefaultScenarioDir}
			}
			return runTests(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files (requires --golden)")
	cmd.Flags().StringVar(&opts.Golden, "golden", "", "compare snapshots against golden files in this directory")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern on the file name")
	cmd.Flags().StringVar(&opts.Types, "types", "", "CUE file with type definitions")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", harness.DefaultTimeout, "per-scenario time limit")

	return cmd
}

func runTests(opts *TestOptions, paths []string, cmd *cobra.Command) error {
	if opts.Update && opts.Golden == "" {
		return NewExitError(ExitCommandError, "--update requires --golden")
	}

	scenarioFiles, err := harness.FindScenarios(paths)
	if err != nil {
		var notFound *harness.ScenarioNotFoundError
		if errors.As(err, &notFound) {
			return NewExitError(ExitCommandError, fmt.Sprintf("scenario path not found: %s", notFound.ScenarioPath))
		}
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}
	scenarioFiles, err = filterScenarios(scenarioFiles, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid filter pattern", err)
	}

	if len(scenarioFiles) == 0 {
		if opts.Format == "json" {
			return outputTestJSON(cmd, TestResult{Scenarios: []ScenarioResult{}})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No scenarios found.")
		return nil
	}

	types, err := loadTypes(opts.Types)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to compile types", err)
	}
	h := harness.New(
		harness.WithLogger(newLogger(opts.RootOptions, cmd.ErrOrStderr())),
		harness.WithTypes(types),
		harness.WithTimeout(opts.Timeout),
	)

	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(scenarioFiles)),
		Total:     len(scenarioFiles),
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	for _, scenarioFile := range scenarioFiles {
		scenResult := runScenario(ctx, h, scenarioFile, opts, cmd)
		result.Scenarios = append(result.Scenarios, scenResult)

		if scenResult.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if opts.Format == "json" {
		if err := outputTestJSON(cmd, result); err != nil {
			return err
		}
	} else {
		outputTestSummary(cmd, result)
	}

	if result.Failed > 0 {
		return reportedError(ExitFailure, fmt.Sprintf("%d of %d scenario(s) failed", result.Failed, result.Total))
	}
	return nil
}

func filterScenarios(files []string, filter string) ([]string, error) {
	if filter == "" {
		return files, nil
	}
	var out []string
	for _, f := range files {
		base := filepath.Base(f)
		name := strings.TrimSuffix(base, filepath.Ext(base))
		matched, err := filepath.Match(filter, name)
		if err != nil {
			return nil, err
		}
		if matched {
			out = append(out, f)
		}
	}
	return out, nil
}

func runScenario(ctx context.Context, h *harness.Harness, scenarioFile string, opts *TestOptions, cmd *cobra.Command) ScenarioResult {
	w := cmd.OutOrStdout()
	text := opts.Format != "json"

	scenario, err := harness.LoadScenario(scenarioFile)
	if err != nil {
		if text {
			fmt.Fprintf(w, "✗ %s\n", filepath.Base(scenarioFile))
			fmt.Fprintf(w, "  Load error: %v\n", err)
		}
		return ScenarioResult{
			Name:   filepath.Base(scenarioFile),
			Path:   scenarioFile,
			Errors: []string{fmt.Sprintf("failed to load scenario: %v", err)},
		}
	}

	run, err := h.Run(ctx, scenario)
	if err != nil {
		if text {
			fmt.Fprintf(w, "✗ %s\n", scenario.Name)
			fmt.Fprintf(w, "  Execution error: %v\n", err)
		}
		return ScenarioResult{
			Name:   scenario.Name,
			Path:   scenarioFile,
			Errors: []string{fmt.Sprintf("scenario execution failed: %v", err)},
		}
	}

	if opts.Golden != "" {
		if msg := checkGolden(opts, scenario.Name, run); msg != "" {
			run.AddError(msg)
		}
	}

	if text {
		if run.Pass {
			fmt.Fprintf(w, "✓ %s\n", scenario.Name)
		} else {
			fmt.Fprintf(w, "✗ %s\n", scenario.Name)
			for _, e := range run.Errors {
				fmt.Fprintf(w, "  %s\n", strings.ReplaceAll(e, "\n", "\n  "))
			}
		}
	}

	return ScenarioResult{
		Name:   scenario.Name,
		Path:   scenarioFile,
		Pass:   run.Pass,
		RunID:  run.RunID,
		Digest: run.Digest,
		Errors: run.Errors,
	}
}

// checkGolden compares or rewrites the scenario's golden file. It returns
// a failure message, or "" when the snapshot matches.
func checkGolden(opts *TestOptions, name string, run *harness.Result) string {
	path := filepath.Join(opts.Golden, name+".golden")
	snapshot := harness.Snapshot(name, run)

	if opts.Update {
		if err := os.MkdirAll(opts.Golden, 0o755); err != nil {
			return fmt.Sprintf("golden: %v", err)
		}
		if err := os.WriteFile(path, snapshot, 0o644); err != nil {
			return fmt.Sprintf("golden: %v", err)
		}
		return ""
	}

	want, err := os.ReadFile(path)
	if err != nil {
		return fmt.Sprintf("golden: %v (run with --update to create it)", err)
	}
	if bytes.Equal(want, snapshot) {
		return ""
	}
	diff := cmp.Diff(strings.Split(string(want), "\n"), strings.Split(string(snapshot), "\n"))
	return fmt.Sprintf("golden mismatch in %s (-want +got):\n%s", path, diff)
}

func outputTestJSON(cmd *cobra.Command, result TestResult) error {
	formatter := &OutputFormatter{Format: "json", Writer: cmd.OutOrStdout()}
	return formatter.Success(result)
}

func outputTestSummary(cmd *cobra.Command, result TestResult) {
	w := cmd.OutOrStdout()
	fmt.Fprintln(w)
	if result.Failed == 0 {
		fmt.Fprintf(w, "All %d scenario(s) passed\n", result.Total)
		return
	}
	fmt.Fprintf(w, "%d passed, %d failed (%d total)\n", result.Passed, result.Failed, result.Total)
}
