package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

// ScenarioNotFoundError is returned when a named scenario file doesn't
// exist.
type ScenarioNotFoundError struct {
	ScenarioPath string
	ResolvedPath string
}

// Error implements the error interface.
func (e *ScenarioNotFoundError) Error() string {
	return fmt.Sprintf("scenario file %q does not exist (resolved to: %s)", e.ScenarioPath, e.ResolvedPath)
}

// SuiteResult summarises a batch of scenario runs.
type SuiteResult struct {
	TotalScenarios int               `json:"total_scenarios"`
	Passed         int               `json:"passed"`
	Failed         int               `json:"failed"`
	Failures       []ScenarioFailure `json:"failures,omitempty"`
}

// OK reports whether every scenario passed.
func (r *SuiteResult) OK() bool { return r.Failed == 0 }

// ScenarioFailure represents a scenario that could not run or did not pass.
type ScenarioFailure struct {
	ScenarioPath string   `json:"scenario_path"`
	Scenario     string   `json:"scenario,omitempty"`
	Errors       []string `json:"errors"`
}

// FindScenarios expands paths into scenario files. Directories are
// searched recursively for .yaml and .yml files; the result is sorted so
// suites run in a stable order.
func FindScenarios(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(abs)
		if os.IsNotExist(err) {
			return nil, &ScenarioNotFoundError{ScenarioPath: p, ResolvedPath: abs}
		}
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, abs)
			continue
		}
		err = filepath.WalkDir(abs, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if ext := filepath.Ext(path); !d.IsDir() && (ext == ".yaml" || ext == ".yml") {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", p, err)
		}
	}
	slices.Sort(files)
	return slices.Compact(files), nil
}

// RunSuite loads and runs every scenario under paths.
//
// For each scenario file:
// 1. Load and validate it
// 2. Run it via Harness.Run
// 3. Collect pass/fail
//
// A scenario that fails to load or run counts as failed; the suite keeps
// going. The returned error is reserved for paths that cannot be read.
func (h *Harness) RunSuite(ctx context.Context, paths []string) (*SuiteResult, error) {
	files, err := FindScenarios(paths)
	if err != nil {
		return nil, err
	}

	result := &SuiteResult{}
	for _, path := range files {
		result.TotalScenarios++

		scenario, err := LoadScenario(path)
		if err != nil {
			result.fail(path, "", fmt.Sprintf("failed to load scenario: %v", err))
			continue
		}

		run, err := h.Run(ctx, scenario)
		if err != nil {
			result.fail(path, scenario.Name, fmt.Sprintf("scenario execution failed: %v", err))
			continue
		}

		if !run.Pass {
			result.fail(path, scenario.Name, run.Errors...)
			continue
		}

		result.Passed++
	}
	return result, nil
}

func (r *SuiteResult) fail(path, name string, errs ...string) {
	r.Failed++
	r.Failures = append(r.Failures, ScenarioFailure{
		ScenarioPath: path,
		Scenario:     name,
		Errors:       errs,
	})
}
