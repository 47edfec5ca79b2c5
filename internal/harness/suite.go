package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ScenarioNotFoundError is returned when a suite path doesn't exist.
type ScenarioNotFoundError struct {
	Path string
}

// Error implements the error interface.
func (e *ScenarioNotFoundError) Error() string {
	return fmt.Sprintf("scenario path %q does not exist", e.Path)
}

// FindScenarios returns the scenario files under path. A file path is
// returned as is; a directory is scanned (non-recursively) for *.yaml and
// *.yml files in lexical order.
func FindScenarios(path string) ([]string, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &ScenarioNotFoundError{Path: path}
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", path, err)
	}

	paths := []string{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".yaml" || ext == ".yml" {
			paths = append(paths, filepath.Join(path, entry.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// SuiteResult contains results from running a set of scenarios.
type SuiteResult struct {
	Total    int               `json:"total"`
	Passed   int               `json:"passed"`
	Failed   int               `json:"failed"`
	Results  []*Result         `json:"results,omitempty"`
	Failures []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure represents a scenario that failed to load, run or pass.
type ScenarioFailure struct {
	Scenario     string `json:"scenario,omitempty"`
	ScenarioPath string `json:"scenario_path"`
	Error        string `json:"error"`
}

// Pass reports whether every scenario passed.
func (r *SuiteResult) Pass() bool {
	return r.Failed == 0
}

// Suite configures a scenario suite run.
type Suite struct {
	// Filter is a glob matched against scenario file names without their
	// extension. Empty matches every file.
	Filter string

	// Check is an extra per-scenario check, such as a golden comparison.
	// A non-nil error fails the scenario.
	Check func(s *Scenario, r *Result) error

	// Options are passed to Run for every scenario.
	Options []Option
}

// RunSuite runs every scenario under path and returns a summary.
func RunSuite(ctx context.Context, path string, opts ...Option) (*SuiteResult, error) {
	return Suite{Options: opts}.Run(ctx, path)
}

// Run runs every matching scenario under path and returns a summary.
//
// For each scenario file:
// 1. Load and validate the scenario
// 2. Run it via harness.Run with the suite options
// 3. Apply Check, if set
// 4. Collect pass/fail results
//
// Load and execution errors count as failures; only an unreadable path or
// a malformed filter is returned as an error.
func (s Suite) Run(ctx context.Context, path string) (*SuiteResult, error) {
	paths, err := FindScenarios(path)
	if err != nil {
		return nil, err
	}

	result := &SuiteResult{}
	for _, scenarioPath := range paths {
		if s.Filter != "" {
			base := filepath.Base(scenarioPath)
			matched, err := filepath.Match(s.Filter, strings.TrimSuffix(base, filepath.Ext(base)))
			if err != nil {
				return nil, fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				continue
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result.Total++

		scenario, err := LoadScenario(scenarioPath)
		if err != nil {
			result.Failed++
			result.Failures = append(result.Failures, ScenarioFailure{
				ScenarioPath: scenarioPath,
				Error:        fmt.Sprintf("failed to load scenario: %v", err),
			})
			continue
		}

		res, err := Run(ctx, scenario, s.Options...)
		if err != nil {
			result.Failed++
			result.Failures = append(result.Failures, ScenarioFailure{
				Scenario:     scenario.Name,
				ScenarioPath: scenarioPath,
				Error:        fmt.Sprintf("scenario execution failed: %v", err),
			})
			continue
		}
		if s.Check != nil {
			if err := s.Check(scenario, res); err != nil {
				res.AddError(err.Error())
			}
		}
		result.Results = append(result.Results, res)

		if !res.Pass {
			result.Failed++
			result.Failures = append(result.Failures, ScenarioFailure{
				Scenario:     scenario.Name,
				ScenarioPath: scenarioPath,
				Error:        strings.Join(res.Errors, "; "),
			})
			continue
		}
		result.Passed++
	}

	return result, nil
}
