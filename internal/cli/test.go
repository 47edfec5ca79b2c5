package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/timeline/internal/harness"
	"github.com/roach88/timeline/internal/store"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Filter string // scenario filter (glob pattern)
	Golden string // golden file directory
	Update bool   // regenerate golden files

	Database string // record every run to this database
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Path   string   `json:"path,omitempty"`
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
		Short: "Run a directory of scenarios",
		Long: `Run every scenario file in a directory and report a summary.

With --golden each trace is also compared against <dir>/<name>.golden;
--update rewrites those files from the current run instead.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  timeline test ./scenarios
  timeline test ./scenarios --filter "stop-*"
  timeline test ./scenarios --golden ./golden --update
  timeline test ./scenarios --db ./runs.db
  timeline test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().StringVar(&opts.Golden, "golden", "", "compare traces against golden files in this directory")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record every run to this SQLite database")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	if opts.Update && opts.Golden == "" {
		return NewExitError(ExitCommandError, "--update requires --golden")
	}

	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	suite := harness.Suite{
		Filter:  opts.Filter,
		Options: []harness.Option{harness.WithLogger(logger)},
	}
	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
		suite.Options = append(suite.Options, harness.WithStore(st, nil))
	}
	if opts.Golden != "" {
		suite.Check = func(s *harness.Scenario, r *harness.Result) error {
			return checkGolden(opts, s, r, formatter)
		}
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	sr, err := suite.Run(ctx, scenariosDir)
	if err != nil {
		var nf *harness.ScenarioNotFoundError
		if errors.As(err, &nf) {
			return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", scenariosDir))
		}
		return WrapExitError(ExitCommandError, "failed to run scenarios", err)
	}

	result := toTestResult(sr)
	if result.Total == 0 {
		if formatter.JSON() {
			return formatter.Success(result)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No scenarios found.")
		return nil
	}

	if formatter.JSON() {
		if result.Failed == 0 {
			return formatter.Success(result)
		}
		msg := fmt.Sprintf("%d scenario(s) failed", result.Failed)
		if err := formatter.Failure(ErrCodeScenarioFailed, msg, result); err != nil {
			return err
		}
		return NewExitError(ExitFailure, msg)
	}

	return outputTestText(cmd.OutOrStdout(), result)
}

// toTestResult flattens a suite result: scenarios that ran first, then
// those that never produced a result.
func toTestResult(sr *harness.SuiteResult) TestResult {
	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, sr.Total),
		Passed:    sr.Passed,
		Failed:    sr.Failed,
		Total:     sr.Total,
	}

	ran := make(map[string]bool, len(sr.Results))
	for _, r := range sr.Results {
		result.Scenarios = append(result.Scenarios, ScenarioResult{Name: r.Scenario, Pass: r.Pass, Errors: r.Errors})
		ran[r.Scenario] = true
	}
	// Scenarios that failed to load or execute have no result.
	for _, f := range sr.Failures {
		if ran[f.Scenario] {
			continue
		}
		name := f.Scenario
		if name == "" {
			name = filepath.Base(f.ScenarioPath)
		}
		result.Scenarios = append(result.Scenarios, ScenarioResult{
			Name:   name,
			Path:   f.ScenarioPath,
			Errors: []string{f.Error},
		})
	}
	return result
}

// checkGolden compares the result snapshot with its golden file, or
// rewrites the file under --update.
func checkGolden(opts *TestOptions, s *harness.Scenario, r *harness.Result, formatter *OutputFormatter) error {
	goldenPath := filepath.Join(opts.Golden, s.Name+".golden")
	snapshot := harness.Snapshot(r)

	if opts.Update {
		if err := os.MkdirAll(opts.Golden, 0o755); err != nil {
			return fmt.Errorf("failed to create golden directory: %w", err)
		}
		if err := os.WriteFile(goldenPath, snapshot, 0o644); err != nil {
			return fmt.Errorf("failed to write golden file: %w", err)
		}
		formatter.VerboseLog("Updated golden file %s", goldenPath)
		return nil
	}

	want, err := os.ReadFile(goldenPath)
	if err != nil {
		return fmt.Errorf("failed to read golden file: %w", err)
	}
	if !bytes.Equal(want, snapshot) {
		return fmt.Errorf("trace does not match golden file %s", goldenPath)
	}
	return nil
}

// outputTestText outputs the test result as text.
func outputTestText(w io.Writer, result TestResult) error {
	for _, s := range result.Scenarios {
		if s.Pass {
			fmt.Fprintf(w, "✓ %s\n", s.Name)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", s.Name)
		for _, msg := range s.Errors {
			fmt.Fprintf(w, "  %s\n", msg)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		// Test failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
