package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/timeline/internal/harness"
	"github.com/roach88/timeline/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database  string
	ShowTrace bool

	// IDs allows overriding the run ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDs store.RunIDGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run a scenario",
		Long: `Run a single scenario on a fresh timeline and report its outcome.

With --db the run and every trace event are recorded to a SQLite database
(created if it doesn't exist) for later inspection with trace and replay.

Exit codes:
  0 - Scenario passed
  1 - A step or assertion failed
  2 - Command error (invalid scenario, invalid tree, database error)

Examples:
  timeline run ./scenarios/soft-stop.yaml
  timeline run ./scenarios/soft-stop.yaml --trace
  timeline run ./scenarios/soft-stop.yaml --db ./runs.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioFile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "record the run to this SQLite database")
	cmd.Flags().BoolVar(&opts.ShowTrace, "trace", false, "print the full trace")

	return cmd
}

// commandContext returns the command's context, cancelled on SIGINT or
// SIGTERM.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func runScenarioFile(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	hopts := []harness.Option{harness.WithLogger(logger)}
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
		hopts = append(hopts, harness.WithStore(st, opts.IDs))
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	formatter.VerboseLog("Running scenario %s from %s", scenario.Name, path)
	result, err := harness.Run(ctx, scenario, hopts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to run scenario", err)
	}

	if formatter.JSON() {
		if result.Pass {
			return formatter.Success(result)
		}
		if err := formatter.Failure(ErrCodeScenarioFailed, "scenario failed", result); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", scenario.Name))
	}

	writeResultText(cmd.OutOrStdout(), result, opts.ShowTrace)
	if !result.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", scenario.Name))
	}
	return nil
}

// writeResultText prints a human-readable scenario result.
func writeResultText(w io.Writer, result *harness.Result, showTrace bool) {
	mark := "✓"
	if !result.Pass {
		mark = "✗"
	}
	if result.RunID != "" {
		fmt.Fprintf(w, "%s %s (run %s)\n", mark, result.Scenario, result.RunID)
	} else {
		fmt.Fprintf(w, "%s %s\n", mark, result.Scenario)
	}
	fmt.Fprintf(w, "  done: %t  result: %t  finished_at: %d  ended_at: %d  events: %d\n",
		result.Done, result.Value, int64(result.FinishedAt), int64(result.EndedAt), len(result.Trace))
	if result.BudgetExhausted > 0 {
		fmt.Fprintf(w, "  step budget exhausted on %d tick(s)\n", result.BudgetExhausted)
	}
	for _, msg := range result.Errors {
		fmt.Fprintf(w, "  - %s\n", msg)
	}
	if showTrace {
		fmt.Fprintln(w)
		fmt.Fprint(w, harness.FormatTrace(result.Trace))
	}
}
