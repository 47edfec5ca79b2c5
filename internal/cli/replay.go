package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/timeline/internal/harness"
	"github.com/roach88/timeline/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database   string
	Incomplete bool // list incomplete runs instead of replaying
}

// ReplayRunResult holds the replay result for a single run.
type ReplayRunResult struct {
	RunID         string `json:"run_id"`
	Scenario      string `json:"scenario"`
	Recorded      int    `json:"recorded_events"`
	Replayed      int    `json:"replayed_events"`
	HashMatch     bool   `json:"hash_match"`
	Deterministic bool   `json:"deterministic"`
	Divergence    string `json:"divergence,omitempty"`
	Error         string `json:"error,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Runs             []ReplayRunResult `json:"runs"`
	TotalRuns        int               `json:"total_runs"`
	AllDeterministic bool              `json:"all_deterministic"`
}

// IncompleteRun describes a run that never recorded a finish.
type IncompleteRun struct {
	RunID    string `json:"run_id"`
	Scenario string `json:"scenario"`
	Events   int    `json:"events"`
	LastSeq  uint64 `json:"last_seq"`
	LastAt   int64  `json:"last_at"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay [run-id]",
		Short: "Re-run recorded runs and verify determinism",
		Long: `Re-run recorded scenarios and compare the fresh traces against the
recorded ones.

Each run is rebuilt from the scenario source stored with it. A run is
deterministic when the tree hash matches and every trace event is
identical. Without a run ID every recorded run is replayed.

With --incomplete, lists runs that never recorded a finish (for example
because the process died mid-run) instead of replaying.

Exit codes:
  0 - All runs are deterministic
  1 - At least one run diverged
  2 - Command error (database not found, unknown run, etc.)

Examples:
  timeline replay --db ./runs.db
  timeline replay --db ./runs.db 0192c3a4-...
  timeline replay --db ./runs.db --incomplete
  timeline replay --db ./runs.db --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Incomplete {
				return runListIncomplete(opts, cmd)
			}
			var runID string
			if len(args) == 1 {
				runID = args[0]
			}
			return runReplay(opts, runID, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().BoolVar(&opts.Incomplete, "incomplete", false, "list runs that never finished")

	return cmd
}

func runReplay(opts *ReplayOptions, runID string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	var runIDs []string
	if runID != "" {
		runIDs = []string{runID}
	} else {
		runs, err := st.ListRuns(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
		for _, r := range runs {
			runIDs = append(runIDs, r.ID)
		}
	}

	result := ReplayResult{
		Runs:             make([]ReplayRunResult, 0, len(runIDs)),
		TotalRuns:        len(runIDs),
		AllDeterministic: true,
	}

	for _, id := range runIDs {
		formatter.VerboseLog("Replaying run %s", id)
		rr, err := harness.Replay(ctx, st, id, harness.WithLogger(logger))
		if err != nil {
			// A named run that cannot be replayed is a command error; in a
			// full sweep it is reported and counted against determinism.
			if runID != "" {
				return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay run %s", id), err)
			}
			result.Runs = append(result.Runs, ReplayRunResult{RunID: id, Error: err.Error()})
			result.AllDeterministic = false
			continue
		}

		run := ReplayRunResult{
			RunID:         id,
			Scenario:      rr.Run.Scenario,
			Recorded:      rr.Recorded,
			Replayed:      len(rr.Result.Trace),
			HashMatch:     rr.HashMatch,
			Deterministic: rr.Deterministic(),
		}
		if rr.Divergence != nil {
			run.Divergence = rr.Divergence.String()
		}
		result.Runs = append(result.Runs, run)
		if !run.Deterministic {
			result.AllDeterministic = false
		}
	}

	if formatter.JSON() {
		if result.AllDeterministic {
			return formatter.Success(result)
		}
		if err := formatter.Failure(ErrCodeNondeterminism, "replay diverged from recorded trace", result); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "replay diverged from recorded trace")
	}

	return outputReplayText(cmd.OutOrStdout(), result)
}

func outputReplayText(w io.Writer, result ReplayResult) error {
	if result.TotalRuns == 0 {
		fmt.Fprintln(w, "No runs found in database.")
		return nil
	}

	for _, r := range result.Runs {
		switch {
		case r.Error != "":
			fmt.Fprintf(w, "✗ %s: %s\n", r.RunID, r.Error)
		case r.Deterministic:
			fmt.Fprintf(w, "✓ %s %s (%d events)\n", r.RunID, r.Scenario, r.Recorded)
		default:
			fmt.Fprintf(w, "✗ %s %s\n", r.RunID, r.Scenario)
			if !r.HashMatch {
				fmt.Fprintln(w, "  tree hash changed since the run was recorded")
			}
			if r.Divergence != "" {
				fmt.Fprintf(w, "  %s\n", r.Divergence)
			}
		}
	}

	fmt.Fprintln(w)
	if !result.AllDeterministic {
		fmt.Fprintln(w, "✗ Replay diverged from recorded trace")
		return NewExitError(ExitFailure, "replay diverged from recorded trace")
	}
	fmt.Fprintf(w, "✓ All %d run(s) deterministic\n", result.TotalRuns)
	return nil
}

func runListIncomplete(opts *ReplayOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	states, err := st.FindIncompleteRuns(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find incomplete runs", err)
	}

	runs := make([]IncompleteRun, 0, len(states))
	for _, s := range states {
		runs = append(runs, IncompleteRun{
			RunID:    s.Run.ID,
			Scenario: s.Run.Scenario,
			Events:   s.EventCount,
			LastSeq:  s.LastSeq,
			LastAt:   int64(s.LastAt),
		})
	}

	if formatter.JSON() {
		return formatter.Success(map[string]any{"incomplete": runs})
	}

	w := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(w, "No incomplete runs.")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%s  %s  %d events, last seq %d at %d\n", r.RunID, r.Scenario, r.Events, r.LastSeq, r.LastAt)
	}
	return nil
}
