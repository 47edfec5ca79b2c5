package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/timeline/internal/harness"
	"github.com/roach88/timeline/internal/store"
	"github.com/roach88/timeline/internal/timeline"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Element  string             // optional - filter to one element
	Kind     timeline.EventKind // optional - filter to one event kind
}

// RunSummary describes a recorded run.
type RunSummary struct {
	ID         string `json:"id"`
	Scenario   string `json:"scenario"`
	TreeHash   string `json:"tree_hash"`
	Finished   bool   `json:"finished"`
	Done       bool   `json:"done"`
	Result     bool   `json:"result"`
	FinishedAt int64  `json:"finished_at"`
	Error      string `json:"error,omitempty"`
}

// RunList holds the output of trace without a run ID.
type RunList struct {
	Runs []RunSummary `json:"runs"`
}

// TraceResult holds the trace of one run.
type TraceResult struct {
	Run    RunSummary            `json:"run"`
	Events []timeline.TraceEvent `json:"events"`
	Stats  TraceStats            `json:"stats"`
}

// TraceStats holds summary statistics for a trace.
type TraceStats struct {
	TotalEvents int            `json:"total_events"`
	Handles     int            `json:"handles"`
	ByKind      map[string]int `json:"by_kind"`
	LastAt      int64          `json:"last_at"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}
	var kind string

	cmd := &cobra.Command{
		Use:   "trace [run-id]",
		Short: "Show recorded runs and their traces",
		Long: `Show the runs recorded in a database, or the trace of one run.

Without a run ID, lists every recorded run in creation order. With a run
ID, prints the run's lifecycle events in sequence order, optionally
filtered by element name and event kind.

Examples:
  timeline trace --db ./runs.db
  timeline trace --db ./runs.db 0192c3a4-...
  timeline trace --db ./runs.db 0192c3a4-... --element nap
  timeline trace --db ./runs.db 0192c3a4-... --kind teardown --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Kind = timeline.EventKind(kind)
			if opts.Kind != "" && !opts.Kind.Valid() {
				return NewExitError(ExitCommandError, fmt.Sprintf("unknown event kind %q", kind))
			}
			if len(args) == 0 {
				return runListRuns(opts, cmd)
			}
			return runTrace(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Element, "element", "", "show only events of this element")
	cmd.Flags().StringVar(&kind, "kind", "", "show only events of this kind")

	return cmd
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

func runListRuns(opts *TraceOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	runs, err := st.ListRuns(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	list := RunList{Runs: make([]RunSummary, 0, len(runs))}
	for _, r := range runs {
		list.Runs = append(list.Runs, summarizeRun(r))
	}

	if formatter.JSON() {
		return formatter.Success(list)
	}

	w := cmd.OutOrStdout()
	if len(list.Runs) == 0 {
		fmt.Fprintln(w, "No runs found in database.")
		return nil
	}
	for _, r := range list.Runs {
		fmt.Fprintf(w, "%s  %s  %s\n", r.ID, runStatus(r), r.Scenario)
	}
	return nil
}

func runTrace(opts *TraceOptions, runID string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	run, err := st.ReadRun(ctx, runID)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("failed to read run %s", runID), err)
	}

	events, err := readTrace(ctx, st, runID, opts.Element, opts.Kind)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}

	result := TraceResult{
		Run:    summarizeRun(run),
		Events: events,
		Stats:  traceStats(events),
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}
	writeTraceText(cmd.OutOrStdout(), result)
	return nil
}

// readTrace loads a run's events with the element and kind filters applied.
func readTrace(ctx context.Context, st *store.Store, runID, element string, kind timeline.EventKind) ([]timeline.TraceEvent, error) {
	if element != "" {
		return st.ReadElementEvents(ctx, runID, element, kind)
	}
	events, err := st.ReadEvents(ctx, runID)
	if err != nil || kind == "" {
		return events, err
	}
	filtered := []timeline.TraceEvent{}
	for _, ev := range events {
		if ev.Kind == kind {
			filtered = append(filtered, ev)
		}
	}
	return filtered, nil
}

func summarizeRun(r store.Run) RunSummary {
	return RunSummary{
		ID:         r.ID,
		Scenario:   r.Scenario,
		TreeHash:   r.TreeHash,
		Finished:   r.Finished,
		Done:       r.Done,
		Result:     r.Result,
		FinishedAt: int64(r.FinishedAt),
		Error:      r.Error,
	}
}

// runStatus is a one-word status for text output.
func runStatus(r RunSummary) string {
	switch {
	case !r.Finished:
		return "incomplete"
	case r.Error != "":
		return "aborted"
	case !r.Done:
		return "pending"
	case r.Result:
		return "true"
	default:
		return "false"
	}
}

func traceStats(events []timeline.TraceEvent) TraceStats {
	stats := TraceStats{TotalEvents: len(events), ByKind: map[string]int{}}
	handles := make(map[uint64]bool)
	for _, ev := range events {
		stats.ByKind[string(ev.Kind)]++
		handles[ev.Handle] = true
		stats.LastAt = max(stats.LastAt, int64(ev.At))
	}
	stats.Handles = len(handles)
	return stats
}

func writeTraceText(w io.Writer, result TraceResult) {
	r := result.Run
	fmt.Fprintf(w, "Run: %s\n", r.ID)
	fmt.Fprintf(w, "Scenario: %s\n", r.Scenario)
	fmt.Fprintf(w, "Tree: %s\n", shortHash(r.TreeHash))
	fmt.Fprintf(w, "Status: %s (finished_at %d)\n", runStatus(r), r.FinishedAt)
	if r.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", r.Error)
	}
	fmt.Fprintln(w)

	if len(result.Events) == 0 {
		fmt.Fprintln(w, "No events.")
		return
	}
	fmt.Fprint(w, harness.FormatTrace(result.Events))
	fmt.Fprintln(w)

	kinds := make([]string, 0, len(result.Stats.ByKind))
	for k := range result.Stats.ByKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		parts = append(parts, fmt.Sprintf("%s=%d", k, result.Stats.ByKind[k]))
	}
	fmt.Fprintf(w, "Stats: %d events, %d handles, last at %d\n",
		result.Stats.TotalEvents, result.Stats.Handles, result.Stats.LastAt)
	fmt.Fprintf(w, "  %s\n", strings.Join(parts, " "))
}
