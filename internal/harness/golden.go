package harness

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/timeline/internal/timeline"
)

// FormatTrace renders a trace one event per line, tab separated:
//
//	seq  at  kind  handle  parent  element  type  result
//
// Parent is 0 for roots. The format is stable and used for golden files.
func FormatTrace(trace []timeline.TraceEvent) string {
	var buf strings.Builder
	for _, ev := range trace {
		fmt.Fprintf(&buf, "%d\t%d\t%s\t%d\t%d\t%s\t%s\t%t\n",
			ev.Seq, int64(ev.At), ev.Kind, ev.Handle, ev.Parent, ev.Element, ev.Type, ev.Result)
	}
	return buf.String()
}

// Snapshot renders a result as golden-file text: a short header with the
// scenario outcome followed by the formatted trace. Run IDs and tree hashes
// are left out so that snapshots survive storage and formatting changes.
func Snapshot(result *Result) []byte {
	var buf strings.Builder
	fmt.Fprintf(&buf, "# scenario: %s\n", result.Scenario)
	fmt.Fprintf(&buf, "# done: %t result: %t finished_at: %d ended_at: %d\n",
		result.Done, result.Value, int64(result.FinishedAt), int64(result.EndedAt))
	buf.WriteString(FormatTrace(result.Trace))
	return []byte(buf.String())
}

// RunWithGolden executes a scenario and compares the trace against a golden
// file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the trace doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}

	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares the snapshot of a result that was already produced,
// for example by Replay, against testdata/golden/{name}.golden.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, Snapshot(result))
}
