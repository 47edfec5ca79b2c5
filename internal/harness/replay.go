package harness

import (
	"context"
	"fmt"

	"github.com/roach88/timeline/internal/store"
	"github.com/roach88/timeline/internal/timeline"
)

// Divergence describes the first point where two traces disagree.
// Recorded or Replayed is nil when that trace ended early.
type Divergence struct {
	Index    int
	Recorded *timeline.TraceEvent
	Replayed *timeline.TraceEvent
}

func (d *Divergence) String() string {
	switch {
	case d.Recorded == nil:
		return fmt.Sprintf("event %d: recorded trace ended, replay has %s %s at %d",
			d.Index, d.Replayed.Kind, d.Replayed.Element, int64(d.Replayed.At))
	case d.Replayed == nil:
		return fmt.Sprintf("event %d: replay ended, recorded trace has %s %s at %d",
			d.Index, d.Recorded.Kind, d.Recorded.Element, int64(d.Recorded.At))
	default:
		return fmt.Sprintf("event %d: recorded %+v, replayed %+v", d.Index, *d.Recorded, *d.Replayed)
	}
}

// FirstDivergence compares two traces event by event.
// Returns nil if they are identical.
func FirstDivergence(recorded, replayed []timeline.TraceEvent) *Divergence {
	n := max(len(recorded), len(replayed))
	for i := 0; i < n; i++ {
		var rec, rep *timeline.TraceEvent
		if i < len(recorded) {
			rec = &recorded[i]
		}
		if i < len(replayed) {
			rep = &replayed[i]
		}
		if rec != nil && rep != nil && *rec == *rep {
			continue
		}
		return &Divergence{Index: i, Recorded: rec, Replayed: rep}
	}
	return nil
}

// ReplayResult is the outcome of re-running a recorded run.
type ReplayResult struct {
	Run        store.Run
	Result     *Result
	Recorded   int
	HashMatch  bool
	Divergence *Divergence
}

// Deterministic reports whether the replay reproduced the recorded run.
func (r *ReplayResult) Deterministic() bool {
	return r.HashMatch && r.Divergence == nil
}

// Replay re-runs a recorded run from its stored scenario and compares the
// fresh trace with the recorded one. Options are passed to Run; with
// WithStore the replay is recorded as a new run.
func Replay(ctx context.Context, st *store.Store, runID string, opts ...Option) (*ReplayResult, error) {
	run, err := st.ReadRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	recorded, err := st.ReadEvents(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}

	scenario, err := ParseScenario([]byte(run.Source))
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", runID, err)
	}

	result, err := Run(ctx, scenario, opts...)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", runID, err)
	}

	return &ReplayResult{
		Run:        run,
		Result:     result,
		Recorded:   len(recorded),
		HashMatch:  result.TreeHash == run.TreeHash,
		Divergence: FirstDivergence(recorded, result.Trace),
	}, nil
}
