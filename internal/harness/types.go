package harness

import (
	"time"

	"github.com/roach88/timeline/internal/timeline"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: every step applied and every
	// assertion held.
	Pass bool `json:"pass"`

	Scenario string `json:"scenario"`
	RunID    string `json:"run_id,omitempty"`
	TreeHash string `json:"tree_hash"`

	// Done and Value are the root element's completion state and result.
	Done  bool `json:"done"`
	Value bool `json:"result"`

	// FinishedAt is the virtual time at which the root finished.
	// EndedAt is the virtual time at which the run stopped.
	FinishedAt time.Duration `json:"finished_at"`
	EndedAt    time.Duration `json:"ended_at"`

	// Trace contains every timeline event in order.
	Trace []timeline.TraceEvent `json:"trace"`

	// Counters holds the final value of every counter the tree touched.
	Counters map[string]int `json:"counters,omitempty"`

	// BudgetExhausted counts ticks that hit the step budget.
	BudgetExhausted int `json:"budget_exhausted,omitempty"`

	// Errors contains step and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult(scenario string) *Result {
	return &Result{
		Pass:     true,
		Scenario: scenario,
		Trace:    []timeline.TraceEvent{},
		Errors:   []string{},
		Counters: map[string]int{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Observe implements timeline.Observer by appending to the trace.
func (r *Result) Observe(ev timeline.TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
