package harness

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/timeline/internal/timeline"
	"github.com/roach88/timeline/internal/tree"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string                // Assertion type for categorization
	Expected string                // Human-readable expected outcome
	Actual   string                // Human-readable actual outcome
	Trace    []timeline.TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		buf.WriteString(FormatTrace(e.Trace))
	}

	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure
// messages. An empty slice means all assertions held.
func EvaluateAssertions(result *Result, assertions []Assertion, env *tree.Env) []string {
	var failures []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertResult:
			err = assertResult(result, a)
		case AssertDone:
			err = assertDone(result, a)
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertFinishedAt:
			err = assertFinishedAt(result, a)
		case AssertCounter:
			err = assertCounter(env, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

// lastEvent returns the last event of the given kind for element.
func lastEvent(trace []timeline.TraceEvent, element string, kind timeline.EventKind) (timeline.TraceEvent, bool) {
	for i := len(trace) - 1; i >= 0; i-- {
		if trace[i].Element == element && trace[i].Kind == kind {
			return trace[i], true
		}
	}
	return timeline.TraceEvent{}, false
}

// assertResult checks the final result of the root, or of the most recent
// handle of a named element. Hard stopped elements end with false.
func assertResult(result *Result, a Assertion) error {
	want := *a.Result

	if a.Element == "" {
		if !result.Done {
			return &AssertionError{
				Type:     AssertResult,
				Expected: fmt.Sprintf("root finished with %t", want),
				Actual:   "root did not finish",
			}
		}
		if result.Value != want {
			return &AssertionError{
				Type:     AssertResult,
				Expected: fmt.Sprintf("root result %t", want),
				Actual:   fmt.Sprintf("root result %t", result.Value),
				Trace:    result.Trace,
			}
		}
		return nil
	}

	ev, ok := lastEvent(result.Trace, a.Element, timeline.EventTeardown)
	if !ok {
		return &AssertionError{
			Type:     AssertResult,
			Expected: fmt.Sprintf("%s finished with %t", a.Element, want),
			Actual:   fmt.Sprintf("%s was never torn down", a.Element),
			Trace:    result.Trace,
		}
	}
	if ev.Result != want {
		return &AssertionError{
			Type:     AssertResult,
			Expected: fmt.Sprintf("%s result %t", a.Element, want),
			Actual:   fmt.Sprintf("%s result %t", a.Element, ev.Result),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertDone checks whether the root reached a terminal state.
func assertDone(result *Result, a Assertion) error {
	if result.Done != *a.Done {
		return &AssertionError{
			Type:     AssertDone,
			Expected: fmt.Sprintf("done=%t", *a.Done),
			Actual:   fmt.Sprintf("done=%t at %d", result.Done, int64(result.EndedAt)),
		}
	}
	return nil
}

// assertTraceContains checks that the element has at least one event,
// of the given kind if one is set.
func assertTraceContains(trace []timeline.TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if ev.Element == a.Element && (a.Kind == "" || ev.Kind == a.Kind) {
			return nil
		}
	}

	expected := a.Element
	if a.Kind != "" {
		expected = fmt.Sprintf("%s %s", a.Kind, a.Element)
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// kindOrRun returns the assertion's event kind, defaulting to run.
func kindOrRun(a Assertion) timeline.EventKind {
	if a.Kind != "" {
		return a.Kind
	}
	return timeline.EventRun
}

// assertTraceOrder checks that elements first appear in the specified order.
// Elements don't need to be consecutive (intervening events are allowed).
func assertTraceOrder(trace []timeline.TraceEvent, a Assertion) error {
	kind := kindOrRun(a)

	positions := make(map[string]int)
	for i, ev := range trace {
		if ev.Kind != kind {
			continue
		}
		if _, seen := positions[ev.Element]; !seen {
			positions[ev.Element] = i + 1 // 1-indexed for readability
		}
	}

	for _, element := range a.Elements {
		if positions[element] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all elements present (%s): %v", kind, a.Elements),
				Actual:   fmt.Sprintf("missing element: %s", element),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(a.Elements); i++ {
		prev, curr := a.Elements[i-1], a.Elements[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("elements in order (%s): %v", kind, a.Elements),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks that the element has exactly Count events of the
// given kind.
func assertTraceCount(trace []timeline.TraceEvent, a Assertion) error {
	kind := kindOrRun(a)

	count := 0
	for _, ev := range trace {
		if ev.Element == a.Element && ev.Kind == kind {
			count++
		}
	}

	if count != *a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%s %s exactly %d times", kind, a.Element, *a.Count),
			Actual:   fmt.Sprintf("found %d times", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinishedAt checks the virtual time at which the root (or the most
// recent handle of a named element) was torn down.
func assertFinishedAt(result *Result, a Assertion) error {
	want := time.Duration(*a.At)

	got, ok := result.FinishedAt, result.Done
	name := "root"
	if a.Element != "" {
		name = a.Element
		var ev timeline.TraceEvent
		ev, ok = lastEvent(result.Trace, a.Element, timeline.EventTeardown)
		got = ev.At
	}

	if !ok {
		return &AssertionError{
			Type:     AssertFinishedAt,
			Expected: fmt.Sprintf("%s finished at %d", name, *a.At),
			Actual:   fmt.Sprintf("%s did not finish", name),
			Trace:    result.Trace,
		}
	}
	if got != want {
		return &AssertionError{
			Type:     AssertFinishedAt,
			Expected: fmt.Sprintf("%s finished at %d", name, *a.At),
			Actual:   fmt.Sprintf("finished at %d", int64(got)),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertCounter checks a final environment counter.
func assertCounter(env *tree.Env, a Assertion) error {
	if got := env.Count(a.Counter); got != *a.Count {
		return &AssertionError{
			Type:     AssertCounter,
			Expected: fmt.Sprintf("counter %s = %d", a.Counter, *a.Count),
			Actual:   fmt.Sprintf("counter %s = %d", a.Counter, got),
		}
	}
	return nil
}
