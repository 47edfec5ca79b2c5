package timeline

import (
	"testing"
)

// recorder is a test observer that keeps every trace event.
type recorder struct {
	events []TraceEvent
}

func (r *recorder) Observe(ev TraceEvent) {
	r.events = append(r.events, ev)
}

// index returns the position of the first event with kind for element, or -1.
func (r *recorder) index(kind EventKind, element string) int {
	for i, ev := range r.events {
		if ev.Kind == kind && ev.Element == element {
			return i
		}
	}
	return -1
}

// find returns the first event with kind for element.
func (r *recorder) find(kind EventKind, element string) (TraceEvent, bool) {
	i := r.index(kind, element)
	if i < 0 {
		return TraceEvent{}, false
	}
	return r.events[i], true
}

// count returns the number of events with kind for element.
func (r *recorder) count(kind EventKind, element string) int {
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind && ev.Element == element {
			n++
		}
	}
	return n
}

func newTestTimeline(t *testing.T, opts ...Option) (*Timeline, *recorder) {
	t.Helper()
	rec := &recorder{}
	opts = append([]Option{WithObserver(rec)}, opts...)
	return New(opts...), rec
}

// catch runs fn and converts a contract violation into an error.
func catch(fn func()) (err error) {
	defer Recover(&err)
	fn()
	return nil
}

// tracker records the names of entered functions in order.
type tracker struct {
	entered []string
}

func (tr *tracker) fn(name string, result bool) *FunctionElement {
	return Named(name, Function(func() bool {
		tr.entered = append(tr.entered, name)
		return result
	}))
}
