package testutil

import (
	"sync"

	"github.com/roach88/timeline/internal/timeline"
)

// TraceRecorder is a timeline observer that keeps every event for
// assertions.
//
// Thread-safety: the timeline delivers events on its driver goroutine, but
// tests often read from another; all methods lock.
type TraceRecorder struct {
	mu     sync.Mutex
	events []timeline.TraceEvent
}

// NewTraceRecorder creates an empty recorder.
func NewTraceRecorder() *TraceRecorder {
	return &TraceRecorder{}
}

// Observe implements timeline.Observer.
func (r *TraceRecorder) Observe(ev timeline.TraceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events.
func (r *TraceRecorder) Events() []timeline.TraceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]timeline.TraceEvent{}, r.events...)
}

// Count returns the number of events of kind for element.
// An empty kind matches every kind.
func (r *TraceRecorder) Count(kind timeline.EventKind, element string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Element == element && (kind == "" || ev.Kind == kind) {
			n++
		}
	}
	return n
}

// Kinds returns the event kinds recorded for element, in order.
func (r *TraceRecorder) Kinds(element string) []timeline.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := []timeline.EventKind{}
	for _, ev := range r.events {
		if ev.Element == element {
			kinds = append(kinds, ev.Kind)
		}
	}
	return kinds
}

// Reset discards all recorded events.
func (r *TraceRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
