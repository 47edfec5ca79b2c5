package timeline

import "time"

// EventKind distinguishes lifecycle transitions in the trace.
type EventKind string

const (
	EventScheduled    EventKind = "scheduled"
	EventRun          EventKind = "run"
	EventResume       EventKind = "resume"
	EventSuspendChild EventKind = "suspend_child"
	EventSuspendTimer EventKind = "suspend_timer"
	EventFinished     EventKind = "finished"
	EventSoftStop     EventKind = "soft_stop"
	EventHardStop     EventKind = "hard_stop"
	EventTeardown     EventKind = "teardown"
)

// Valid reports whether k is one of the known event kinds.
func (k EventKind) Valid() bool {
	switch k {
	case EventScheduled, EventRun, EventResume, EventSuspendChild, EventSuspendTimer,
		EventFinished, EventSoftStop, EventHardStop, EventTeardown:
		return true
	}
	return false
}

// TraceEvent records one lifecycle transition of one handle.
type TraceEvent struct {
	Seq     uint64        `json:"seq"`
	At      time.Duration `json:"at"`
	Kind    EventKind     `json:"kind"`
	Handle  uint64        `json:"handle"`
	Parent  uint64        `json:"parent,omitempty"`
	Element string        `json:"element"`
	Type    string        `json:"type"`
	Result  bool          `json:"result,omitempty"`
}

// Observer receives every trace event, in order, on the driver goroutine.
type Observer interface {
	Observe(ev TraceEvent)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ev TraceEvent)

// Observe implements Observer.
func (f ObserverFunc) Observe(ev TraceEvent) { f(ev) }

// MultiObserver fans events out to several observers in order.
type MultiObserver []Observer

// Observe implements Observer.
func (m MultiObserver) Observe(ev TraceEvent) {
	for _, o := range m {
		o.Observe(ev)
	}
}

// emit stamps and delivers a trace event for h.
func (t *Timeline) emit(kind EventKind, h *Handle, e Element, result bool) {
	if t.observer == nil && !t.debug {
		return
	}

	t.events++
	ev := TraceEvent{
		Seq:    t.events,
		At:     t.now,
		Kind:   kind,
		Handle: h.id,
		Result: result,
	}
	if h.parent != nil {
		ev.Parent = h.parent.id
	}
	if e != nil {
		ev.Element = nameOf(e)
		ev.Type = e.core().Kind()
	}

	if t.debug {
		t.logger.Debug("timeline event",
			"kind", ev.Kind,
			"at", ev.At,
			"handle", ev.Handle,
			"parent", ev.Parent,
			"element", ev.Element,
			"result", ev.Result,
		)
	}
	if t.observer != nil {
		t.observer.Observe(ev)
	}
}
