package timeline

import "time"

// Handle is the timeline's exclusive-ownership ticket for a live element.
//
// A handle owns exactly one element for its whole life. The element pointer
// is cleared exactly once, at teardown, and the handle is never reused.
type Handle struct {
	id      uint64
	t       *Timeline
	element Element
	parent  *Handle

	when  time.Duration // Wake time while queued in the timer heap
	index int           // Timer heap index; -1 when not queued

	stopping bool // Hard stop in progress
	done     bool
	result   bool
}

// ID returns the handle's logical-clock stamp.
func (h *Handle) ID() uint64 { return h.id }

// Element returns the owned element, or nil after teardown.
func (h *Handle) Element() Element { return h.element }

// Parent returns the parent handle, or nil for roots and torn-down handles.
func (h *Handle) Parent() *Handle { return h.parent }

// IsActive reports whether the handle still owns a live element.
func (h *Handle) IsActive() bool { return h.element != nil }

// IsScheduled reports whether the handle is waiting in the timer heap.
func (h *Handle) IsScheduled() bool { return h.index >= 0 }

// When returns the pending wake time. Only meaningful if IsScheduled.
func (h *Handle) When() time.Duration { return h.when }

// Done reports whether the element finished, naturally or by hard stop.
func (h *Handle) Done() bool { return h.done }

// Result returns the final result and whether the element has finished.
// A hard-stopped element reports (false, true).
func (h *Handle) Result() (result bool, done bool) {
	return h.result, h.done
}

// SoftStop requests a cooperative stop. See Timeline.SoftStop.
func (h *Handle) SoftStop() bool {
	return h.t.SoftStop(h)
}

// HardStop stops the element and its subtree immediately.
// See Timeline.HardStop.
func (h *Handle) HardStop() {
	h.t.HardStop(h)
}

// String formats the handle for logs.
func (h *Handle) String() string {
	if h.element == nil {
		return "handle(detached)"
	}
	return "handle(" + nameOf(h.element) + ")"
}
