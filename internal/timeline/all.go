package timeline

// AllElement runs a set of children concurrently and joins them.
//
// Each child runs in its own slot: a one-child parent attached under the
// AllElement's handle that reports back when its child finishes. The
// AllElement waits self-scheduled and is re-entered through Run once the
// last slot has reported. The result is the AND of all child results; a
// hard-stopped child counts as false.
//
// Children may be added while the element is running.
type AllElement struct {
	ParentBase
	pending []Element
	slots   []*Handle
	started bool
	result  bool
	tl      *Timeline
}

// All runs children concurrently.
func All(children ...Element) *AllElement {
	e := &AllElement{pending: children, result: true}
	e.kind = "all"
	return e
}

// Add adds a child. Before the element starts the child is queued; while it
// runs, the child starts immediately. A child added after a soft stop starts
// already soft stopped.
func (e *AllElement) Add(child Element) {
	if child == nil {
		violation(ErrCodeInvalidChild, e, "nil child")
	}
	if e.tornDown {
		violation(ErrCodeTornDown, e, "cannot add a child to a finished all")
	}
	if !e.started {
		e.pending = append(e.pending, child)
		return
	}
	e.startSlot(e.tl, child)
}

// Running returns the number of children that have not yet finished.
func (e *AllElement) Running() int { return len(e.slots) }

func (e *AllElement) Run(t *Timeline) Outcome {
	if !e.started {
		e.started = true
		e.tl = t

		pending := e.pending
		e.pending = nil
		for _, child := range pending {
			e.startSlot(t, child)
		}
	}

	if len(e.slots) > 0 {
		return SuspendSelfScheduled()
	}
	return Finished(e.result)
}

func (e *AllElement) startSlot(t *Timeline, child Element) {
	slot := &allSlot{owner: e, childElement: child}
	slot.kind = "all_slot"
	slot.name = nameOf(e) + "/slot"

	h := t.attach(slot, e.handle)
	e.slots = append(e.slots, h)
	if e.stopRequested {
		t.SoftStop(h)
	}
	t.enqueue(h)
}

// slotDone records a finished slot and wakes the element after the last one.
func (e *AllElement) slotDone(t *Timeline, h *Handle, result bool) {
	for i, s := range e.slots {
		if s == h {
			e.slots = append(e.slots[:i], e.slots[i+1:]...)
			break
		}
	}
	if !result {
		e.result = false
	}
	if len(e.slots) == 0 && e.handle != nil {
		t.enqueue(e.handle)
	}
}

// OnSoftStop forwards the request to every running child. The request is
// accepted only if every child accepts it.
func (e *AllElement) OnSoftStop(t *Timeline) bool {
	accepted := true
	for _, h := range append([]*Handle(nil), e.slots...) {
		if !t.SoftStop(h) {
			accepted = false
		}
	}
	return accepted
}

// OnHardStop hard stops every running child.
func (e *AllElement) OnHardStop(t *Timeline) {
	slots := e.slots
	e.slots = nil
	for _, h := range slots {
		if s, ok := h.element.(*allSlot); ok {
			s.owner = nil
		}
		t.HardStop(h)
	}
}

func (e *AllElement) OnTeardown() {
	e.pending = nil
	e.slots = nil
	e.tl = nil
}

// allSlot runs one child of an AllElement.
type allSlot struct {
	ParentBase
	owner        *AllElement
	childElement Element
}

func (s *allSlot) Run(t *Timeline) Outcome {
	child := s.childElement
	s.childElement = nil
	return SuspendOnChild(s.passStop(t, s.RunChild(t, child)))
}

func (s *allSlot) Resume(t *Timeline, childResult bool) Outcome {
	if owner := s.owner; owner != nil {
		s.owner = nil
		owner.slotDone(t, s.handle, childResult)
	}
	return Finished(childResult)
}

// OnHardStop reports the slot as failed when it is stopped on its own.
func (s *allSlot) OnHardStop(t *Timeline) {
	if owner := s.owner; owner != nil {
		s.owner = nil
		owner.slotDone(t, s.handle, false)
	}
}

func (s *allSlot) OnTeardown() {
	s.owner = nil
	s.childElement = nil
}
