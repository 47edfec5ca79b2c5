package timeline

// ParentBase is embedded by elements that run children.
//
// A parent owns at most one active child handle. The slot is set by RunChild
// while the parent is the timeline's active frame, and cleared either just
// before Resume is called or when the parent is hard stopped (after the child
// itself has been hard stopped).
type ParentBase struct {
	Base
	child *Handle

	// detachOnHardStop lets the active child outlive a hard stop of this
	// parent. Used for cleanup sections that must run to completion.
	detachOnHardStop bool
}

func (p *ParentBase) parentCore() *ParentBase { return p }

// parent is implemented by every element that embeds ParentBase.
type parent interface {
	Element
	parentCore() *ParentBase
}

func parentOf(e Element) *ParentBase {
	if p, ok := e.(parent); ok {
		return p.parentCore()
	}
	return nil
}

// RunChild schedules child as this element's active child and returns its
// handle. It is only valid from inside this element's own Run or Resume.
//
// The usual pattern is:
//
//	return timeline.SuspendOnChild(p.RunChild(t, child))
func (p *ParentBase) RunChild(t *Timeline, child Element) *Handle {
	top, ok := t.activeFrame()
	if !ok || top.element.core() != &p.Base {
		violation(ErrCodeNotActiveFrame, nil, "%s scheduled a child while not executing", p.Name())
	}
	if child == nil {
		violation(ErrCodeInvalidChild, top.element, "nil child")
	}
	if p.child != nil {
		violation(ErrCodeInvalidChild, top.element, "already has an active child %s", p.child)
	}

	h := t.attach(child, top.handle)
	p.child = h
	return h
}

// passStop soft stops h when this element was soft stopped before it started
// h. A request that arrives while no child runs would otherwise be lost.
func (p *ParentBase) passStop(t *Timeline, h *Handle) *Handle {
	if p.stopRequested {
		t.SoftStop(h)
	}
	return h
}

// ActiveChild returns the active child handle, or nil.
func (p *ParentBase) ActiveChild() *Handle { return p.child }

// DetachChildOnHardStop marks the current child as one that survives a hard
// stop of this parent: it is re-rooted on the timeline instead of stopped.
func (p *ParentBase) DetachChildOnHardStop() { p.detachOnHardStop = true }

// OnSoftStop forwards the request to the active child.
// A parent with no child accepts the request.
func (p *ParentBase) OnSoftStop(t *Timeline) bool {
	if p.child == nil {
		return true
	}
	return t.SoftStop(p.child)
}

// RunChildElement runs exactly one child and reports its result.
type RunChildElement struct {
	ParentBase
	childElement Element
}

// RunChild wraps child in a RunChildElement.
func RunChild(child Element) *RunChildElement {
	e := &RunChildElement{childElement: child}
	e.kind = "run_child"
	return e
}

func (e *RunChildElement) Run(t *Timeline) Outcome {
	return SuspendOnChild(e.passStop(t, e.RunChild(t, e.childElement)))
}

func (e *RunChildElement) Resume(t *Timeline, childResult bool) Outcome {
	return Finished(childResult)
}

func (e *RunChildElement) OnTeardown() {
	e.childElement = nil
}
