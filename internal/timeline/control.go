package timeline

import "time"

// ConditionalElement evaluates a test once and runs one of two branches.
type ConditionalElement struct {
	ParentBase
	test    func() bool
	ifTrue  Element
	ifFalse Element
	taken   *bool
}

// Conditional runs ifTrue when test() holds and ifFalse otherwise. A nil
// branch succeeds without running anything.
func Conditional(test func() bool, ifTrue, ifFalse Element) *ConditionalElement {
	e := &ConditionalElement{test: test, ifTrue: ifTrue, ifFalse: ifFalse}
	e.kind = "conditional"
	return e
}

// Taken reports which branch was chosen, once the test has been evaluated.
func (e *ConditionalElement) Taken() (branch bool, evaluated bool) {
	if e.taken == nil {
		return false, false
	}
	return *e.taken, true
}

func (e *ConditionalElement) Run(t *Timeline) Outcome {
	ok := e.test == nil || e.test()
	e.taken = &ok

	branch := e.ifFalse
	if ok {
		branch = e.ifTrue
	}
	e.ifTrue, e.ifFalse = nil, nil

	if branch == nil {
		return Finished(true)
	}
	return SuspendOnChild(e.passStop(t, e.RunChild(t, branch)))
}

func (e *ConditionalElement) Resume(t *Timeline, childResult bool) Outcome {
	return Finished(childResult)
}

func (e *ConditionalElement) OnTeardown() {
	e.test = nil
	e.ifTrue, e.ifFalse = nil, nil
}

type criticalPhase int

const (
	criticalIdle criticalPhase = iota
	criticalWork
	criticalCleanup
	criticalDone
)

// CriticalSectionElement runs work, then always runs cleanup.
//
// Cleanup runs after work finishes, fails, is soft stopped, or is hard
// stopped. A hard stop during work runs cleanup synchronously before the
// section is torn down. A hard stop during cleanup lets cleanup run on as a
// root. Soft stop requests reach work only.
type CriticalSectionElement struct {
	ParentBase
	work       Element
	cleanup    Element
	phase      criticalPhase
	workResult bool
}

// CriticalSection runs work followed by cleanup. The result is the AND of
// both, or cleanup's result alone when work is nil.
func CriticalSection(work, cleanup Element) *CriticalSectionElement {
	e := &CriticalSectionElement{work: work, cleanup: cleanup, workResult: true}
	e.kind = "critical_section"
	return e
}

func (e *CriticalSectionElement) Run(t *Timeline) Outcome {
	if e.work == nil {
		return e.runCleanup(t)
	}
	work := e.work
	e.work = nil
	e.phase = criticalWork
	return SuspendOnChild(e.passStop(t, e.RunChild(t, work)))
}

func (e *CriticalSectionElement) Resume(t *Timeline, childResult bool) Outcome {
	switch e.phase {
	case criticalWork:
		e.workResult = childResult
		return e.runCleanup(t)
	default:
		e.phase = criticalDone
		return Finished(e.workResult && childResult)
	}
}

func (e *CriticalSectionElement) runCleanup(t *Timeline) Outcome {
	cleanup := e.cleanup
	e.cleanup = nil
	if cleanup == nil {
		e.phase = criticalDone
		return Finished(e.workResult)
	}
	e.phase = criticalCleanup
	e.DetachChildOnHardStop()
	return SuspendOnChild(e.RunChild(t, cleanup))
}

func (e *CriticalSectionElement) OnSoftStop(t *Timeline) bool {
	if e.phase == criticalWork {
		return e.ParentBase.OnSoftStop(t)
	}
	return true
}

func (e *CriticalSectionElement) OnHardStop(t *Timeline) {
	if e.phase == criticalCleanup || e.phase == criticalDone {
		return
	}
	cleanup := e.cleanup
	e.cleanup = nil
	e.work = nil
	e.phase = criticalDone
	if cleanup != nil {
		t.runNow(cleanup)
	}
}

func (e *CriticalSectionElement) OnTeardown() {
	e.work = nil
	e.cleanup = nil
}

// WithFinallyElement runs a child and calls a function exactly once when the
// child completes or the element is hard stopped.
type WithFinallyElement struct {
	ParentBase
	childElement Element
	finally      func()
}

// WithFinally runs child and then fn. fn also runs under hard stop.
func WithFinally(child Element, fn func()) *WithFinallyElement {
	e := &WithFinallyElement{childElement: child, finally: fn}
	e.kind = "with_finally"
	return e
}

func (e *WithFinallyElement) Run(t *Timeline) Outcome {
	child := e.childElement
	e.childElement = nil
	return SuspendOnChild(e.passStop(t, e.RunChild(t, child)))
}

func (e *WithFinallyElement) Resume(t *Timeline, childResult bool) Outcome {
	e.fire()
	return Finished(childResult)
}

func (e *WithFinallyElement) OnHardStop(t *Timeline) {
	e.fire()
}

func (e *WithFinallyElement) fire() {
	if fn := e.finally; fn != nil {
		e.finally = nil
		fn()
	}
}

func (e *WithFinallyElement) OnTeardown() {
	e.childElement = nil
	e.finally = nil
}

// RememberSoftStopElement latches a soft stop request and reports false once
// latched, whatever its child returns.
type RememberSoftStopElement struct {
	ParentBase
	childElement Element
}

// RememberSoftStop runs child and reports false if a soft stop was ever
// requested.
func RememberSoftStop(child Element) *RememberSoftStopElement {
	e := &RememberSoftStopElement{childElement: child}
	e.kind = "remember_soft_stop"
	return e
}

func (e *RememberSoftStopElement) Run(t *Timeline) Outcome {
	child := e.childElement
	e.childElement = nil
	return SuspendOnChild(e.passStop(t, e.RunChild(t, child)))
}

func (e *RememberSoftStopElement) Resume(t *Timeline, childResult bool) Outcome {
	if e.stopRequested {
		return Finished(false)
	}
	return Finished(childResult)
}

func (e *RememberSoftStopElement) OnTeardown() {
	e.childElement = nil
}

// MinimumTimeElement pads a child so that the element takes at least floor.
type MinimumTimeElement struct {
	ParentBase
	childElement Element
	floor        time.Duration
	start        time.Duration
	padding      bool
	childResult  bool
}

// MinimumTime runs child and, if it finished before floor elapsed, sleeps the
// remainder. A soft stop cuts the padding short. The result is the child's.
func MinimumTime(child Element, floor time.Duration) *MinimumTimeElement {
	e := &MinimumTimeElement{childElement: child, floor: floor}
	e.kind = "minimum_time"
	return e
}

func (e *MinimumTimeElement) Run(t *Timeline) Outcome {
	e.start = t.Now()
	child := e.childElement
	e.childElement = nil
	return SuspendOnChild(e.passStop(t, e.RunChild(t, child)))
}

func (e *MinimumTimeElement) Resume(t *Timeline, childResult bool) Outcome {
	if e.padding {
		return Finished(e.childResult)
	}

	e.childResult = childResult
	elapsed := t.Now() - e.start
	if elapsed >= e.floor || e.stopRequested {
		return Finished(childResult)
	}

	e.padding = true
	pad := SoftSleep(e.floor - elapsed)
	pad.name = nameOf(e) + "/pad"
	return SuspendOnChild(e.RunChild(t, pad))
}

func (e *MinimumTimeElement) OnTeardown() {
	e.childElement = nil
}
