package timeline

import "fmt"

// Status is an element's execution status.
type Status int

const (
	StatusUnstarted Status = iota
	StatusRunning
	StatusSuspendedOnChild
	StatusSuspendedOnTimer
	StatusSoftStopRequested
	StatusHardStopped
	StatusDone
)

// String returns the status name used in logs and traces.
func (s Status) String() string {
	switch s {
	case StatusUnstarted:
		return "unstarted"
	case StatusRunning:
		return "running"
	case StatusSuspendedOnChild:
		return "suspended_on_child"
	case StatusSuspendedOnTimer:
		return "suspended_on_timer"
	case StatusSoftStopRequested:
		return "soft_stop_requested"
	case StatusHardStopped:
		return "hard_stopped"
	case StatusDone:
		return "done"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Element is a schedulable unit of work.
//
// Concrete elements embed Base (leaves) or ParentBase (composites) and
// implement Run. Composites also implement Resume. The On* hooks have no-op
// defaults on Base and are overridden where an element needs them.
//
// The timeline is the only caller of Run, Resume and the hooks.
type Element interface {
	// Run enters the element. It is called once when the element is first
	// scheduled, and again each time a self-scheduled element is woken.
	Run(t *Timeline) Outcome

	// Resume is called on a parent whose active child just finished.
	// The child slot is already cleared, so Resume may schedule a new child.
	Resume(t *Timeline, childResult bool) Outcome

	// OnSoftStop reacts to a soft stop request. It returns false when the
	// element declines to be stopped.
	OnSoftStop(t *Timeline) bool

	// OnHardStop runs while the element is being hard stopped, after its
	// active child has been torn down and before its own teardown.
	OnHardStop(t *Timeline)

	// OnTeardown releases element-owned resources. Called exactly once.
	OnTeardown()

	core() *Base
}

// Base carries the engine-owned state of an element.
//
// Embed Base in leaf elements. Back-references to handles are plain pointers
// that are cleared at teardown and never dereferenced afterwards.
type Base struct {
	kind   string
	name   string
	handle *Handle // Owning handle; nil when detached
	parent *Handle // Parent's handle; nil for roots

	status        Status
	stopRequested bool
	tornDown      bool
}

func (b *Base) core() *Base { return b }

// Resume is not valid on elements that never schedule children.
func (b *Base) Resume(t *Timeline, childResult bool) Outcome {
	violation(ErrCodeInvalidChild, nil, "resume called on %s, which has no children", b.Name())
	return Outcome{}
}

// OnSoftStop accepts the request. The flag is already set by the timeline.
func (b *Base) OnSoftStop(t *Timeline) bool { return true }

// OnHardStop does nothing by default.
func (b *Base) OnHardStop(t *Timeline) {}

// OnTeardown does nothing by default.
func (b *Base) OnTeardown() {}

// Handle returns the owning handle, or nil when the element is not attached.
func (b *Base) Handle() *Handle { return b.handle }

// Attached reports whether the element currently has a live handle.
func (b *Base) Attached() bool { return b.handle != nil }

// Status returns the current execution status.
// A pending soft stop is reported while the element is live.
func (b *Base) Status() Status {
	if b.stopRequested && b.handle != nil && b.status != StatusDone && b.status != StatusHardStopped {
		return StatusSoftStopRequested
	}
	return b.status
}

// SoftStopRequested reports whether a soft stop has been requested.
func (b *Base) SoftStopRequested() bool { return b.stopRequested }

// TornDown reports whether teardown has run.
func (b *Base) TornDown() bool { return b.tornDown }

// Name returns the element's name, falling back to its kind.
func (b *Base) Name() string {
	if b.name != "" {
		return b.name
	}
	if b.kind != "" {
		return b.kind
	}
	return "element"
}

// Kind returns the element kind (e.g. "sequence", "sleep").
func (b *Base) Kind() string { return b.kind }

// SetName names the element for traces and logs.
func (b *Base) SetName(name string) { b.name = name }

// SetKind sets the element kind. Constructors in this package set it;
// custom elements call it once before scheduling.
func (b *Base) SetKind(kind string) { b.kind = kind }

// Named sets the name of e and returns it.
func Named[E Element](name string, e E) E {
	e.core().name = name
	return e
}

// HandleOf returns the handle that currently owns e, or nil when e is not
// attached (not yet scheduled, or already torn down).
func HandleOf(e Element) *Handle {
	if e == nil {
		return nil
	}
	return e.core().handle
}

func nameOf(e Element) string {
	return e.core().Name()
}

type outcomeKind int

const (
	outcomeFinished outcomeKind = iota + 1
	outcomeSuspendOnChild
	outcomeSuspendSelfScheduled
)

// Outcome is what Run and Resume return to the driver.
type Outcome struct {
	kind   outcomeKind
	result bool
	child  *Handle
}

// Finished completes the element with the given result.
func Finished(result bool) Outcome {
	return Outcome{kind: outcomeFinished, result: result}
}

// SuspendOnChild suspends the element until child finishes.
// child must be the handle just returned by RunChild.
func SuspendOnChild(child *Handle) Outcome {
	return Outcome{kind: outcomeSuspendOnChild, child: child}
}

// SuspendSelfScheduled suspends the element until it is woken by a timer
// (Timeline.Sleep) or an explicit Timeline.Wake. The element is re-entered
// through Run.
func SuspendSelfScheduled() Outcome {
	return Outcome{kind: outcomeSuspendSelfScheduled}
}

// String formats the outcome for logs.
func (o Outcome) String() string {
	switch o.kind {
	case outcomeFinished:
		return fmt.Sprintf("finished(%t)", o.result)
	case outcomeSuspendOnChild:
		return "suspend_on_child"
	case outcomeSuspendSelfScheduled:
		return "suspend_self_scheduled"
	default:
		return "invalid"
	}
}
