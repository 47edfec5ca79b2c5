package timeline

import (
	"container/heap"
	"context"
	"log/slog"
	"time"
)

// DefaultMaxSteps is the default maximum number of Run/Resume steps per tick.
// This prevents a synchronous runaway tree from starving the host.
const DefaultMaxSteps = 100000

// Timeline is the single-threaded scheduler that drives element trees.
//
// The timeline is the only component allowed to call an element's Run,
// Resume and lifecycle hooks, and the only one that allocates and retires
// handles.
//
// Thread-safety model: none. Every method must be called from the goroutine
// that owns the timeline. Element code runs on that goroutine too.
//
// INVARIANTS:
//   - A handle is in the timer heap at most once
//   - An element is attached to at most one handle, ever
//   - A parent's child slot is cleared before its Resume is called
//   - After hard stop returns, no Run/Resume is made on the stopped subtree
type Timeline struct {
	now    time.Duration
	clock  *Clock
	timers timerHeap
	ready  readyQueue
	active []frame

	ticks    []tickCallback
	nextTick TickID

	budget   stepBudget
	logger   *slog.Logger
	debug    bool
	observer Observer
	events   uint64

	simulating bool
	draining   bool
}

// frame is an element currently executing inside Run or Resume.
type frame struct {
	element Element
	handle  *Handle
}

// TickID identifies a registered per-tick callback.
type TickID uint64

type tickCallback struct {
	id TickID
	fn func(t *Timeline)
}

// Option configures a Timeline.
type Option func(*Timeline)

// WithMaxSteps sets the maximum Run/Resume steps per tick.
//
// Default: 100000 steps (DefaultMaxSteps)
// Use WithMaxSteps(0) to disable the budget.
// Use WithMaxSteps(10) for testing budget enforcement.
func WithMaxSteps(maxSteps int) Option {
	return func(t *Timeline) {
		t.budget.limit = maxSteps
	}
}

// WithLogger sets the structured logger. Trace events are logged at Debug.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Timeline) {
		t.logger = logger
	}
}

// WithObserver sets the observer that receives every trace event.
func WithObserver(o Observer) Option {
	return func(t *Timeline) {
		t.observer = o
	}
}

// WithClock sets the logical clock used to stamp handles.
// Used by replay to reproduce handle IDs.
func WithClock(c *Clock) Option {
	return func(t *Timeline) {
		t.clock = c
	}
}

// WithStartTime sets the initial virtual time.
func WithStartTime(start time.Duration) Option {
	return func(t *Timeline) {
		t.now = start
	}
}

// New creates a Timeline at virtual time 0.
func New(opts ...Option) *Timeline {
	t := &Timeline{
		clock:  NewClock(),
		budget: stepBudget{limit: DefaultMaxSteps},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(t)
	}

	t.debug = t.logger.Enabled(context.Background(), slog.LevelDebug)
	return t
}

// Now returns the current virtual time.
func (t *Timeline) Now() time.Duration {
	return t.now
}

// Clock returns the logical clock.
func (t *Timeline) Clock() *Clock {
	return t.clock
}

// Pending returns the number of handles waiting in the timer heap.
func (t *Timeline) Pending() int {
	return t.timers.Len()
}

// NextWake returns the earliest pending wake time.
func (t *Timeline) NextWake() (time.Duration, bool) {
	h, ok := t.timers.peek()
	if !ok {
		return 0, false
	}
	return h.when, true
}

// Idle reports whether there is no queued work and no pending timer.
func (t *Timeline) Idle() bool {
	return t.ready.Len() == 0 && t.timers.Len() == 0
}

// Schedule attaches e to a new root handle that runs at the current time,
// on the next Simulate call.
func (t *Timeline) Schedule(e Element) *Handle {
	return t.ScheduleAt(e, t.now)
}

// ScheduleAt attaches e to a new root handle that runs at when.
// Times in the past are treated as now.
func (t *Timeline) ScheduleAt(e Element, when time.Duration) *Handle {
	h := t.attach(e, nil)
	t.SleepUntil(h, when)
	return h
}

// attach allocates a handle for e.
func (t *Timeline) attach(e Element, parent *Handle) *Handle {
	if e == nil {
		violation(ErrCodeInvalidChild, nil, "cannot schedule a nil element")
	}

	b := e.core()
	if b.tornDown {
		violation(ErrCodeTornDown, e, "cannot schedule an element that was torn down")
	}
	if b.handle != nil || b.status != StatusUnstarted {
		violation(ErrCodeAlreadyAttached, e, "element is already attached to a handle")
	}

	h := &Handle{
		id:      t.clock.Next(),
		t:       t,
		element: e,
		parent:  parent,
		index:   -1,
	}
	b.handle = h
	b.parent = parent

	t.emit(EventScheduled, h, e, false)
	return h
}

// Sleep arranges for h to be re-entered after d.
// Used by self-scheduled elements before returning SuspendSelfScheduled.
func (t *Timeline) Sleep(h *Handle, d time.Duration) {
	t.SleepUntil(h, t.now+d)
}

// SleepUntil arranges for h to be re-entered at when.
// If h is already queued, its wake time is moved.
func (t *Timeline) SleepUntil(h *Handle, when time.Duration) {
	if h == nil || h.element == nil {
		violation(ErrCodeTornDown, nil, "cannot schedule a wake for a torn-down handle")
	}
	if when < t.now {
		when = t.now
	}
	h.when = when
	t.timers.set(h)
}

// Wake moves h's wake time to now. It returns false if h is no longer live
// or is waiting on a child (children, not timers, resume such elements).
func (t *Timeline) Wake(h *Handle) bool {
	if h == nil || h.element == nil || h.stopping {
		return false
	}
	if pc := parentOf(h.element); pc != nil && pc.child != nil {
		return false
	}
	h.when = t.now
	t.timers.set(h)
	return true
}

// enqueue queues an immediate Run of h, ahead of any timer.
// The step executes in the current drain, or in the next one.
func (t *Timeline) enqueue(h *Handle) {
	t.timers.remove(h)
	t.ready.push(step{h: h})
}

// AddTickCallback registers fn to run once per tick, before timers fire.
func (t *Timeline) AddTickCallback(fn func(t *Timeline)) TickID {
	t.nextTick++
	t.ticks = append(t.ticks, tickCallback{id: t.nextTick, fn: fn})
	return t.nextTick
}

// RemoveTickCallback unregisters a per-tick callback.
// Returns false if id was not registered.
func (t *Timeline) RemoveTickCallback(id TickID) bool {
	for i, cb := range t.ticks {
		if cb.id == id {
			t.ticks = append(t.ticks[:i], t.ticks[i+1:]...)
			return true
		}
	}
	return false
}

func (t *Timeline) hasTickCallback(id TickID) bool {
	for _, cb := range t.ticks {
		if cb.id == id {
			return true
		}
	}
	return false
}

// TickCallbacks returns the number of registered per-tick callbacks.
func (t *Timeline) TickCallbacks() int {
	return len(t.ticks)
}

// Simulate runs one tick: per-tick callbacks, then every timer due at or
// before until, in (when, id) order. Virtual time ends at until unless the
// step budget runs out first.
//
// CRITICAL: Must not be called from element code or callbacks.
func (t *Timeline) Simulate(until time.Duration) error {
	if t.simulating || len(t.active) > 0 {
		violation(ErrCodeReentrant, nil, "simulate called from inside the driver loop")
	}
	t.simulating = true
	defer func() { t.simulating = false }()

	t.budget.reset()

	// Callbacks may unregister themselves or others, so iterate a snapshot.
	snapshot := append([]tickCallback(nil), t.ticks...)
	for _, cb := range snapshot {
		if t.hasTickCallback(cb.id) {
			cb.fn(t)
		}
	}

	// Work left over from a previous budget-limited tick or from callbacks.
	if err := t.drain(true); err != nil {
		return err
	}

	for {
		h, ok := t.timers.peek()
		if !ok || h.when > until {
			break
		}
		heap.Pop(&t.timers)
		if h.when > t.now {
			t.now = h.when
		}

		t.ready.push(step{h: h})
		if err := t.drain(true); err != nil {
			return err
		}
	}

	if until > t.now {
		t.now = until
	}
	return nil
}

// RunUntilIdle advances virtual time from timer to timer until nothing is
// pending, limit is reached, or ctx is cancelled.
//
// Budget exhaustion is not an error here: the next iteration continues the
// queued work.
func (t *Timeline) RunUntilIdle(ctx context.Context, limit time.Duration) error {
	t.logger.Debug("timeline running until idle", "now", t.now, "limit", limit)

	for {
		select {
		case <-ctx.Done():
			t.logger.Debug("timeline stopping: context cancelled", "now", t.now)
			return ctx.Err()
		default:
		}

		target := t.now
		if t.ready.Len() == 0 {
			next, ok := t.NextWake()
			if !ok {
				return nil
			}
			if next > limit {
				return t.Simulate(limit)
			}
			target = next
		}

		if err := t.Simulate(target); err != nil && !IsStepsExceededError(err) {
			return err
		}
	}
}

// drain executes queued steps until the queue is empty.
// If bounded, the per-tick step budget applies.
func (t *Timeline) drain(bounded bool) error {
	if t.draining {
		// The outer loop picks up anything queued by this caller.
		return nil
	}
	t.draining = true
	defer func() { t.draining = false }()

	for t.ready.Len() > 0 {
		if bounded && t.budget.exhausted() {
			t.logger.Warn("tick step budget exhausted",
				"at", t.now,
				"steps", t.budget.current,
				"limit", t.budget.limit,
				"queued", t.ready.Len(),
			)
			return &StepsExceededError{At: t.now, Steps: t.budget.current, Limit: t.budget.limit}
		}

		s, _ := t.ready.pop()
		t.budget.take()
		t.execute(s)
	}

	return nil
}

// runNow attaches e as a new root and drives it synchronously, as far as it
// can go at the current time. Work queued by the caller is set aside and
// restored afterwards. Used to run cleanup under hard stop.
func (t *Timeline) runNow(e Element) *Handle {
	h := t.attach(e, nil)

	saved, savedDraining := t.ready, t.draining
	t.ready, t.draining = readyQueue{}, false
	defer func() {
		t.ready, t.draining = saved, savedDraining
	}()

	t.ready.push(step{h: h})
	_ = t.drain(false)
	return h
}

// activeFrame returns the element currently executing, if any.
func (t *Timeline) activeFrame() (frame, bool) {
	if len(t.active) == 0 {
		return frame{}, false
	}
	return t.active[len(t.active)-1], true
}

// execute performs one driver step.
func (t *Timeline) execute(s step) {
	h := s.h
	e := h.element
	if e == nil {
		// Hard stopped while the step was queued.
		return
	}

	out := t.invoke(h, e, s)

	if h.element == nil {
		// Hard stopped from inside its own Run/Resume.
		return
	}
	t.apply(h, e, out)
}

// invoke calls Run or Resume with e pushed on the active stack.
func (t *Timeline) invoke(h *Handle, e Element, s step) Outcome {
	for _, f := range t.active {
		if f.handle == h {
			violation(ErrCodeReentrant, e, "element entered while already executing")
		}
	}

	t.active = append(t.active, frame{element: e, handle: h})
	defer func() { t.active = t.active[:len(t.active)-1] }()

	e.core().status = StatusRunning
	if s.resume {
		t.emit(EventResume, h, e, s.childResult)
		return e.Resume(t, s.childResult)
	}
	t.emit(EventRun, h, e, false)
	return e.Run(t)
}

// apply interprets an Outcome.
func (t *Timeline) apply(h *Handle, e Element, out Outcome) {
	b := e.core()

	switch out.kind {
	case outcomeFinished:
		t.finish(h, e, out.result)

	case outcomeSuspendOnChild:
		pc := parentOf(e)
		if out.child == nil || pc == nil {
			violation(ErrCodeInvalidChild, e, "suspended on a child it did not schedule")
		}
		if out.child.element != nil && pc.child != out.child {
			violation(ErrCodeInvalidChild, e, "suspended on a handle that is not its active child")
		}
		b.status = StatusSuspendedOnChild
		t.emit(EventSuspendChild, h, e, false)
		t.ready.push(step{h: out.child})

	case outcomeSuspendSelfScheduled:
		b.status = StatusSuspendedOnTimer
		t.emit(EventSuspendTimer, h, e, false)

	default:
		violation(ErrCodeInvalidChild, e, "returned an invalid outcome")
	}
}

// finish completes h naturally, tears it down and resumes its parent.
func (t *Timeline) finish(h *Handle, e Element, result bool) {
	e.core().status = StatusDone
	h.done = true
	h.result = result
	t.emit(EventFinished, h, e, result)

	p := h.parent
	t.teardown(h)
	t.notifyParent(h, p, result)
}

// notifyParent queues the parent's Resume if it still owns h as its child.
func (t *Timeline) notifyParent(h, p *Handle, result bool) {
	if p == nil || p.element == nil || p.stopping {
		return
	}
	pc := parentOf(p.element)
	if pc == nil || pc.child != h {
		return
	}
	pc.child = nil
	t.ready.push(step{h: p, resume: true, childResult: result})
}

// teardown releases h's element exactly once.
func (t *Timeline) teardown(h *Handle) {
	e := h.element
	if e == nil {
		return
	}
	b := e.core()
	if b.tornDown {
		return
	}
	b.tornDown = true

	t.timers.remove(h)
	e.OnTeardown()
	if pc := parentOf(e); pc != nil {
		pc.child = nil
	}

	t.emit(EventTeardown, h, e, h.result)

	b.handle = nil
	b.parent = nil
	h.element = nil
	h.parent = nil
}

// SoftStop requests a cooperative stop of h's element.
//
// The request is advisory: the element observes it at its next checkpoint.
// Requesting twice has the same effect as requesting once. Returns whether
// the element accepted the request; false for finished handles and for
// elements that decline (MustRun).
func (t *Timeline) SoftStop(h *Handle) bool {
	if h == nil {
		return false
	}
	e := h.element
	if e == nil || h.stopping {
		return false
	}

	b := e.core()
	if b.status == StatusDone || b.status == StatusHardStopped {
		return false
	}
	if !b.stopRequested {
		b.stopRequested = true
		t.emit(EventSoftStop, h, e, false)
	}
	return e.OnSoftStop(t)
}

// HardStop stops h's element immediately and unconditionally.
//
// The active child (if any) is hard stopped first, then the element's
// OnHardStop hook runs, then the element is torn down. The whole subtree is
// torn down before HardStop returns. If h was the active child of a live
// parent, that parent is resumed with false.
func (t *Timeline) HardStop(h *Handle) {
	if h == nil {
		return
	}
	e := h.element
	if e == nil || h.stopping {
		return
	}
	h.stopping = true
	t.emit(EventHardStop, h, e, false)

	if pc := parentOf(e); pc != nil && pc.child != nil {
		c := pc.child
		pc.child = nil
		if pc.detachOnHardStop {
			t.reroot(c)
		} else {
			t.HardStop(c)
		}
	}

	e.OnHardStop(t)

	e.core().status = StatusHardStopped
	h.done = true
	h.result = false

	p := h.parent
	t.teardown(h)
	t.notifyParent(h, p, false)

	if !t.draining && !t.simulating {
		_ = t.drain(false)
	}
}

// reroot turns a child into a root so that it outlives its parent.
func (t *Timeline) reroot(c *Handle) {
	c.parent = nil
	if c.element != nil {
		c.element.core().parent = nil
		t.logger.Debug("child detached from stopped parent",
			"handle", c.id,
			"element", nameOf(c.element),
		)
	}
}
