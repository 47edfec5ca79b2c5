package timeline

import "time"

// FunctionElement calls a function once when entered.
type FunctionElement struct {
	Base
	fn func() bool
}

// Function runs fn once. The element succeeds unless fn returns false.
func Function(fn func() bool) *FunctionElement {
	e := &FunctionElement{fn: fn}
	e.kind = "function"
	return e
}

// Do runs fn once. The element always succeeds.
func Do(fn func()) *FunctionElement {
	return Function(func() bool {
		fn()
		return true
	})
}

func (e *FunctionElement) Run(t *Timeline) Outcome {
	if e.fn == nil {
		return Finished(true)
	}
	return Finished(e.fn())
}

func (e *FunctionElement) OnTeardown() {
	e.fn = nil
}

// SleepElement suspends for a fixed delay of virtual time.
type SleepElement struct {
	Base
	delay  time.Duration
	asleep bool
	soft   bool
}

// Sleep waits for d. It succeeds unless a soft stop was requested while it
// was asleep. The request is only observed at the natural wake time.
func Sleep(d time.Duration) *SleepElement {
	e := &SleepElement{delay: d}
	e.kind = "sleep"
	return e
}

// SoftSleep waits for d, but a soft stop wakes it immediately.
func SoftSleep(d time.Duration) *SleepElement {
	e := &SleepElement{delay: d, soft: true}
	e.kind = "soft_sleep"
	return e
}

// Delay returns the configured sleep duration.
func (e *SleepElement) Delay() time.Duration { return e.delay }

func (e *SleepElement) Run(t *Timeline) Outcome {
	if e.asleep {
		e.asleep = false
		return Finished(!e.stopRequested)
	}
	if e.delay <= 0 || (e.soft && e.stopRequested) {
		return Finished(!e.stopRequested)
	}

	e.asleep = true
	t.Sleep(e.handle, e.delay)
	return SuspendSelfScheduled()
}

func (e *SleepElement) OnSoftStop(t *Timeline) bool {
	if e.soft && e.asleep && e.handle != nil {
		t.Wake(e.handle)
	}
	return true
}
