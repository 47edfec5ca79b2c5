package timeline

import "time"

// busyWaitFiller is the filler sleep run while polling. It is long enough to
// never wake on its own in practice.
const busyWaitFiller = 1000 * 24 * time.Hour

// BusyWaitElement polls a predicate once per tick.
//
// While waiting it runs a long SoftSleep as its child and registers a
// per-tick callback. The callback soft stops the filler as soon as the
// predicate holds. The callback is removed when the filler returns, and at
// the latest at teardown.
type BusyWaitElement struct {
	ParentBase
	pred     func() bool
	tl       *Timeline
	tick     TickID
	polling  bool
	observed bool
}

// BusyWait succeeds once pred() is observed true.
func BusyWait(pred func() bool) *BusyWaitElement {
	e := &BusyWaitElement{pred: pred}
	e.kind = "busy_wait"
	return e
}

func (e *BusyWaitElement) Run(t *Timeline) Outcome {
	if e.pred == nil || e.pred() {
		e.observed = true
		return Finished(true)
	}
	if e.stopRequested {
		return Finished(false)
	}

	e.tl = t
	e.tick = t.AddTickCallback(e.poll)
	e.polling = true

	filler := SoftSleep(busyWaitFiller)
	filler.name = nameOf(e) + "/filler"
	return SuspendOnChild(e.RunChild(t, filler))
}

func (e *BusyWaitElement) poll(t *Timeline) {
	if e.observed || e.pred == nil || !e.pred() {
		return
	}
	e.observed = true
	e.stopPolling()
	if c := e.child; c != nil {
		t.SoftStop(c)
	}
}

func (e *BusyWaitElement) stopPolling() {
	if e.polling && e.tl != nil {
		e.tl.RemoveTickCallback(e.tick)
	}
	e.polling = false
}

func (e *BusyWaitElement) Resume(t *Timeline, childResult bool) Outcome {
	e.stopPolling()
	return Finished(e.observed || (e.pred != nil && e.pred()))
}

func (e *BusyWaitElement) OnTeardown() {
	e.stopPolling()
	e.pred = nil
	e.tl = nil
}
