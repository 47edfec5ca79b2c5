package timeline

// SequenceElement runs a fixed list of items in order.
//
// Once an item fails, or a soft stop is requested, the remaining items are
// skipped except those wrapped in MustRun. The result is the AND of every
// item that actually ran.
type SequenceElement struct {
	ParentBase
	items  []Element
	next   int
	failed bool
	result bool
}

// Sequence runs items one after another.
func Sequence(items ...Element) *SequenceElement {
	e := &SequenceElement{items: items, result: true}
	e.kind = "sequence"
	return e
}

// Len returns the number of items.
func (e *SequenceElement) Len() int { return len(e.items) }

func (e *SequenceElement) Run(t *Timeline) Outcome {
	return e.advance(t)
}

func (e *SequenceElement) Resume(t *Timeline, childResult bool) Outcome {
	if !childResult {
		e.failed = true
		e.result = false
	}
	return e.advance(t)
}

func (e *SequenceElement) advance(t *Timeline) Outcome {
	for e.next < len(e.items) {
		item := e.items[e.next]
		e.items[e.next] = nil
		e.next++

		if (e.failed || e.stopRequested) && !isMustRun(item) {
			continue
		}
		return SuspendOnChild(e.RunChild(t, item))
	}
	return Finished(e.result)
}

func (e *SequenceElement) OnTeardown() {
	e.items = nil
}

func isMustRun(e Element) bool {
	_, ok := e.(*MustRunElement)
	return ok
}

// MustRunElement marks a child that a Sequence never skips.
// It declines soft stop requests and does not forward them.
type MustRunElement struct {
	ParentBase
	childElement Element
}

// MustRun wraps child so that it runs even after the enclosing Sequence
// failed or was soft stopped.
func MustRun(child Element) *MustRunElement {
	e := &MustRunElement{childElement: child}
	e.kind = "must_run"
	return e
}

func (e *MustRunElement) Run(t *Timeline) Outcome {
	child := e.childElement
	e.childElement = nil
	return SuspendOnChild(e.RunChild(t, child))
}

func (e *MustRunElement) Resume(t *Timeline, childResult bool) Outcome {
	return Finished(childResult)
}

func (e *MustRunElement) OnSoftStop(t *Timeline) bool {
	return false
}

func (e *MustRunElement) OnTeardown() {
	e.childElement = nil
}
