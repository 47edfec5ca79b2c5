package timeline

// RepeatElement re-runs a child for as long as it succeeds.
//
// Each iteration gets a fresh element from the factory, since a finished
// element can never be scheduled again. A soft stop prevents the next
// iteration; the result is then false.
type RepeatElement struct {
	ParentBase
	factory    func() Element
	iterations int
}

// Repeat runs factory() repeatedly until an iteration fails or the element
// is soft stopped. It never reports true.
func Repeat(factory func() Element) *RepeatElement {
	e := &RepeatElement{factory: factory}
	e.kind = "repeat"
	return e
}

// Iterations returns the number of children started so far.
func (e *RepeatElement) Iterations() int { return e.iterations }

func (e *RepeatElement) Run(t *Timeline) Outcome {
	if e.stopRequested {
		return Finished(false)
	}
	return e.again(t)
}

func (e *RepeatElement) Resume(t *Timeline, childResult bool) Outcome {
	if !childResult || e.stopRequested {
		return Finished(false)
	}
	return e.again(t)
}

func (e *RepeatElement) again(t *Timeline) Outcome {
	if e.factory == nil {
		violation(ErrCodeInvalidChild, e, "repeat has no child factory")
	}
	child := e.factory()
	if child == nil {
		violation(ErrCodeInvalidChild, e, "child factory returned nil")
	}

	e.iterations++
	return SuspendOnChild(e.RunChild(t, child))
}

func (e *RepeatElement) OnTeardown() {
	e.factory = nil
}
