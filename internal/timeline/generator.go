package timeline

// Step is what a Stepper produces next: a child to run, or a final result.
type Step struct {
	element Element
	done    bool
	result  bool
}

// Yield runs e as the generator's next child.
func Yield(e Element) Step {
	return Step{element: e}
}

// Return ends the generator with result.
func Return(result bool) Step {
	return Step{done: true, result: result}
}

// Done ends the generator successfully.
func Done() Step {
	return Return(true)
}

// Stepper is a resumable producer of child elements.
//
// Advance is called once when the generator starts, with last set to true,
// and again after each yielded child finishes, with that child's result. It
// returns the next child to run or the generator's final result.
type Stepper interface {
	Advance(t *Timeline, last bool) Step
}

// GeneratorFunc adapts a function to the Stepper interface.
type GeneratorFunc func(t *Timeline, last bool) Step

// Advance implements Stepper.
func (f GeneratorFunc) Advance(t *Timeline, last bool) Step { return f(t, last) }

// StepperBase can be embedded by stateful steppers. The generator fills it
// in before the first Advance call.
type StepperBase struct {
	gen   *GeneratorElement
	count int
}

func (s *StepperBase) stepperCore() *StepperBase { return s }

// StopRequested reports whether the generator has been asked to soft stop.
// Steppers check it between children.
func (s *StepperBase) StopRequested() bool {
	return s.gen != nil && s.gen.stopRequested
}

// Yielded returns the number of children produced so far.
func (s *StepperBase) Yielded() int { return s.count }

type embeddedStepper interface {
	stepperCore() *StepperBase
}

// softStopper is implemented by steppers that react to soft stop requests.
type softStopper interface {
	OnSoftStop(t *Timeline) bool
}

// GeneratorElement drives a Stepper, running each yielded element as its
// child and feeding the child's result back in.
type GeneratorElement struct {
	ParentBase
	stepper Stepper
	base    *StepperBase
}

// Generator drives s. The result is s's final result, or true if it ends
// with Done.
func Generator(s Stepper) *GeneratorElement {
	e := &GeneratorElement{stepper: s}
	e.kind = "generator"
	if es, ok := s.(embeddedStepper); ok {
		e.base = es.stepperCore()
		e.base.gen = e
	}
	return e
}

func (e *GeneratorElement) Run(t *Timeline) Outcome {
	return e.advance(t, true)
}

func (e *GeneratorElement) Resume(t *Timeline, childResult bool) Outcome {
	return e.advance(t, childResult)
}

func (e *GeneratorElement) advance(t *Timeline, last bool) Outcome {
	if e.stepper == nil {
		return Finished(true)
	}

	next := e.stepper.Advance(t, last)
	if next.done {
		return Finished(next.result)
	}
	if next.element == nil {
		violation(ErrCodeInvalidChild, e, "generator yielded a nil element")
	}

	if e.base != nil {
		e.base.count++
	}
	return SuspendOnChild(e.RunChild(t, next.element))
}

// OnSoftStop forwards the request to the running child and to the stepper,
// if it has a hook for it.
func (e *GeneratorElement) OnSoftStop(t *Timeline) bool {
	accepted := e.ParentBase.OnSoftStop(t)
	if ss, ok := e.stepper.(softStopper); ok {
		if !ss.OnSoftStop(t) {
			accepted = false
		}
	}
	return accepted
}

func (e *GeneratorElement) OnTeardown() {
	if e.base != nil {
		e.base.gen = nil
		e.base = nil
	}
	e.stepper = nil
}

// Elements returns a stepper that yields elems in order and stops at the
// first failure or soft stop. The result is false if any child failed.
func Elements(elems ...Element) Stepper {
	return &sliceStepper{elems: elems}
}

type sliceStepper struct {
	StepperBase
	elems []Element
	next  int
}

func (s *sliceStepper) Advance(t *Timeline, last bool) Step {
	if !last || s.StopRequested() {
		return Return(false)
	}
	if s.next >= len(s.elems) {
		return Done()
	}
	e := s.elems[s.next]
	s.elems[s.next] = nil
	s.next++
	return Yield(e)
}
