package timeline

// CallbackHooks are the optional hooks of a CallbackElement.
// Each fires at most once.
type CallbackHooks struct {
	// OnComplete fires when the child finishes naturally.
	OnComplete func(result bool)

	// OnHardStop fires instead of OnComplete when the element is hard stopped.
	OnHardStop func()

	// OnTeardown fires when the element is torn down, on any path.
	OnTeardown func()
}

// CallbackElement runs one child and fires lifecycle hooks around it.
type CallbackElement struct {
	ParentBase
	childElement Element
	hooks        CallbackHooks
}

// Callback runs child with hooks attached.
func Callback(child Element, hooks CallbackHooks) *CallbackElement {
	e := &CallbackElement{childElement: child, hooks: hooks}
	e.kind = "callback"
	return e
}

func (e *CallbackElement) Run(t *Timeline) Outcome {
	child := e.childElement
	e.childElement = nil
	return SuspendOnChild(e.passStop(t, e.RunChild(t, child)))
}

func (e *CallbackElement) Resume(t *Timeline, childResult bool) Outcome {
	fn := e.hooks.OnComplete
	e.hooks.OnComplete = nil
	e.hooks.OnHardStop = nil
	if fn != nil {
		fn(childResult)
	}
	return Finished(childResult)
}

func (e *CallbackElement) OnHardStop(t *Timeline) {
	fn := e.hooks.OnHardStop
	e.hooks.OnComplete = nil
	e.hooks.OnHardStop = nil
	if fn != nil {
		fn()
	}
}

func (e *CallbackElement) OnTeardown() {
	fn := e.hooks.OnTeardown
	e.hooks = CallbackHooks{}
	e.childElement = nil
	if fn != nil {
		fn()
	}
}

// ResultElement runs one child and records its result for inspection.
type ResultElement struct {
	ParentBase
	childElement Element
	result       bool
	recorded     bool
}

// Result wraps child so that its result can be read after it finishes.
func Result(child Element) *ResultElement {
	e := &ResultElement{childElement: child}
	e.kind = "result"
	return e
}

// Result returns the recorded result and whether the child has finished.
func (e *ResultElement) Result() (result bool, ok bool) {
	return e.result, e.recorded
}

func (e *ResultElement) Run(t *Timeline) Outcome {
	child := e.childElement
	e.childElement = nil
	return SuspendOnChild(e.passStop(t, e.RunChild(t, child)))
}

func (e *ResultElement) Resume(t *Timeline, childResult bool) Outcome {
	e.result = childResult
	e.recorded = true
	return Finished(childResult)
}

func (e *ResultElement) OnTeardown() {
	e.childElement = nil
}

// OverrideResultElement runs one child and reports a fixed result.
type OverrideResultElement struct {
	ParentBase
	childElement Element
	value        bool
}

// OverrideResult runs child and always reports value.
func OverrideResult(child Element, value bool) *OverrideResultElement {
	e := &OverrideResultElement{childElement: child, value: value}
	e.kind = "override_result"
	return e
}

func (e *OverrideResultElement) Run(t *Timeline) Outcome {
	child := e.childElement
	e.childElement = nil
	return SuspendOnChild(e.passStop(t, e.RunChild(t, child)))
}

func (e *OverrideResultElement) Resume(t *Timeline, childResult bool) Outcome {
	return Finished(e.value)
}

func (e *OverrideResultElement) OnTeardown() {
	e.childElement = nil
}
