package timeline

// stepBudget counts Run/Resume steps within one tick and enforces the
// configured maximum.
//
// It guards against synchronous runaway trees, e.g. a Repeat whose child
// always finishes immediately: without a budget such a tree would never
// return control to the host.
//
// A limit of 0 disables the budget.
type stepBudget struct {
	limit   int
	current int
}

// reset starts a new tick.
func (b *stepBudget) reset() {
	b.current = 0
}

// exhausted reports whether another step would exceed the limit.
func (b *stepBudget) exhausted() bool {
	return b.limit > 0 && b.current >= b.limit
}

// take records one step.
func (b *stepBudget) take() {
	b.current++
}
