package timeline

import "container/heap"

// timerHeap is a min-heap of scheduled handles ordered by (when, id).
//
// Each handle tracks its own index so that hard stop and reschedule can
// remove or fix an entry in O(log n). An index of -1 means "not queued".
type timerHeap []*Handle

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].when != h[j].when {
		return h[i].when < h[j].when
	}
	return h[i].id < h[j].id
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	hd := x.(*Handle)
	hd.index = len(*h)
	*h = append(*h, hd)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	hd := old[n-1]
	old[n-1] = nil // Release the slot so the handle can be collected
	hd.index = -1
	*h = old[:n-1]
	return hd
}

// peek returns the earliest handle without removing it.
func (h timerHeap) peek() (*Handle, bool) {
	if len(h) == 0 {
		return nil, false
	}
	return h[0], true
}

// set inserts hd, or moves it if it is already queued.
func (h *timerHeap) set(hd *Handle) {
	if hd.index >= 0 {
		heap.Fix(h, hd.index)
		return
	}
	heap.Push(h, hd)
}

// remove drops hd from the heap if it is queued.
func (h *timerHeap) remove(hd *Handle) {
	if hd.index < 0 {
		return
	}
	heap.Remove(h, hd.index)
}

// step is one unit of driver work: enter a handle, or resume it with the
// result of the child that just finished.
type step struct {
	h           *Handle
	resume      bool
	childResult bool
}

// readyQueue is the FIFO of pending driver steps.
//
// Completion never recurses: a finishing child enqueues its parent's resume
// here and the driver loop picks it up. The queue is unbounded so that long
// synchronous chains never block.
type readyQueue struct {
	steps []step
}

// push adds a step to the back of the queue.
func (q *readyQueue) push(s step) {
	q.steps = append(q.steps, s)
}

// pop removes and returns the front step.
// Returns (step{}, false) if the queue is empty.
func (q *readyQueue) pop() (step, bool) {
	if len(q.steps) == 0 {
		return step{}, false
	}

	s := q.steps[0]

	// Nil out the slot so the handle pointer does not outlive the step.
	q.steps[0] = step{}

	if len(q.steps) == 1 {
		q.steps = q.steps[:0]
	} else {
		q.steps = q.steps[1:]
	}

	return s, true
}

// Len returns the current queue length.
func (q *readyQueue) Len() int {
	return len(q.steps)
}
