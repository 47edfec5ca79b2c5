package timeline

// Clock is the monotonic logical clock that stamps handles.
//
// Handle IDs break ties between timers with the same wake time, so the order
// in which handles are created fully determines firing order.
//
// Clock is not safe for concurrent use; the timeline is single-threaded.
type Clock struct {
	seq uint64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a new clock starting at a specific sequence number.
// Used by replay to reproduce the IDs of a recorded run.
func NewClockAt(start uint64) *Clock {
	return &Clock{seq: start}
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() uint64 {
	c.seq++
	return c.seq
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() uint64 {
	return c.seq
}
