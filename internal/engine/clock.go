package engine

import "sync/atomic"

// Clock is the monotonic logical clock of a run.
//
// The dispatcher advances it by exactly 1 per executed K or Q statement.
// It is never driven by wall-clock time and never reset mid-run, so the
// final tick is a pure function of the program.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
// However, a run's single logical thread means only the dispatcher calls
// Next().
type Clock struct {
	tick atomic.Uint64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next increments the clock and returns the new tick.
func (c *Clock) Next() uint64 {
	return c.tick.Add(1)
}

// Current returns the current tick without incrementing.
func (c *Clock) Current() uint64 {
	return c.tick.Load()
}
