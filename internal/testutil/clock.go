package testutil

import (
	"sync"
	"time"
)

// Epoch is the wall-clock start used by deterministic test runs.
var Epoch = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

// SteppingClock is a deterministic wall clock for tests.
//
// Every call to Now returns the current instant and then advances it by a
// fixed step, so a run that reads the clock the same number of times
// produces identical timestamps. Pass clock.Now to trace.WithNow.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SteppingClock struct {
	mu    sync.Mutex
	start time.Time
	step  time.Duration
	now   time.Time
}

// NewSteppingClock creates a clock starting at start that advances by step
// on every read. A zero step freezes the clock.
func NewSteppingClock(start time.Time, step time.Duration) *SteppingClock {
	return &SteppingClock{start: start, step: step, now: start}
}

// Now returns the current instant and advances the clock.
func (c *SteppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// Current returns the instant the next Now call will return.
func (c *SteppingClock) Current() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Reset rewinds the clock to its start.
//
// Used for test reuse. After Reset(), the next call to Now() returns start.
func (c *SteppingClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.start
}
