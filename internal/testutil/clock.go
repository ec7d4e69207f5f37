package testutil

import (
	"sync"
	"time"
)

// DefaultEpoch is the first instant a StepClock returns.
var DefaultEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// StepClock is a thread-safe deterministic clock for tests.
//
// Each call to Now advances the clock by a fixed step, so consecutive
// timestamps are distinct and ordered. It can be reset for test reuse.
type StepClock struct {
	mu    sync.Mutex
	start time.Time
	step  time.Duration
	next  time.Time
}

// NewStepClock creates a clock starting at start. A zero start means
// DefaultEpoch; a zero step means one second.
func NewStepClock(start time.Time, step time.Duration) *StepClock {
	if start.IsZero() {
		start = DefaultEpoch
	}
	if step == 0 {
		step = time.Second
	}
	return &StepClock{start: start, step: step, next: start}
}

// Now returns the current instant and advances the clock by one step.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.next
	c.next = c.next.Add(c.step)
	return t
}

// Peek returns the instant the next call to Now will return.
func (c *StepClock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next
}

// Advance moves the clock forward by d without consuming a step.
func (c *StepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = c.next.Add(d)
}

// Reset rewinds the clock to its start.
func (c *StepClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = c.start
}
