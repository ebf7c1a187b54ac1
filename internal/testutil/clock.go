package testutil

import (
	"sync"
	"time"
)

// DeterministicClock is a settable wall clock for tests. Readings are
// truncated to milliseconds and returned in UTC, matching what storage
// keeps.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu    sync.Mutex
	start time.Time
	now   time.Time
}

// NewDeterministicClock creates a clock stopped at start.
func NewDeterministicClock(start time.Time) *DeterministicClock {
	start = start.UTC().Truncate(time.Millisecond)
	return &DeterministicClock{start: start, now: start}
}

// Now returns the current reading without advancing.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new reading.
func (c *DeterministicClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d).Truncate(time.Millisecond)
	return c.now
}

// Set moves the clock to t.
func (c *DeterministicClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC().Truncate(time.Millisecond)
}

// Reset returns the clock to its start time.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.start
}

// FixedRunID returns the same run id every time. Used where golden output
// must not depend on a generated UUID.
type FixedRunID string

// Generate returns the fixed id, or "test-run" when empty.
func (f FixedRunID) Generate() string {
	if f == "" {
		return "test-run"
	}
	return string(f)
}
