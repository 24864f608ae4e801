// Package fake provides a virtual clock for tests. Timers fire immediately and
// move the virtual time forward by their duration, so a simulated download
// that would take seconds completes in microseconds while the elapsed virtual
// time stays exact.
package fake

import (
	"sync"
	"time"
)

// Clock is a virtual clock. The zero value starts at the Unix epoch.
type Clock struct {
	mu    sync.Mutex
	now   time.Time
	waits []time.Duration
}

// New returns a Clock starting at start.
func New(start time.Time) *Clock {
	return &Clock{now: start.UTC()}
}

// Now returns the virtual time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.now.IsZero() {
		return time.Unix(0, 0).UTC()
	}
	return c.now
}

// After advances the virtual time by d and returns a channel that already
// holds the new time.
func (c *Clock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	if c.now.IsZero() {
		c.now = time.Unix(0, 0).UTC()
	}
	c.now = c.now.Add(d)
	c.waits = append(c.waits, d)
	now := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

// Waits returns every duration passed to After, in call order.
func (c *Clock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.waits))
	copy(out, c.waits)
	return out
}

// Elapsed returns the sum of every duration passed to After.
func (c *Clock) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total time.Duration
	for _, d := range c.waits {
		total += d
	}
	return total
}

// Blocking is a clock whose timers never fire. Steps that wait on it only
// return when their context ends.
type Blocking struct{}

// Now returns the wall time.
func (Blocking) Now() time.Time { return time.Now().UTC() }

// After returns a channel that never receives.
func (Blocking) After(time.Duration) <-chan time.Time { return nil }
