// Package clock provides injectable time sources for the sequencer core.
package clock

import (
	"sync"
	"time"
)

// Clock supplies the current time to components that must stay testable.
type Clock interface {
	Now() time.Time
}

// System reads the operating system clock.
type System struct{}

// Now returns the current wall-clock time with monotonic reading attached.
func (System) Now() time.Time {
	return time.Now()
}

// Virtual is an in-memory clock advanced manually by tests and simulations.
type Virtual struct {
	mu      sync.Mutex
	current time.Time
}

// NewVirtual initialises a virtual clock starting at the provided timestamp.
func NewVirtual(start time.Time) *Virtual {
	if start.IsZero() {
		start = time.Unix(0, 0)
	}
	return &Virtual{current: start}
}

// Now returns the current simulated time.
func (c *Virtual) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Advance moves the clock forward by the specified duration.
func (c *Virtual) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	c.current = c.current.Add(d)
	c.mu.Unlock()
}

// AdvanceTo moves the clock to the supplied timestamp if it is in the future.
func (c *Virtual) AdvanceTo(ts time.Time) {
	c.mu.Lock()
	if ts.After(c.current) {
		c.current = ts
	}
	c.mu.Unlock()
}
