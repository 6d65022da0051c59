package core

import (
	"sync"
	"sync/atomic"
	"time"
)

// Clock provides monotonic app time with pause duration tracking.
// App time starts at zero and excludes paused episodes, so timers keyed
// to it hold still while the runtime is paused and pick up where they
// left off on resume.
type Clock struct {
	mu sync.RWMutex

	start time.Time // Real time at construction

	// Pause state
	isPaused    atomic.Bool
	pauseStart  time.Time     // When current pause started (real time)
	totalPaused time.Duration // Cumulative pause duration
}

// NewClock creates a clock with app time zero at the call
func NewClock() *Clock {
	return &Clock{start: time.Now()}
}

// Now returns current app time (excludes paused episodes)
func (c *Clock) Now() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.isPaused.Load() {
		// During pause: frozen at the pause point
		return c.pauseStart.Sub(c.start) - c.totalPaused
	}
	return time.Since(c.start) - c.totalPaused
}

// RealNow returns time since construction, unaffected by pause
func (c *Clock) RealNow() time.Duration {
	return time.Since(c.start)
}

// Pause stops app time advancement
func (c *Clock) Pause() {
	if c.isPaused.CompareAndSwap(false, true) {
		c.mu.Lock()
		c.pauseStart = time.Now()
		c.mu.Unlock()
	}
}

// Resume continues app time advancement
func (c *Clock) Resume() {
	if c.isPaused.CompareAndSwap(true, false) {
		c.mu.Lock()
		if !c.pauseStart.IsZero() {
			c.totalPaused += time.Since(c.pauseStart)
			c.pauseStart = time.Time{}
		}
		c.mu.Unlock()
	}
}

// IsPaused returns current pause state
func (c *Clock) IsPaused() bool {
	return c.isPaused.Load()
}

// TotalPaused returns cumulative pause time including any current pause
func (c *Clock) TotalPaused() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := c.totalPaused
	if c.isPaused.Load() && !c.pauseStart.IsZero() {
		total += time.Since(c.pauseStart)
	}
	return total
}
