// Package clock provides the time source shared by the render loop and the
// audio player during recording.
package clock

import (
	"sync"
	"time"
)

// Clock is the elapsed-time source for realtime loops. Loops derive their
// position from the tick values they receive, never from a separate Now call.
type Clock interface {
	Now() time.Time
	// Tick delivers ticks every d until stop is called.
	Tick(d time.Duration) (ticks <-chan time.Time, stop func())
}

// RealClock is the wall clock.
type RealClock struct{}

// Now returns the current wall-clock time.
func (RealClock) Now() time.Time { return time.Now() }

// Tick wraps time.NewTicker.
func (RealClock) Tick(d time.Duration) (<-chan time.Time, func()) {
	ticker := time.NewTicker(d)
	return ticker.C, ticker.Stop
}

// StepClock is a deterministic clock. Every Tick channel delivers
// now+d, now+2d, ... as fast as the receiver consumes them, where now is
// the clock's time when Tick was called.
type StepClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewStepClock returns a StepClock frozen at start.
func NewStepClock(start time.Time) *StepClock {
	return &StepClock{now: start}
}

// Now returns the frozen time.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the frozen time forward.
func (c *StepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Tick starts a generator of evenly spaced tick values.
func (c *StepClock) Tick(d time.Duration) (<-chan time.Time, func()) {
	base := c.Now()
	ch := make(chan time.Time)
	done := make(chan struct{})
	var once sync.Once

	go func() {
		for i := 1; ; i++ {
			select {
			case ch <- base.Add(time.Duration(i) * d):
			case <-done:
				return
			}
		}
	}()

	return ch, func() { once.Do(func() { close(done) }) }
}
