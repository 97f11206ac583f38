// Package mock provides a manually driven [assist.Clock] for tests.
//
// Timers never fire on their own. Tests inspect [Clock.Pending] and call
// [Clock.FireNext] (or [Timer.Fire]) to run a callback synchronously on the
// test goroutine.
package mock

import (
	"sync"
	"time"

	"github.com/MrWong99/visionally/internal/assist"
)

var _ assist.Clock = (*Clock)(nil)

// Clock records every AfterFunc call.
type Clock struct {
	mu     sync.Mutex
	timers []*Timer
}

// Timer is one scheduled callback.
type Timer struct {
	// Delay is the duration passed to AfterFunc.
	Delay time.Duration

	mu      sync.Mutex
	f       func()
	stopped bool
	fired   bool
}

// Stop implements assist.Timer.
func (t *Timer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Fire runs the callback unless the timer was stopped or already fired.
// It reports whether the callback ran.
func (t *Timer) Fire() bool {
	t.mu.Lock()
	if t.stopped || t.fired {
		t.mu.Unlock()
		return false
	}
	t.fired = true
	f := t.f
	t.mu.Unlock()
	f()
	return true
}

func (t *Timer) pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.stopped && !t.fired
}

// AfterFunc implements assist.Clock.
func (c *Clock) AfterFunc(d time.Duration, f func()) assist.Timer {
	t := &Timer{Delay: d, f: f}
	c.mu.Lock()
	c.timers = append(c.timers, t)
	c.mu.Unlock()
	return t
}

// All returns every timer ever scheduled, oldest first.
func (c *Clock) All() []*Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Timer(nil), c.timers...)
}

// Pending returns the timers that have neither fired nor been stopped.
func (c *Clock) Pending() []*Timer {
	var out []*Timer
	for _, t := range c.All() {
		if t.pending() {
			out = append(out, t)
		}
	}
	return out
}

// FireNext fires the oldest pending timer and returns its delay. It returns
// false if nothing is pending.
func (c *Clock) FireNext() (time.Duration, bool) {
	p := c.Pending()
	if len(p) == 0 {
		return 0, false
	}
	p[0].Fire()
	return p[0].Delay, true
}
