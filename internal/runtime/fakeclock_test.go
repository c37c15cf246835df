package runtime

import (
	"sync"
	"time"
)

// fakeClock is a manually-advanced Clock for deterministic tests
// (spec.md §6's Clock/Timer contract). Advance fires every ticker once
// and any timer whose fireAt has passed.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
	timers  []*fakeTimer
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTicker(d time.Duration) Ticker {
	t := &fakeTicker{ch: make(chan time.Time, 1)}
	c.mu.Lock()
	c.tickers = append(c.tickers, t)
	c.mu.Unlock()
	return t
}

func (c *fakeClock) NewTimer(d time.Duration) Timer {
	c.mu.Lock()
	t := &fakeTimer{clock: c, ch: make(chan time.Time, 1), fireAt: c.now.Add(d)}
	c.timers = append(c.timers, t)
	c.mu.Unlock()
	return t
}

// Advance moves the clock forward by d, firing every ticker once and
// any timer whose fireAt is now due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	for _, t := range c.tickers {
		select {
		case t.ch <- now:
		default:
		}
	}
	for _, t := range c.timers {
		if !t.fired && !t.fireAt.After(now) {
			t.fired = true
			select {
			case t.ch <- now:
			default:
			}
		}
	}
	c.mu.Unlock()
}

type fakeTicker struct {
	ch chan time.Time
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               {}

type fakeTimer struct {
	clock  *fakeClock
	ch     chan time.Time
	fireAt time.Time
	fired  bool
}

func (t *fakeTimer) C() <-chan time.Time { return t.ch }

func (t *fakeTimer) Stop() bool {
	wasActive := !t.fired
	t.fired = true
	return wasActive
}

func (t *fakeTimer) Reset(d time.Duration) bool {
	t.clock.mu.Lock()
	active := !t.fired
	t.fireAt = t.clock.now.Add(d)
	t.fired = false
	t.clock.mu.Unlock()
	return active
}
