// Package fakeclock is a manually advanced session.Clock for tests.
package fakeclock

import (
	"sync"
	"time"

	"github.com/danmuck/stompctl/internal/protocol/session"
)

type Clock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*waiter
	changed chan struct{}
}

type waiter struct {
	clock  *Clock
	at     time.Time
	period time.Duration
	c      chan time.Time
	active bool
}

func New(start time.Time) *Clock {
	return &Clock{now: start, changed: make(chan struct{})}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) NewTimer(d time.Duration) session.Timer {
	return c.add(d, 0)
}

func (c *Clock) NewTicker(d time.Duration) session.Ticker {
	if d <= 0 {
		panic("fakeclock: non-positive ticker period")
	}
	return ticker{c.add(d, d)}
}

func (c *Clock) add(d, period time.Duration) *waiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := &waiter{clock: c, at: c.now.Add(d), period: period, c: make(chan time.Time, 1), active: true}
	c.waiters = append(c.waiters, w)
	c.notifyLocked()
	return w
}

// Advance moves time forward by d and fires every timer and ticker due in
// that span. Ticks are dropped when the receiver has not drained the
// previous one, like time.Ticker.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	end := c.now.Add(d)
	for {
		next := c.nextDueLocked(end)
		if next == nil {
			break
		}
		c.now = next.at
		select {
		case next.c <- next.at:
		default:
		}
		if next.period > 0 {
			next.at = next.at.Add(next.period)
		} else {
			next.active = false
		}
	}
	c.now = end
	c.pruneLocked()
	c.notifyLocked()
}

// Waiters is the number of armed timers and tickers.
func (c *Clock) Waiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// BlockUntil waits until exactly n timers and tickers are armed.
func (c *Clock) BlockUntil(n int) {
	for {
		c.mu.Lock()
		count := len(c.waiters)
		changed := c.changed
		c.mu.Unlock()
		if count == n {
			return
		}
		<-changed
	}
}

func (c *Clock) nextDueLocked(end time.Time) *waiter {
	var next *waiter
	for _, w := range c.waiters {
		if !w.active || w.at.After(end) {
			continue
		}
		if next == nil || w.at.Before(next.at) {
			next = w
		}
	}
	return next
}

func (c *Clock) pruneLocked() {
	kept := c.waiters[:0]
	for _, w := range c.waiters {
		if w.active {
			kept = append(kept, w)
		}
	}
	for i := len(kept); i < len(c.waiters); i++ {
		c.waiters[i] = nil
	}
	c.waiters = kept
}

func (c *Clock) notifyLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}

func (w *waiter) C() <-chan time.Time {
	return w.c
}

func (w *waiter) Stop() bool {
	c := w.clock
	c.mu.Lock()
	defer c.mu.Unlock()
	was := w.active
	w.active = false
	c.pruneLocked()
	c.notifyLocked()
	return was
}

type ticker struct{ *waiter }

func (t ticker) Stop() { t.waiter.Stop() }
