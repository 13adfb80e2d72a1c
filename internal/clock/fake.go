package clock

import (
	"sort"
	"sync"
	"time"
)

// FakeClock is a deterministic Clock. Time stands still until Advance is
// called. AfterFunc callbacks run synchronously inside Advance, in
// deadline order; they must not call Advance themselves.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	waiters []*fakeWaiter
	changed *sync.Cond
}

type fakeWaiter struct {
	deadline time.Time
	channel  chan time.Time // tickers
	callback func()         // AfterFunc
	interval time.Duration  // non-zero for tickers
	stopped  bool
	fired    bool
}

// Fake returns a FakeClock starting at initial.
func Fake(initial time.Time) *FakeClock {
	c := &FakeClock{current: initial}
	c.changed = sync.NewCond(&c.mu)
	return c
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// AfterFunc schedules f. If d <= 0, f runs before AfterFunc returns.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	if d <= 0 {
		f()
		return &Timer{stopFunc: func() bool { return false }}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	w := &fakeWaiter{deadline: c.current.Add(d), callback: f}
	c.waiters = append(c.waiters, w)
	c.changed.Broadcast()

	return &Timer{stopFunc: func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if w.stopped || w.fired {
			return false
		}
		w.stopped = true
		c.changed.Broadcast()
		return true
	}}
}

// NewTicker registers a periodic waiter.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	w := &fakeWaiter{deadline: c.current.Add(d), channel: ch, interval: d}
	c.waiters = append(c.waiters, w)
	c.changed.Broadcast()

	return &Ticker{C: ch, stopFunc: func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		w.stopped = true
		c.changed.Broadcast()
	}}
}

// Advance moves the clock forward by d and fires every waiter whose
// deadline has been reached. A ticker fires at most once per interval
// crossed; ticks that overflow its buffer are dropped.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	target := c.current
	c.mu.Unlock()

	for {
		due := c.collectExpired(target)
		if len(due) == 0 {
			return
		}
		sort.Slice(due, func(i, j int) bool {
			return due[i].deadline.Before(due[j].deadline)
		})
		for _, w := range due {
			if w.callback != nil {
				w.callback()
				continue
			}
			select {
			case w.channel <- target:
			default:
			}
		}
	}
}

func (c *FakeClock) collectExpired(target time.Time) []*fakeWaiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	var due, remaining []*fakeWaiter
	for _, w := range c.waiters {
		if w.stopped {
			continue
		}
		if w.deadline.After(target) {
			remaining = append(remaining, w)
			continue
		}
		due = append(due, w)
	}
	for _, w := range due {
		if w.interval > 0 {
			w.deadline = w.deadline.Add(w.interval)
			remaining = append(remaining, w)
		} else {
			w.fired = true
		}
	}
	c.waiters = remaining
	return due
}

// WaitForTimers blocks until at least n waiters are pending. Use it to
// avoid racing a goroutine that is about to register a ticker.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.pendingLocked() < n {
		c.changed.Wait()
	}
}

// PendingCount returns the number of active waiters.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingLocked()
}

func (c *FakeClock) pendingLocked() int {
	n := 0
	for _, w := range c.waiters {
		if !w.stopped && !w.fired {
			n++
		}
	}
	return n
}
