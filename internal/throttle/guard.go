// Package throttle tracks remote rate limiting and suppresses local
// attempts until the cool-down has passed. It never talks to the network.
package throttle

import (
	"sync"
	"time"

	"github.com/five82/vrcpulse/internal/clock"
)

// DefaultCooldown is how long attempts stay suppressed after the remote
// service signals throttling.
const DefaultCooldown = 10 * time.Minute

// State is a point-in-time view of the guard.
type State struct {
	Active   bool      `json:"active"`
	ResumeAt time.Time `json:"resumeAt"`
}

// Guard records throttling and clears itself with a one-shot timer.
type Guard struct {
	clock   clock.Clock
	onClear func()

	mu       sync.Mutex
	active   bool
	resumeAt time.Time
	timer    *clock.Timer
	gen      uint64
}

// New returns a Guard. onClear, if set, runs once each time a cool-down
// expires on its own; it is called without the guard's lock held.
func New(clk clock.Clock, onClear func()) *Guard {
	if clk == nil {
		clk = clock.Real()
	}
	return &Guard{clock: clk, onClear: onClear}
}

// MarkThrottled suppresses attempts for d from now. A later call replaces
// the earlier window. A non-positive d clears the guard.
func (g *Guard) MarkThrottled(d time.Duration) State {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.stopLocked()
	if d <= 0 {
		return State{}
	}

	g.gen++
	gen := g.gen
	g.active = true
	g.resumeAt = g.clock.Now().Add(d)
	g.timer = g.clock.AfterFunc(d, func() { g.expire(gen) })
	return State{Active: true, ResumeAt: g.resumeAt}
}

// IsActive reports whether now is still inside the cool-down window.
func (g *Guard) IsActive(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active && now.Before(g.resumeAt)
}

// State returns the guard as seen at the current clock time.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.active || !g.clock.Now().Before(g.resumeAt) {
		return State{}
	}
	return State{Active: true, ResumeAt: g.resumeAt}
}

// Remaining returns how long attempts stay suppressed, zero if inactive.
func (g *Guard) Remaining() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.active {
		return 0
	}
	if left := g.resumeAt.Sub(g.clock.Now()); left > 0 {
		return left
	}
	return 0
}

// Stop cancels a pending expiry and clears the guard without invoking
// onClear.
func (g *Guard) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopLocked()
}

func (g *Guard) stopLocked() {
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.gen++
	g.active = false
	g.resumeAt = time.Time{}
}

func (g *Guard) expire(gen uint64) {
	g.mu.Lock()
	if gen != g.gen || !g.active {
		g.mu.Unlock()
		return
	}
	g.active = false
	g.resumeAt = time.Time{}
	g.timer = nil
	cb := g.onClear
	g.mu.Unlock()

	if cb != nil {
		cb()
	}
}
