// Package clock abstracts the time source so every timer in vrcpulse is
// owned by an object and can be driven deterministically in tests.
//
// Production code uses Real(). Tests use Fake(), which only moves when
// Advance is called.
package clock

import "time"

// Clock is the subset of the time package the connection manager needs.
type Clock interface {
	Now() time.Time

	// AfterFunc calls f once d has elapsed. The returned Timer cancels
	// the pending call.
	AfterFunc(d time.Duration, f func()) *Timer

	// NewTicker delivers ticks on C every d. Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Ticker wraps a periodic timer. C is buffered with capacity 1, so ticks
// are dropped while the consumer is busy.
type Ticker struct {
	C <-chan time.Time

	stopFunc func()
}

// Stop turns off the ticker. C is not closed.
func (t *Ticker) Stop() { t.stopFunc() }

// Timer is a pending AfterFunc call.
type Timer struct {
	stopFunc func() bool
}

// Stop prevents the timer from firing. It reports whether the call
// stopped a pending timer.
func (t *Timer) Stop() bool { return t.stopFunc() }

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) *Timer {
	timer := time.AfterFunc(d, f)
	return &Timer{stopFunc: timer.Stop}
}

func (realClock) NewTicker(d time.Duration) *Ticker {
	ticker := time.NewTicker(d)
	return &Ticker{C: ticker.C, stopFunc: ticker.Stop}
}
