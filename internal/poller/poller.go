// Package poller runs a fetch function on a fixed cadence with at most
// one fetch outstanding at any time.
package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/five82/vrcpulse/internal/clock"
)

// DefaultInterval is the friends polling cadence.
const DefaultInterval = 30 * time.Second

var (
	// ErrInFlight is returned by RunNow while another fetch is outstanding.
	ErrInFlight = errors.New("poll already in flight")
	// ErrNotRunning is returned by RunNow before Start or after Stop.
	ErrNotRunning = errors.New("poller not running")
	// ErrStarted is returned when Start is called twice.
	ErrStarted = errors.New("poller already started")
)

// Func performs one poll. The context is cancelled when the poller stops.
type Func func(ctx context.Context) error

// Poller schedules Func every interval. A Poller is single use: once
// stopped it cannot be started again.
type Poller struct {
	clock    clock.Clock
	interval time.Duration
	fn       Func
	log      zerolog.Logger

	inFlight atomic.Bool
	skipped  atomic.Uint64
	wg       sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc
	ticker  *clock.Ticker
}

// New builds a Poller. A non-positive interval uses DefaultInterval.
func New(clk clock.Clock, interval time.Duration, fn Func, logger zerolog.Logger) *Poller {
	if clk == nil {
		clk = clock.Real()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{clock: clk, interval: interval, fn: fn, log: logger}
}

// Start polls once immediately and then on every tick. It returns at
// once; polling runs in the background until Stop or ctx is done.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrStarted
	}
	p.started = true
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.ticker = p.clock.NewTicker(p.interval)

	runCtx, ticks := p.ctx, p.ticker.C
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		p.trigger(runCtx, "start")
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticks:
				p.trigger(runCtx, "tick")
			}
		}
	}()
	return nil
}

// Stop cancels the ticker and the context handed to any in-flight fetch.
// The ticker is stopped before Stop returns; Stop does not wait for the
// fetch itself. Stop is idempotent.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started || p.stopped {
		return
	}
	p.stopped = true
	p.ticker.Stop()
	p.cancel()
}

// Wait blocks until the background loop and any fetch it started have
// returned. Call it after Stop.
func (p *Poller) Wait() {
	p.wg.Wait()
}

// RunNow performs one out-of-band fetch on the caller's goroutine without
// touching the tick schedule. It shares the in-flight guard with ticks.
func (p *Poller) RunNow(ctx context.Context) error {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return ErrNotRunning
	}
	runCtx := p.ctx
	p.mu.Unlock()

	if !p.inFlight.CompareAndSwap(false, true) {
		return ErrInFlight
	}
	defer p.inFlight.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(runCtx, cancel)
	defer stop()

	return p.fn(ctx)
}

// InFlight reports whether a fetch is outstanding.
func (p *Poller) InFlight() bool {
	return p.inFlight.Load()
}

// Skipped returns how many ticks were dropped because a fetch was still
// outstanding.
func (p *Poller) Skipped() uint64 {
	return p.skipped.Load()
}

func (p *Poller) trigger(ctx context.Context, reason string) {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.skipped.Add(1)
		p.log.Debug().Str("reason", reason).Msg("poll skipped, previous fetch still in flight")
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.inFlight.Store(false)

		if err := p.fn(ctx); err != nil && ctx.Err() == nil {
			p.log.Warn().Err(err).Str("reason", reason).Msg("poll failed")
		}
	}()
}
