package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/five82/vrcpulse/internal/activity"
	"github.com/five82/vrcpulse/internal/clock"
	"github.com/five82/vrcpulse/internal/poller"
	"github.com/five82/vrcpulse/internal/state"
	"github.com/five82/vrcpulse/internal/throttle"
	"github.com/five82/vrcpulse/internal/vrchat"
)

var (
	// ErrHandshakeInProgress rejects a handshake call while another one is
	// pending or in flight. No transport call is made.
	ErrHandshakeInProgress = errors.New("handshake already in progress")
	// ErrNoPendingHandshake rejects SubmitSecondFactor outside
	// PhaseAwaitingSecondFactor.
	ErrNoPendingHandshake = errors.New("no pending handshake")
	// ErrAlreadyConnected rejects Initiate while connected.
	ErrAlreadyConnected = errors.New("already connected")
	// ErrRateLimited is returned while the local cool-down is active.
	ErrRateLimited = errors.New("rate limited, try again later")
	// ErrEmptyCode rejects a blank second-factor code without a network call.
	ErrEmptyCode = errors.New("second factor code is empty")
	// ErrStaleResult marks a transport result that arrived after the
	// session it belonged to ended. It is never applied.
	ErrStaleResult = errors.New("result belongs to an ended session")
	// ErrPollInFlight is returned by RefreshNow while a fetch is outstanding.
	ErrPollInFlight = poller.ErrInFlight
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session manager closed")
)

const (
	logoutTimeout  = 10 * time.Second
	maxTransitions = 64
)

// Transport is the REST collaborator. *vrchat.Client implements it.
// Login failures must be classified errors (see vrchat.KindOf).
type Transport interface {
	Login(ctx context.Context, identifier, secret []byte, code string) (*vrchat.Session, error)
	FetchFriends(ctx context.Context) ([]state.Friend, error)
	Logout(ctx context.Context) error
}

// Options tune a Manager. Zero values use the package defaults.
type Options struct {
	Clock            clock.Clock
	Logger           zerolog.Logger
	PollInterval     time.Duration
	ThrottleCooldown time.Duration
	ActivityCapacity int
}

// Manager owns one remote session: the handshake state machine, the
// friends poller, the snapshot store and the activity log. All state
// changes are serialized behind mu; transport calls run without it and
// their results are applied only if the generation they started under is
// still current.
type Manager struct {
	transport    Transport
	clock        clock.Clock
	log          zerolog.Logger
	pollInterval time.Duration
	cooldown     time.Duration

	guard    *throttle.Guard
	store    *state.Store
	activity *activity.Log

	wg sync.WaitGroup

	mu              sync.Mutex
	phase           Phase
	creds           *Credentials
	handshaking     bool
	handshakeCancel context.CancelFunc
	gen             uint64
	session         *vrchat.Session
	poller          *poller.Poller
	logoutDone      chan struct{}
	lastKind        vrchat.Kind
	lastErr         error
	transitions     []Transition
	subs            map[int]chan struct{}
	nextSub         int
	closed          bool
}

// New builds a Manager in PhaseDisconnected.
func New(transport Transport, opts Options) *Manager {
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	cooldown := opts.ThrottleCooldown
	if cooldown <= 0 {
		cooldown = throttle.DefaultCooldown
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = poller.DefaultInterval
	}

	m := &Manager{
		transport:    transport,
		clock:        clk,
		log:          opts.Logger,
		pollInterval: pollInterval,
		cooldown:     cooldown,
		store:        &state.Store{},
		activity:     activity.NewLog(opts.ActivityCapacity),
		subs:         make(map[int]chan struct{}),
	}
	m.guard = throttle.New(clk, m.onThrottleCleared)
	return m
}

// Initiate starts a handshake with identifier and secret. It is allowed
// from PhaseDisconnected and PhaseFailed; while the cool-down is active it
// returns a throttled Outcome without contacting the transport.
//
// Initiate takes ownership of both slices: they are copied and then
// zeroed before it returns, whatever the outcome.
func (m *Manager) Initiate(ctx context.Context, identifier, secret []byte) Outcome {
	defer wipe(identifier)
	defer wipe(secret)

	m.mu.Lock()
	if out, ok := m.rejectLocked(); ok {
		m.mu.Unlock()
		return out
	}
	switch m.phase {
	case PhaseConnecting, PhaseAwaitingSecondFactor:
		out := m.outcomeLocked(ErrHandshakeInProgress)
		m.mu.Unlock()
		return out
	case PhaseConnected:
		out := m.outcomeLocked(ErrAlreadyConnected)
		m.mu.Unlock()
		return out
	}
	if len(bytes.TrimSpace(identifier)) == 0 || len(secret) == 0 {
		out := m.outcomeLocked(fmt.Errorf("identifier and secret are required"))
		m.mu.Unlock()
		return out
	}

	m.gen++
	gen := m.gen
	m.store.Reset()
	m.activity.Reset()
	m.lastKind, m.lastErr = vrchat.KindNone, nil
	m.creds = newCredentials(identifier, secret)
	m.setPhaseLocked(PhaseConnecting, vrchat.KindNone)
	id, sec := m.creds.clone()
	hctx, pendingLogout := m.beginHandshakeLocked(ctx)
	m.mu.Unlock()

	waitFor(hctx, pendingLogout)
	sess, err := m.transport.Login(hctx, id, sec, "")
	wipe(id)
	wipe(sec)
	return m.finishHandshake(gen, false, sess, err)
}

// SubmitSecondFactor completes a pending handshake with a one-time code.
// An invalid or expired code keeps the handshake pending so the caller
// can retry without re-entering the secret.
func (m *Manager) SubmitSecondFactor(ctx context.Context, code string) Outcome {
	m.mu.Lock()
	if out, ok := m.rejectLocked(); ok {
		m.mu.Unlock()
		return out
	}
	if m.phase != PhaseAwaitingSecondFactor || m.creds.Empty() {
		out := m.outcomeLocked(ErrNoPendingHandshake)
		m.mu.Unlock()
		return out
	}
	code = strings.TrimSpace(code)
	if code == "" {
		out := m.outcomeLocked(ErrEmptyCode)
		out.Kind = vrchat.KindSecondFactorInvalid
		m.mu.Unlock()
		return out
	}

	gen := m.gen
	id, sec := m.creds.clone()
	hctx, pendingLogout := m.beginHandshakeLocked(ctx)
	m.mu.Unlock()

	waitFor(hctx, pendingLogout)
	sess, err := m.transport.Login(hctx, id, sec, code)
	wipe(id)
	wipe(sec)
	return m.finishHandshake(gen, true, sess, err)
}

// Disconnect stops polling, discards the session and friend snapshots and
// returns to PhaseDisconnected. The poll timer is cancelled before
// Disconnect returns. A remote logout is attempted in the background and
// only logged on failure. Disconnect is idempotent.
func (m *Manager) Disconnect(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnectLocked(ctx)
}

// RefreshNow runs one out-of-band poll on the caller's goroutine. It is a
// no-op unless connected and returns ErrPollInFlight when a fetch is
// already outstanding.
func (m *Manager) RefreshNow(ctx context.Context) error {
	m.mu.Lock()
	if m.phase != PhaseConnected || m.poller == nil {
		m.mu.Unlock()
		return nil
	}
	p := m.poller
	m.mu.Unlock()

	err := p.RunNow(ctx)
	if errors.Is(err, poller.ErrNotRunning) {
		return nil
	}
	return err
}

// Close disconnects, cancels the cool-down timer and waits for background
// work (pollers, logout) to finish. The Manager is unusable afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		m.disconnectLocked(context.Background())
		m.guard.Stop()
		for id, ch := range m.subs {
			close(ch)
			delete(m.subs, id)
		}
	}
	m.mu.Unlock()

	m.wg.Wait()
}

// ExportLog writes the activity log in the given format. It has no effect
// on state.
func (m *Manager) ExportLog(w io.Writer, format activity.Format) error {
	return activity.Export(w, m.activity.All(), format, m.clock.Now())
}

// Phase returns the current phase.
func (m *Manager) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Transitions returns the most recent phase changes, oldest first.
func (m *Manager) Transitions() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Transition(nil), m.transitions...)
}

// Subscribe returns a channel that receives a signal after every state
// change. Signals coalesce: a slow reader sees one pending signal and
// should call View. The returned func unsubscribes.
func (m *Manager) Subscribe() (<-chan struct{}, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan struct{}, 1)
	if m.closed {
		close(ch)
		return ch, func() {}
	}
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if sub, ok := m.subs[id]; ok {
				close(sub)
				delete(m.subs, id)
			}
		})
	}
}

func (m *Manager) rejectLocked() (Outcome, bool) {
	if m.closed {
		return m.outcomeLocked(ErrClosed), true
	}
	if m.handshaking {
		return m.outcomeLocked(ErrHandshakeInProgress), true
	}
	if m.guard.IsActive(m.clock.Now()) {
		out := m.outcomeLocked(ErrRateLimited)
		out.Kind = vrchat.KindThrottled
		out.ResumeAt = m.guard.State().ResumeAt
		return out, true
	}
	return Outcome{}, false
}

func (m *Manager) outcomeLocked(err error) Outcome {
	return Outcome{Phase: m.phase, Kind: m.lastKind, Err: err}
}

func (m *Manager) beginHandshakeLocked(ctx context.Context) (context.Context, <-chan struct{}) {
	hctx, cancel := context.WithCancel(ctx)
	m.handshaking = true
	m.handshakeCancel = cancel
	return hctx, m.logoutDone
}

// finishHandshake applies a Login result. secondFactor is true for
// SubmitSecondFactor.
func (m *Manager) finishHandshake(gen uint64, secondFactor bool, sess *vrchat.Session, err error) Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.handshaking = false
	if m.handshakeCancel != nil {
		m.handshakeCancel()
		m.handshakeCancel = nil
	}
	if gen != m.gen || !m.phase.holdsCredentials() {
		m.log.Debug().Uint64("generation", gen).Msg("discarding handshake result from an ended attempt")
		return m.outcomeLocked(ErrStaleResult)
	}

	if err == nil && sess != nil {
		m.connectLocked(sess)
		return m.outcomeLocked(nil)
	}
	if err == nil {
		err = fmt.Errorf("login returned no session")
	}

	kind := vrchat.KindOf(err)
	if kind == vrchat.KindSecondFactorRequired && secondFactor {
		kind = vrchat.KindSecondFactorInvalid
	}
	if kind == vrchat.KindSecondFactorInvalid && !secondFactor {
		kind = vrchat.KindUnclassified
	}
	m.lastKind = kind

	switch kind {
	case vrchat.KindSecondFactorRequired:
		m.lastErr = nil
		m.setPhaseLocked(PhaseAwaitingSecondFactor, kind)
		return m.outcomeLocked(nil)

	case vrchat.KindSecondFactorInvalid:
		m.lastErr = err
		m.setPhaseLocked(PhaseAwaitingSecondFactor, kind)
		return m.outcomeLocked(err)

	case vrchat.KindThrottled:
		m.lastErr = err
		st := m.throttleLocked(vrchat.RetryAfterOf(err))
		out := m.outcomeLocked(err)
		out.ResumeAt = st.ResumeAt
		return out

	case vrchat.KindInvalidCredentials:
		m.lastErr = err
		m.setPhaseLocked(PhaseDisconnected, kind)
		return m.outcomeLocked(err)

	default:
		m.lastErr = err
		if secondFactor {
			m.setPhaseLocked(PhaseDisconnected, kind)
		} else {
			m.setPhaseLocked(PhaseFailed, kind)
		}
		return m.outcomeLocked(err)
	}
}

func (m *Manager) connectLocked(sess *vrchat.Session) {
	now := m.clock.Now()
	s := *sess
	s.ConnectedAt = now
	s.LastSyncAt = now
	m.session = &s
	m.lastKind, m.lastErr = vrchat.KindNone, nil
	m.setPhaseLocked(PhaseConnected, vrchat.KindNone)

	gen := m.gen
	p := poller.New(m.clock, m.pollInterval, func(ctx context.Context) error {
		return m.poll(ctx, gen)
	}, m.log.With().Str("component", "poller").Logger())
	if err := p.Start(context.Background()); err != nil {
		m.log.Error().Err(err).Msg("start poller")
		return
	}
	m.poller = p
	m.log.Info().Str("account", s.DisplayName).Dur("interval", m.pollInterval).Msg("connected, polling friends")
}

// throttleLocked arms the cool-down: the fixed window, or the remote
// hint when it is longer.
func (m *Manager) throttleLocked(hint time.Duration) throttle.State {
	d := m.cooldown
	if hint > d {
		d = hint
	}
	st := m.guard.MarkThrottled(d)
	m.setPhaseLocked(PhaseRateLimited, vrchat.KindThrottled)
	m.log.Warn().Time("resume_at", st.ResumeAt).Msg("remote service throttled the handshake")
	return st
}

func (m *Manager) onThrottleCleared() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase != PhaseRateLimited {
		return
	}
	m.lastKind, m.lastErr = vrchat.KindNone, nil
	m.setPhaseLocked(PhaseDisconnected, vrchat.KindNone)
}

func (m *Manager) disconnectLocked(ctx context.Context) {
	wasConnected := m.session != nil
	m.gen++
	if m.handshakeCancel != nil {
		m.handshakeCancel()
	}
	m.stopPollerLocked()
	m.session = nil
	m.store.Reset()
	if m.phase != PhaseDisconnected {
		m.setPhaseLocked(PhaseDisconnected, vrchat.KindNone)
	}
	m.creds.Wipe()
	m.creds = nil

	if wasConnected {
		m.logoutLocked(ctx)
	}
}

func (m *Manager) stopPollerLocked() {
	p := m.poller
	if p == nil {
		return
	}
	m.poller = nil
	p.Stop()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		p.Wait()
	}()
}

func (m *Manager) logoutLocked(ctx context.Context) {
	done := make(chan struct{})
	m.logoutDone = done

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(done)

		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logoutTimeout)
		defer cancel()
		if err := m.transport.Logout(lctx); err != nil {
			m.log.Warn().Err(err).Msg("remote logout failed")
		}
	}()
}

// poll is one friends fetch for the session generation gen.
func (m *Manager) poll(ctx context.Context, gen uint64) error {
	m.mu.Lock()
	if gen != m.gen || m.phase != PhaseConnected {
		m.mu.Unlock()
		return ErrStaleResult
	}
	if m.guard.IsActive(m.clock.Now()) {
		m.mu.Unlock()
		m.log.Debug().Msg("poll suppressed during cool-down")
		return nil
	}
	m.mu.Unlock()

	friends, err := m.transport.FetchFriends(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen || m.phase != PhaseConnected {
		m.log.Debug().Uint64("generation", gen).Msg("discarding poll result from an ended session")
		return ErrStaleResult
	}

	now := m.clock.Now()
	if err != nil {
		if vrchat.KindOf(err) == vrchat.KindThrottled {
			d := m.cooldown
			if hint := vrchat.RetryAfterOf(err); hint > d {
				d = hint
			}
			m.guard.MarkThrottled(d)
		}
		m.store.RecordFailure(err, now)
		m.notifyLocked()
		return fmt.Errorf("fetch friends: %w", err)
	}

	events := activity.DiffAll(m.store, friends, now)
	m.activity.Append(events...)
	m.store.Update(friends, now)
	if m.session != nil {
		s := *m.session
		s.LastSyncAt = now
		m.session = &s
	}
	m.notifyLocked()

	m.log.Debug().Int("friends", len(friends)).Int("events", len(events)).Msg("friends polled")
	return nil
}

// setPhaseLocked is the only writer of m.phase. Leaving the handshake
// phases always wipes pending credentials.
func (m *Manager) setPhaseLocked(to Phase, kind vrchat.Kind) {
	from := m.phase
	m.phase = to
	if !to.holdsCredentials() {
		m.creds.Wipe()
		m.creds = nil
	}

	m.transitions = append(m.transitions, Transition{From: from, To: to, Kind: kind, At: m.clock.Now()})
	if over := len(m.transitions) - maxTransitions; over > 0 {
		m.transitions = append(m.transitions[:0:0], m.transitions[over:]...)
	}

	m.log.Info().Stringer("from", from).Stringer("to", to).Stringer("kind", kind).Msg("phase changed")
	m.notifyLocked()
}

func (m *Manager) notifyLocked() {
	for _, ch := range m.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func waitFor(ctx context.Context, done <-chan struct{}) {
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
}
