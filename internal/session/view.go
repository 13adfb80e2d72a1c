package session

import (
	"github.com/five82/vrcpulse/internal/activity"
	"github.com/five82/vrcpulse/internal/state"
	"github.com/five82/vrcpulse/internal/throttle"
	"github.com/five82/vrcpulse/internal/vrchat"
)

// View is an immutable copy of everything the presentation layer shows.
type View struct {
	Phase     Phase
	LastKind  vrchat.Kind
	LastError string

	// Session is nil unless connected.
	Session *vrchat.Session

	// Friends is sorted by display name.
	Friends []state.Friend

	// Activity is newest first.
	Activity []activity.Event

	RateLimit throttle.State

	PollFailures int
	PollError    string
	Polling      bool
}

// Offline reports whether recent polls keep failing.
func (v View) Offline() bool {
	return v.PollFailures >= 2
}

// View returns a consistent copy of the manager's state.
func (m *Manager) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.store.Snapshot()
	v := View{
		Phase:        m.phase,
		LastKind:     m.lastKind,
		Friends:      snap.Friends,
		Activity:     m.activity.All(),
		RateLimit:    m.guard.State(),
		PollFailures: snap.ConsecutiveFailures,
		Polling:      m.poller != nil && m.poller.InFlight(),
	}
	if snap.LastError != nil {
		v.PollError = snap.LastError.Error()
	}
	if m.lastErr != nil {
		v.LastError = m.lastErr.Error()
	}
	if m.session != nil {
		s := *m.session
		v.Session = &s
	}
	return v
}
