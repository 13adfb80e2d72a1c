package session

import (
	"fmt"
	"time"

	"github.com/five82/vrcpulse/internal/vrchat"
)

// Phase is the connection manager's authentication state. Exactly one
// phase is active at a time.
type Phase int

const (
	PhaseDisconnected Phase = iota
	PhaseConnecting
	PhaseAwaitingSecondFactor
	PhaseConnected
	PhaseRateLimited
	PhaseFailed
)

var phaseNames = [...]string{
	PhaseDisconnected:         "disconnected",
	PhaseConnecting:           "connecting",
	PhaseAwaitingSecondFactor: "awaiting_second_factor",
	PhaseConnected:            "connected",
	PhaseRateLimited:          "rate_limited",
	PhaseFailed:               "failed",
}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// holdsCredentials reports whether pending credentials may exist in p.
func (p Phase) holdsCredentials() bool {
	return p == PhaseConnecting || p == PhaseAwaitingSecondFactor
}

// Transition records one phase change.
type Transition struct {
	From Phase
	To   Phase
	Kind vrchat.Kind
	At   time.Time
}

// Outcome is the result of a handshake operation.
type Outcome struct {
	Phase Phase
	Kind  vrchat.Kind

	// ResumeAt is set when Kind is KindThrottled.
	ResumeAt time.Time

	// Err is nil on success and when a second factor is requested.
	Err error
}

// Connected reports whether the operation ended in PhaseConnected.
func (o Outcome) Connected() bool {
	return o.Err == nil && o.Phase == PhaseConnected
}
