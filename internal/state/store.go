package state

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Friend is the last observed state of one remote friend. ID is stable
// across polls; every other field may change between polls.
type Friend struct {
	ID             string    `json:"id" yaml:"id"`
	DisplayName    string    `json:"displayName" yaml:"displayName"`
	AvatarURL      string    `json:"avatarUrl" yaml:"avatarUrl"`
	PresenceStatus string    `json:"status" yaml:"status"`
	LocationToken  string    `json:"location" yaml:"location"`
	LastSeenAt     time.Time `json:"lastSeenAt" yaml:"lastSeenAt"`
}

// Snapshot represents the latest friend data available to readers.
type Snapshot struct {
	Friends             []Friend
	LastUpdated         time.Time
	LastError           error
	ConsecutiveFailures int // Number of consecutive poll failures
}

// IsOffline returns true when the friends endpoint has failed for
// multiple polls in a row.
func (s Snapshot) IsOffline() bool {
	return s.ConsecutiveFailures >= 2
}

// Store holds friend snapshots keyed by friend ID. Writes come from the
// poller only; readers get copies.
type Store struct {
	mu          sync.RWMutex
	friends     map[string]Friend
	lastUpdated time.Time
	lastError   error
	failures    int
}

// Get returns the stored snapshot for id.
func (s *Store) Get(id string) (Friend, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.friends[id]
	return f, ok
}

// Len returns the number of friends ever observed since the last Reset.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.friends)
}

// Update writes every friend in the batch, replacing earlier entries with
// the same ID. Friends missing from the batch are kept; absence is not a
// change.
func (s *Store) Update(friends []Friend, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.friends == nil {
		s.friends = make(map[string]Friend, len(friends))
	}
	for _, f := range friends {
		s.friends[f.ID] = f
	}
	s.lastUpdated = at
	s.lastError = nil
	s.failures = 0
}

// RecordFailure keeps the previous data but records err for visibility.
func (s *Store) RecordFailure(err error, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastError = err
	s.lastUpdated = at
	s.failures++
}

// Reset drops every friend and the failure history.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.friends = nil
	s.lastUpdated = time.Time{}
	s.lastError = nil
	s.failures = 0
}

// Snapshot returns a copy of the current state, friends sorted by
// display name and then ID.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Friends:             s.listLocked(),
		LastUpdated:         s.lastUpdated,
		ConsecutiveFailures: s.failures,
	}
	if s.lastError != nil {
		snap.LastError = fmt.Errorf("%w", s.lastError)
	}
	return snap
}

// List returns the stored friends sorted by display name.
func (s *Store) List() []Friend {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked()
}

func (s *Store) listLocked() []Friend {
	if len(s.friends) == 0 {
		return nil
	}
	out := make([]Friend, 0, len(s.friends))
	for _, f := range s.friends {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].DisplayName), strings.ToLower(out[j].DisplayName)
		if a != b {
			return a < b
		}
		return out[i].ID < out[j].ID
	})
	return out
}
