package activity

import "sync"

// DefaultCapacity is the number of events kept when no capacity is
// configured.
const DefaultCapacity = 1000

// Log is a fixed-capacity ring of events. Appending past capacity
// overwrites the oldest entry. All methods are safe for concurrent use.
type Log struct {
	mu    sync.Mutex
	ring  []Event
	next  int // slot the next event is written to
	count int
}

// NewLog creates a log holding at most capacity events. A non-positive
// capacity uses DefaultCapacity.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{ring: make([]Event, capacity)}
}

// Append adds events in emission order; the last event becomes the
// newest entry.
func (l *Log) Append(events ...Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, e := range events {
		l.ring[l.next] = e
		l.next = (l.next + 1) % len(l.ring)
		if l.count < len(l.ring) {
			l.count++
		}
	}
}

// All returns a copy of the log, newest first.
func (l *Log) All() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.count == 0 {
		return nil
	}
	out := make([]Event, l.count)
	idx := l.next
	for i := range out {
		idx = (idx - 1 + len(l.ring)) % len(l.ring)
		out[i] = l.ring[idx]
	}
	return out
}

// Len returns the number of events held.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Cap returns the configured capacity.
func (l *Log) Cap() int {
	return len(l.ring)
}

// Reset empties the log. Only the owner uses this, when a session ends.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	clear(l.ring)
	l.next = 0
	l.count = 0
}
