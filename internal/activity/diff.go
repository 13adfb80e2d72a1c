package activity

import (
	"sort"
	"time"

	"github.com/five82/vrcpulse/internal/state"
)

// Diff compares two snapshots of the same friend. A nil prev means the
// friend is seen for the first time, which seeds history and yields no
// events. Each rule is checked independently, so one call can return a
// status, a location and an avatar event together, but never two of the
// same kind.
func Diff(prev *state.Friend, next state.Friend, now time.Time) []Event {
	if prev == nil {
		return nil
	}

	var events []Event
	if prev.PresenceStatus != next.PresenceStatus {
		events = append(events, newEvent(KindStatus, next.ID, next.DisplayName, prev.PresenceStatus, next.PresenceStatus, now))
	}
	if prev.LocationToken != next.LocationToken {
		events = append(events, newEvent(KindLocation, next.ID, next.DisplayName, prev.LocationToken, next.LocationToken, now))
	}
	if prev.AvatarURL != next.AvatarURL {
		events = append(events, newEvent(KindAvatar, next.ID, next.DisplayName, "", "", now))
	}
	return events
}

// Lookup resolves the previously stored snapshot for a friend ID.
// *state.Store satisfies it.
type Lookup interface {
	Get(id string) (state.Friend, bool)
}

// DiffAll diffs one poll's friends against prior snapshots. The batch is
// treated as a set: duplicate IDs collapse to the last entry and output
// is ordered by friend ID, so input order never changes the result.
func DiffAll(prior Lookup, batch []state.Friend, now time.Time) []Event {
	latest := make(map[string]state.Friend, len(batch))
	for _, f := range batch {
		latest[f.ID] = f
	}
	ids := make([]string, 0, len(latest))
	for id := range latest {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var events []Event
	for _, id := range ids {
		var prev *state.Friend
		if old, ok := prior.Get(id); ok {
			prev = &old
		}
		events = append(events, Diff(prev, latest[id], now)...)
	}
	return events
}
