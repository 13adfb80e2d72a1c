// Package activity turns successive friend snapshots into a bounded,
// newest-first stream of semantic events.
package activity

import (
	"fmt"
	"strconv"
	"time"
)

// Kind identifies what changed about a friend between two polls.
type Kind int

const (
	KindStatus Kind = iota + 1
	KindLocation
	KindAvatar
)

var kindNames = map[Kind]string{
	KindStatus:   "status",
	KindLocation: "location",
	KindAvatar:   "avatar",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// MarshalText encodes the kind by name for JSON and YAML exports.
func (k Kind) MarshalText() ([]byte, error) {
	if _, ok := kindNames[k]; !ok {
		return nil, fmt.Errorf("unknown activity kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *Kind) UnmarshalText(text []byte) error {
	for kind, name := range kindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown activity kind %q", text)
}

// Event is one observed change. From and To are empty for avatar changes.
type Event struct {
	ID          string    `json:"id" yaml:"id"`
	Kind        Kind      `json:"kind" yaml:"kind"`
	FriendID    string    `json:"friendId" yaml:"friendId"`
	DisplayName string    `json:"displayName,omitempty" yaml:"displayName,omitempty"`
	From        string    `json:"from,omitempty" yaml:"from,omitempty"`
	To          string    `json:"to,omitempty" yaml:"to,omitempty"`
	At          time.Time `json:"at" yaml:"at"`
}

// EventID builds the de-duplication key for an event: friend, kind and
// emission time.
func EventID(friendID string, kind Kind, at time.Time) string {
	return friendID + ":" + kind.String() + ":" + strconv.FormatInt(at.UnixNano(), 10)
}

func newEvent(kind Kind, friendID, name, from, to string, at time.Time) Event {
	return Event{
		ID:          EventID(friendID, kind, at),
		Kind:        kind,
		FriendID:    friendID,
		DisplayName: name,
		From:        from,
		To:          to,
		At:          at,
	}
}
