package activity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/vrcpulse/internal/state"
)

var now = time.Date(2026, 5, 4, 20, 15, 0, 0, time.UTC)

func friend(id, status, location, avatar string) state.Friend {
	return state.Friend{ID: id, DisplayName: "name-" + id, PresenceStatus: status, LocationToken: location, AvatarURL: avatar}
}

func TestDiff_FirstSightingEmitsNothing(t *testing.T) {
	got := Diff(nil, friend("usr_1", "online", "wrld_1:1", "a.png"), now)
	assert.Empty(t, got)
}

func TestDiff_Rules(t *testing.T) {
	base := friend("usr_1", "online", "wrld_lobby", "a.png")

	tests := []struct {
		name  string
		next  state.Friend
		kinds []Kind
	}{
		{"unchanged", base, nil},
		{"status", friend("usr_1", "busy", "wrld_lobby", "a.png"), []Kind{KindStatus}},
		{"location", friend("usr_1", "online", "private", "a.png"), []Kind{KindLocation}},
		{"avatar", friend("usr_1", "online", "wrld_lobby", "b.png"), []Kind{KindAvatar}},
		{"all three", friend("usr_1", "ask me", "offline", "c.png"), []Kind{KindStatus, KindLocation, KindAvatar}},
		{"display name only", state.Friend{ID: "usr_1", DisplayName: "renamed", PresenceStatus: "online", LocationToken: "wrld_lobby", AvatarURL: "a.png"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev := base
			got := Diff(&prev, tt.next, now)
			var kinds []Kind
			for _, e := range got {
				kinds = append(kinds, e.Kind)
				assert.Equal(t, "usr_1", e.FriendID)
				assert.Equal(t, now, e.At)
				assert.Equal(t, EventID("usr_1", e.Kind, now), e.ID)
			}
			assert.Equal(t, tt.kinds, kinds)
		})
	}
}

func TestDiff_StatusCarriesFromAndTo(t *testing.T) {
	prev := friend("usr_1", "online", "wrld_lobby", "")
	got := Diff(&prev, friend("usr_1", "busy", "wrld_lobby", ""), now)

	require.Len(t, got, 1)
	assert.Equal(t, KindStatus, got[0].Kind)
	assert.Equal(t, "online", got[0].From)
	assert.Equal(t, "busy", got[0].To)
}

func TestDiff_IsPure(t *testing.T) {
	prev := friend("usr_1", "online", "a", "x")
	next := friend("usr_1", "busy", "b", "y")

	first := Diff(&prev, next, now)
	second := Diff(&prev, next, now)
	assert.Equal(t, first, second)
	assert.Equal(t, friend("usr_1", "online", "a", "x"), prev, "diff must not mutate its input")
}

func TestDiffAll_OrderIndependent(t *testing.T) {
	var store state.Store
	store.Update([]state.Friend{
		friend("usr_1", "online", "a", "x"),
		friend("usr_2", "online", "a", "x"),
		friend("usr_3", "online", "a", "x"),
	}, now)

	batch := []state.Friend{
		friend("usr_3", "busy", "a", "x"),
		friend("usr_1", "online", "b", "x"),
		friend("usr_2", "online", "a", "y"),
		friend("usr_4", "online", "a", "x"),
	}
	reversed := make([]state.Friend, len(batch))
	for i := range batch {
		reversed[len(batch)-1-i] = batch[i]
	}

	got := DiffAll(&store, batch, now)
	assert.Equal(t, got, DiffAll(&store, reversed, now))
	require.Len(t, got, 3, "new friend usr_4 is a first sighting")
	assert.Equal(t, []Kind{KindLocation, KindAvatar, KindStatus}, []Kind{got[0].Kind, got[1].Kind, got[2].Kind})
}

func TestDiffAll_DuplicateIDsCollapse(t *testing.T) {
	var store state.Store
	store.Update([]state.Friend{friend("usr_1", "online", "a", "x")}, now)

	got := DiffAll(&store, []state.Friend{
		friend("usr_1", "busy", "a", "x"),
		friend("usr_1", "join me", "a", "x"),
	}, now)

	require.Len(t, got, 1, "at most one event per friend and kind per poll")
	assert.Equal(t, "join me", got[0].To)
}
