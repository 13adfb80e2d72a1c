package vrchat

import (
	"strings"
	"time"

	"github.com/five82/vrcpulse/internal/state"
)

// Session describes the authenticated account.
type Session struct {
	AccountID      string    `json:"accountId"`
	DisplayName    string    `json:"displayName"`
	AvatarURL      string    `json:"avatarUrl"`
	PresenceStatus string    `json:"status"`
	ConnectedAt    time.Time `json:"connectedAt"`
	LastSyncAt     time.Time `json:"lastSyncAt"`
}

// currentUser mirrors the subset of /auth/user the client reads. When a
// second factor is pending the payload only carries
// requiresTwoFactorAuth.
type currentUser struct {
	ID                    string   `json:"id"`
	DisplayName           string   `json:"displayName"`
	Status                string   `json:"status"`
	AvatarThumbnailURL    string   `json:"currentAvatarThumbnailImageUrl"`
	ProfilePicOverride    string   `json:"profilePicOverride"`
	RequiresTwoFactorAuth []string `json:"requiresTwoFactorAuth"`
}

func (u currentUser) session() *Session {
	return &Session{
		AccountID:      u.ID,
		DisplayName:    u.DisplayName,
		AvatarURL:      firstNonEmpty(u.ProfilePicOverride, u.AvatarThumbnailURL),
		PresenceStatus: u.Status,
	}
}

// friend mirrors one entry of /auth/user/friends.
type friend struct {
	ID                 string `json:"id"`
	DisplayName        string `json:"displayName"`
	Status             string `json:"status"`
	Location           string `json:"location"`
	AvatarThumbnailURL string `json:"currentAvatarThumbnailImageUrl"`
	ProfilePicOverride string `json:"profilePicOverride"`
	LastActivity       string `json:"last_activity"`
	LastLogin          string `json:"last_login"`
}

func (f friend) snapshot(offline bool) state.Friend {
	out := state.Friend{
		ID:             f.ID,
		DisplayName:    f.DisplayName,
		AvatarURL:      firstNonEmpty(f.ProfilePicOverride, f.AvatarThumbnailURL),
		PresenceStatus: f.Status,
		LocationToken:  f.Location,
		LastSeenAt:     parseTime(firstNonEmpty(f.LastActivity, f.LastLogin)),
	}
	if offline {
		out.PresenceStatus = "offline"
		if out.LocationToken == "" {
			out.LocationToken = "offline"
		}
	}
	return out
}

type verifyRequest struct {
	Code string `json:"code"`
}

type verifyResponse struct {
	Verified *bool `json:"verified"`
}

type apiError struct {
	Error struct {
		Message    string `json:"message"`
		StatusCode int    `json:"status_code"`
	} `json:"error"`
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
