package vrchat

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/vrcpulse/internal/clock"
)

// fakeAPI emulates the handful of VRChat endpoints the client uses.
type fakeAPI struct {
	t            *testing.T
	twoFactor    bool
	goodCode     string
	loginStatus  int
	loginMessage string
	retryAfter   string
	verifyStatus int
	verifyMsg    string
	verifies     atomic.Int32
	friendsCode  int
	online       int
	offline      int
	logouts      atomic.Int32
	lastAuth     atomic.Value
	lastFriendsQ atomic.Value
	friendsAuth  atomic.Bool
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/1/auth/user", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("twoFactorAuth"); err == nil && c.Value == "ok" {
			writeJSON(w, http.StatusOK, map[string]any{"id": "usr_me", "displayName": "Me", "status": "active", "currentAvatarThumbnailImageUrl": "https://img/me.png"})
			return
		}
		auth := r.Header.Get("Authorization")
		f.lastAuth.Store(auth)
		if auth == "" {
			writeError(w, http.StatusUnauthorized, `"Missing Credentials"`)
			return
		}
		if f.loginStatus != 0 {
			if f.retryAfter != "" {
				w.Header().Set("Retry-After", f.retryAfter)
			}
			writeError(w, f.loginStatus, f.loginMessage)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "auth", Value: "authcookie", Path: "/"})
		if f.twoFactor {
			writeJSON(w, http.StatusOK, map[string]any{"requiresTwoFactorAuth": []string{"totp", "otp"}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": "usr_me", "displayName": "Me", "status": "join me", "profilePicOverride": "https://img/pfp.png"})
	})
	mux.HandleFunc("POST /api/1/auth/twofactorauth/totp/verify", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("auth"); err != nil {
			writeError(w, http.StatusUnauthorized, `"Missing Credentials"`)
			return
		}
		f.verifies.Add(1)
		if f.verifyStatus != 0 {
			if f.retryAfter != "" {
				w.Header().Set("Retry-After", f.retryAfter)
			}
			writeError(w, f.verifyStatus, f.verifyMsg)
			return
		}
		var body verifyRequest
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
		if body.Code != f.goodCode {
			writeJSON(w, http.StatusOK, map[string]any{"verified": false})
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "twoFactorAuth", Value: "ok", Path: "/"})
		writeJSON(w, http.StatusOK, map[string]any{"verified": true})
	})
	mux.HandleFunc("GET /api/1/auth/user/friends", func(w http.ResponseWriter, r *http.Request) {
		_, err := r.Cookie("auth")
		f.friendsAuth.Store(err == nil)
		q := r.URL.Query()
		f.lastFriendsQ.Store(q)
		if f.friendsCode != 0 {
			writeError(w, f.friendsCode, "nope")
			return
		}
		total := f.online
		prefix := "on"
		if q.Get("offline") == "true" {
			total = f.offline
			prefix = "off"
		}
		offset, _ := strconv.Atoi(q.Get("offset"))
		n, _ := strconv.Atoi(q.Get("n"))
		var page []map[string]any
		for i := offset; i < total && i < offset+n; i++ {
			page = append(page, map[string]any{
				"id":                             fmt.Sprintf("usr_%s_%d", prefix, i),
				"displayName":                    fmt.Sprintf("%s %d", prefix, i),
				"status":                         "active",
				"location":                       "wrld_abc:123",
				"currentAvatarThumbnailImageUrl": "https://img/a.png",
				"last_activity":                  "2026-05-01T10:00:00.000Z",
			})
		}
		if page == nil {
			page = []map[string]any{}
		}
		writeJSON(w, http.StatusOK, page)
	})
	mux.HandleFunc("PUT /api/1/logout", func(w http.ResponseWriter, r *http.Request) {
		f.logouts.Add(1)
		writeJSON(w, http.StatusOK, map[string]any{"success": map[string]any{"message": "Ok!"}})
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": map[string]any{"message": msg, "status_code": status}})
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	return newTestClientWith(t, api, Options{UnauthorizedMeansSecondFactor: true})
}

func newTestClientWith(t *testing.T, api *fakeAPI, opts Options) *Client {
	t.Helper()
	api.t = t
	server := httptest.NewServer(api.handler())
	t.Cleanup(server.Close)

	opts.BaseURL = server.URL + "/api/1/"
	c, err := NewClient(opts)
	require.NoError(t, err)
	return c
}

func testCtx(t *testing.T) context.Context {
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return c
}

func TestClient_LoginWithoutSecondFactor(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api)

	sess, err := c.Login(testCtx(t), []byte("me@example.com"), []byte("p@ss word:1"), "")
	require.NoError(t, err)
	assert.Equal(t, "usr_me", sess.AccountID)
	assert.Equal(t, "Me", sess.DisplayName)
	assert.Equal(t, "join me", sess.PresenceStatus)
	assert.Equal(t, "https://img/pfp.png", sess.AvatarURL)

	auth, _ := api.lastAuth.Load().(string)
	require.True(t, strings.HasPrefix(auth, "Basic "))
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	require.NoError(t, err)
	assert.Equal(t, "me%40example.com:p%40ss%20word%3A1", string(raw))
}

func TestClient_LoginSecondFactorFlow(t *testing.T) {
	api := &fakeAPI{twoFactor: true, goodCode: "123456"}
	c := newTestClient(t, api)

	_, err := c.Login(testCtx(t), []byte("user"), []byte("pass"), "")
	assert.Equal(t, KindSecondFactorRequired, KindOf(err))

	_, err = c.Login(testCtx(t), []byte("user"), []byte("pass"), "000000")
	assert.Equal(t, KindSecondFactorInvalid, KindOf(err))

	sess, err := c.Login(testCtx(t), []byte("user"), []byte("pass"), " 123456 ")
	require.NoError(t, err)
	assert.Equal(t, "usr_me", sess.AccountID)
	assert.Equal(t, "https://img/me.png", sess.AvatarURL)
}

func TestClient_LoginFailures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		message    string
		retryAfter string
		want       Kind
		wantRetry  time.Duration
	}{
		{"invalid credentials", 401, `"Invalid Username/Email or Password"`, "", KindInvalidCredentials, 0},
		{"bare unauthorized is treated as second factor", 401, `"Missing Credentials"`, "", KindSecondFactorRequired, 0},
		{"throttled with hint", 429, "slow", "120", KindThrottled, 2 * time.Minute},
		{"server error", 502, "bad gateway", "", KindUnclassified, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{loginStatus: tt.status, loginMessage: tt.message, retryAfter: tt.retryAfter}
			c := newTestClient(t, api)

			sess, err := c.Login(testCtx(t), []byte("user"), []byte("wrongpass"), "")
			require.Error(t, err)
			assert.Nil(t, sess)
			assert.Equal(t, tt.want, KindOf(err))
			assert.Equal(t, tt.wantRetry, RetryAfterOf(err))
			assert.NotContains(t, err.Error(), "wrongpass")
		})
	}
}

func TestClient_LoginThrottledDuringVerify(t *testing.T) {
	api := &fakeAPI{
		twoFactor:    true,
		goodCode:     "123456",
		verifyStatus: http.StatusTooManyRequests,
		verifyMsg:    `"Too many 2FA attempts, try later"`,
		retryAfter:   "90",
	}
	c := newTestClient(t, api)

	_, err := c.Login(testCtx(t), []byte("user"), []byte("pass"), "123456")
	require.Error(t, err)
	assert.Equal(t, KindThrottled, KindOf(err))
	assert.Equal(t, 90*time.Second, RetryAfterOf(err))
	assert.Equal(t, int32(1), api.verifies.Load())
}

func TestClient_RetryAfterDateUsesClock(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	api := &fakeAPI{
		loginStatus:  http.StatusTooManyRequests,
		loginMessage: "slow",
		retryAfter:   now.Add(5 * time.Minute).Format(http.TimeFormat),
	}
	c := newTestClientWith(t, api, Options{Clock: clock.Fake(now)})

	_, err := c.Login(testCtx(t), []byte("user"), []byte("pass"), "")
	assert.Equal(t, KindThrottled, KindOf(err))
	assert.Equal(t, 5*time.Minute, RetryAfterOf(err))
}

func TestClient_UnauthorizedAsSecondFactorNeverSendsCode(t *testing.T) {
	api := &fakeAPI{loginStatus: http.StatusUnauthorized, loginMessage: `"Missing Credentials"`}
	c := newTestClient(t, api)

	_, err := c.Login(testCtx(t), []byte("user"), []byte("wrongpass"), "")
	require.Equal(t, KindSecondFactorRequired, KindOf(err))

	_, err = c.Login(testCtx(t), []byte("user"), []byte("wrongpass"), "123456")
	assert.Equal(t, KindSecondFactorRequired, KindOf(err))
	assert.Zero(t, api.verifies.Load(), "code is not sent when the credentials lookup fails")
}

func TestClient_LoginNetworkErrorIsUnclassified(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	base := server.URL
	server.Close()

	c, err := NewClient(Options{BaseURL: base})
	require.NoError(t, err)
	_, err = c.Login(testCtx(t), []byte("u"), []byte("p"), "")
	assert.Equal(t, KindUnclassified, KindOf(err))
}

func TestClient_FetchFriendsPagesOnlineAndOffline(t *testing.T) {
	api := &fakeAPI{online: 101, offline: 2}
	c := newTestClient(t, api)

	_, err := c.Login(testCtx(t), []byte("user"), []byte("pass"), "")
	require.NoError(t, err)

	friends, err := c.FetchFriends(testCtx(t))
	require.NoError(t, err)
	require.Len(t, friends, 103)
	assert.True(t, api.friendsAuth.Load(), "auth cookie sent with friends request")

	first := friends[0]
	assert.Equal(t, "usr_on_0", first.ID)
	assert.Equal(t, "active", first.PresenceStatus)
	assert.Equal(t, "wrld_abc:123", first.LocationToken)
	assert.Equal(t, time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC), first.LastSeenAt)

	last := friends[102]
	assert.Equal(t, "usr_off_1", last.ID)
	assert.Equal(t, "offline", last.PresenceStatus)

	q, _ := api.lastFriendsQ.Load().(url.Values)
	assert.Equal(t, "true", q.Get("offline"))
	assert.Equal(t, "100", q.Get("n"))
}

func TestClient_FetchFriendsWarnsAtPageLimit(t *testing.T) {
	var logs bytes.Buffer
	api := &fakeAPI{online: maxFriendPages*friendsPageSize + 5}
	c := newTestClientWith(t, api, Options{Logger: zerolog.New(&logs)})

	friends, err := c.FetchFriends(testCtx(t))
	require.NoError(t, err)
	assert.Len(t, friends, maxFriendPages*friendsPageSize)
	assert.Contains(t, logs.String(), "friends list reached page limit")
	assert.Contains(t, logs.String(), `"offline":false`)
	assert.NotContains(t, logs.String(), `"offline":true`)
}

func TestClient_FetchFriendsFailures(t *testing.T) {
	for status, want := range map[int]Kind{500: KindTransientPollFailure, 401: KindTransientPollFailure, 429: KindThrottled} {
		t.Run(strconv.Itoa(status), func(t *testing.T) {
			c := newTestClient(t, &fakeAPI{friendsCode: status})
			_, err := c.FetchFriends(testCtx(t))
			assert.Equal(t, want, KindOf(err))
		})
	}
}

func TestClient_LogoutDropsCookies(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api)

	_, err := c.Login(testCtx(t), []byte("user"), []byte("pass"), "")
	require.NoError(t, err)
	require.NoError(t, c.Logout(testCtx(t)))
	assert.Equal(t, int32(1), api.logouts.Load())

	_, err = c.FetchFriends(testCtx(t))
	require.NoError(t, err)
	assert.False(t, api.friendsAuth.Load(), "cookies cleared by logout")
}

func TestParseBaseURL(t *testing.T) {
	u, err := parseBaseURL("")
	require.NoError(t, err)
	assert.Equal(t, "https://api.vrchat.cloud/api/1", u.String())

	u, err = parseBaseURL("example.com/api/1/?x=1#frag")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/api/1", u.String())

	_, err = parseBaseURL("http://")
	assert.Error(t, err)
}

func TestVerifyMethod(t *testing.T) {
	assert.Equal(t, "totp", verifyMethod([]string{"totp", "otp"}, "123456"))
	assert.Equal(t, "otp", verifyMethod([]string{"totp", "otp"}, "abcd1234"))
	assert.Equal(t, "emailotp", verifyMethod([]string{"emailOtp"}, "123456"))
	assert.Equal(t, "totp", verifyMethod(nil, "123456"))
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 30*time.Second, parseRetryAfter("30", now))
	assert.Zero(t, parseRetryAfter("", now))
	assert.Zero(t, parseRetryAfter("-4", now))
	assert.Equal(t, time.Minute, parseRetryAfter(now.Add(time.Minute).Format(http.TimeFormat), now))
}
