package vrchat

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/publicsuffix"

	"github.com/five82/vrcpulse/internal/clock"
	"github.com/five82/vrcpulse/internal/state"
)

const (
	DefaultBaseURL   = "https://api.vrchat.cloud/api/1"
	DefaultUserAgent = "vrcpulse/0.1 (+https://github.com/five82/vrcpulse)"
	requestTimeout   = 15 * time.Second

	friendsPageSize = 100
	maxFriendPages  = 20
	maxBodyBytes    = 8 << 20
)

// Options configure a Client.
type Options struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration

	// UnauthorizedMeansSecondFactor is passed to the Classifier.
	UnauthorizedMeansSecondFactor bool

	// Transport overrides the HTTP round tripper, mainly for tests.
	Transport http.RoundTripper

	// Clock resolves HTTP-date Retry-After hints. Defaults to the wall
	// clock.
	Clock clock.Clock

	Logger zerolog.Logger
}

// Client talks to the VRChat REST API. Authentication state lives in the
// cookie jar; credentials are only used to build the Authorization header
// of a single request.
type Client struct {
	baseURL    *url.URL
	http       *http.Client
	jar        *resettableJar
	userAgent  string
	classifier Classifier
	clock      clock.Clock
	log        zerolog.Logger
}

// NewClient builds a Client from opts, filling defaults.
func NewClient(opts Options) (*Client, error) {
	base, err := parseBaseURL(opts.BaseURL)
	if err != nil {
		return nil, err
	}
	jar, err := newResettableJar()
	if err != nil {
		return nil, err
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = requestTimeout
	}
	userAgent := strings.TrimSpace(opts.UserAgent)
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	return &Client{
		baseURL: base,
		http: &http.Client{
			Timeout:   timeout,
			Jar:       jar,
			Transport: opts.Transport,
		},
		jar:        jar,
		userAgent:  userAgent,
		classifier: Classifier{UnauthorizedMeansSecondFactor: opts.UnauthorizedMeansSecondFactor},
		clock:      clk,
		log:        opts.Logger,
	}, nil
}

// Login authenticates with identifier and secret, completing the second
// factor with code when the account requires one. A non-nil error is
// always an *Error; a second-factor prompt is reported as
// KindSecondFactorRequired.
//
// Every call starts with the basic-auth lookup, so a code is only sent
// when that lookup succeeds. If a bare 401 was read as a second-factor
// prompt, retrying with a code fails the same lookup again and never
// reaches verification.
func (c *Client) Login(ctx context.Context, identifier, secret []byte, code string) (*Session, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}

	user, err := c.fetchUser(ctx, basicAuth(identifier, secret), StageCredentials)
	if err != nil {
		return nil, err
	}
	if len(user.RequiresTwoFactorAuth) == 0 {
		return user.session(), nil
	}

	code = strings.TrimSpace(code)
	if code == "" {
		return nil, &Error{
			Kind:    c.classifier.Classify(Response{Stage: StageCredentials, Status: http.StatusOK, TwoFactorMethods: user.RequiresTwoFactorAuth}),
			Status:  http.StatusOK,
			Message: "second factor required (" + strings.Join(user.RequiresTwoFactorAuth, ", ") + ")",
		}
	}

	if err := c.verify(ctx, user.RequiresTwoFactorAuth, code); err != nil {
		return nil, err
	}

	user, err = c.fetchUser(ctx, "", StageSecondFactor)
	if err != nil {
		return nil, err
	}
	if len(user.RequiresTwoFactorAuth) > 0 {
		return nil, &Error{
			Kind:    c.classifier.Classify(Response{Stage: StageSecondFactor, Status: http.StatusOK, TwoFactorMethods: user.RequiresTwoFactorAuth}),
			Status:  http.StatusOK,
			Message: "second factor not accepted",
		}
	}
	return user.session(), nil
}

// FetchFriends returns online friends followed by offline friends. Any
// failure is an *Error of KindTransientPollFailure or KindThrottled.
// Each list is read for at most maxFriendPages pages; hitting that cap
// is logged as a warning since later friends are not seen.
func (c *Client) FetchFriends(ctx context.Context) ([]state.Friend, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}

	var out []state.Friend
	for _, offline := range []bool{false, true} {
		for page := 0; ; page++ {
			if page == maxFriendPages {
				c.log.Warn().
					Bool("offline", offline).
					Int("pages", maxFriendPages).
					Int("page_size", friendsPageSize).
					Msg("friends list reached page limit, later friends are not tracked")
				break
			}
			query := url.Values{}
			query.Set("offline", strconv.FormatBool(offline))
			query.Set("n", strconv.Itoa(friendsPageSize))
			query.Set("offset", strconv.Itoa(page*friendsPageSize))

			resp, body, err := c.send(ctx, http.MethodGet, []string{"auth", "user", "friends"}, query, nil, "")
			if err != nil {
				return nil, &Error{Kind: KindTransientPollFailure, Err: err}
			}
			if !success(resp) {
				return nil, c.failure(StageFriends, resp, body)
			}

			var batch []friend
			if err := json.Unmarshal(body, &batch); err != nil {
				return nil, &Error{Kind: KindTransientPollFailure, Status: resp.StatusCode, Err: fmt.Errorf("decode friends: %w", err)}
			}
			for _, f := range batch {
				if f.ID == "" {
					continue
				}
				out = append(out, f.snapshot(offline))
			}
			if len(batch) < friendsPageSize {
				break
			}
		}
	}
	return out, nil
}

// Logout ends the remote session and drops every cookie. The cookies are
// dropped even when the request fails.
func (c *Client) Logout(ctx context.Context) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	defer c.jar.Reset()

	resp, body, err := c.send(ctx, http.MethodPut, []string{"logout"}, nil, nil, "")
	if err != nil {
		return &Error{Kind: KindUnclassified, Err: err}
	}
	if !success(resp) {
		return &Error{Kind: KindUnclassified, Status: resp.StatusCode, Message: errorMessage(body)}
	}
	return nil
}

func (c *Client) fetchUser(ctx context.Context, authorization string, stage Stage) (currentUser, error) {
	resp, body, err := c.send(ctx, http.MethodGet, []string{"auth", "user"}, nil, nil, authorization)
	if err != nil {
		return currentUser{}, &Error{Kind: KindUnclassified, Err: err}
	}
	if !success(resp) {
		return currentUser{}, c.failure(stage, resp, body)
	}
	var user currentUser
	if err := json.Unmarshal(body, &user); err != nil {
		return currentUser{}, &Error{Kind: KindUnclassified, Status: resp.StatusCode, Err: fmt.Errorf("decode user: %w", err)}
	}
	return user, nil
}

func (c *Client) verify(ctx context.Context, methods []string, code string) error {
	resp, body, err := c.send(ctx, http.MethodPost,
		[]string{"auth", "twofactorauth", verifyMethod(methods, code), "verify"},
		nil, verifyRequest{Code: code}, "")
	if err != nil {
		return &Error{Kind: KindUnclassified, Err: err}
	}
	if !success(resp) {
		return c.failure(StageSecondFactor, resp, body)
	}

	var payload verifyResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return &Error{Kind: KindUnclassified, Status: resp.StatusCode, Err: fmt.Errorf("decode verify: %w", err)}
	}
	kind := c.classifier.Classify(Response{Stage: StageSecondFactor, Status: resp.StatusCode, Verified: payload.Verified})
	if kind != KindNone {
		return &Error{Kind: kind, Status: resp.StatusCode, Message: "code not verified"}
	}
	return nil
}

func (c *Client) failure(stage Stage, resp *http.Response, body []byte) *Error {
	msg := errorMessage(body)
	return &Error{
		Kind:       c.classifier.Classify(Response{Stage: stage, Status: resp.StatusCode, Message: msg}),
		Status:     resp.StatusCode,
		Message:    msg,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), c.clock.Now()),
	}
}

// send performs one request and returns the response with its body read
// and closed.
func (c *Client) send(ctx context.Context, method string, segments []string, query url.Values, payload any, authorization string) (*http.Response, []byte, error) {
	reqURL := c.baseURL.JoinPath(segments...)
	if len(query) > 0 {
		reqURL.RawQuery = query.Encode()
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), body)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}
	return resp, data, nil
}

func success(resp *http.Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// verifyMethod picks the verification endpoint for the methods the
// account offers. Eight-character codes are recovery codes.
func verifyMethod(methods []string, code string) string {
	has := func(name string) bool {
		for _, m := range methods {
			if strings.EqualFold(m, name) {
				return true
			}
		}
		return false
	}
	switch {
	case len(code) == 8 && has("otp"):
		return "otp"
	case has("totp"):
		return "totp"
	case has("emailOtp"):
		return "emailotp"
	case has("otp"):
		return "otp"
	default:
		return "totp"
	}
}

// basicAuth url-encodes both halves before base64, as the API expects.
func basicAuth(identifier, secret []byte) string {
	user := strings.ReplaceAll(url.QueryEscape(string(identifier)), "+", "%20")
	pass := strings.ReplaceAll(url.QueryEscape(string(secret)), "+", "%20")
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

func errorMessage(body []byte) string {
	var payload apiError
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		return strings.Trim(strings.TrimSpace(payload.Error.Message), `"`)
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = DefaultBaseURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse api url %q: %w", raw, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse api url %q: missing host", raw)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

// resettableJar lets Logout drop every cookie without swapping the jar on
// a shared http.Client.
type resettableJar struct {
	mu    sync.RWMutex
	inner *cookiejar.Jar
}

func newResettableJar() (*resettableJar, error) {
	inner, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return &resettableJar{inner: inner}, nil
}

func (j *resettableJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	j.inner.SetCookies(u, cookies)
}

func (j *resettableJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.inner.Cookies(u)
}

// Reset replaces the jar contents with an empty jar.
func (j *resettableJar) Reset() {
	inner, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return
	}
	j.mu.Lock()
	j.inner = inner
	j.mu.Unlock()
}
