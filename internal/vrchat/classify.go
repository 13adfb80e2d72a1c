package vrchat

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Kind is the error taxonomy every transport outcome is reduced to.
// Nothing past the transport boundary looks at raw payloads.
type Kind int

const (
	KindNone Kind = iota
	KindSecondFactorRequired
	KindSecondFactorInvalid
	KindThrottled
	KindInvalidCredentials
	KindTransientPollFailure
	KindUnclassified
)

var kindNames = [...]string{
	KindNone:                 "none",
	KindSecondFactorRequired: "second_factor_required",
	KindSecondFactorInvalid:  "second_factor_invalid",
	KindThrottled:            "throttled",
	KindInvalidCredentials:   "invalid_credentials",
	KindTransientPollFailure: "transient_poll_failure",
	KindUnclassified:         "unclassified",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a classified transport failure.
type Error struct {
	Kind       Kind
	Status     int           // HTTP status, zero for network errors
	Message    string        // remote message, never contains credentials
	RetryAfter time.Duration // remote hint, zero when absent
	Err        error         // underlying network or decode error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the classification carried by err. Errors that were not
// produced by the classifier are Unclassified.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnclassified
}

// RetryAfterOf returns the remote retry hint carried by err, if any.
func RetryAfterOf(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// Stage says which step of a request produced a response.
type Stage int

const (
	StageCredentials  Stage = iota // basic-auth user lookup
	StageSecondFactor              // code verification and the lookup after it
	StageFriends                   // friends polling
)

// Response is the classifier's view of one remote reply.
type Response struct {
	Stage   Stage
	Status  int
	Message string

	// Structured flags, preferred over everything else.
	TwoFactorMethods []string
	Verified         *bool
}

// Classifier maps responses to Kinds. The fallback order is fixed:
// structured flag, then known phrases in the message, then HTTP status.
// A 429 always classifies as KindThrottled once flags are checked.
type Classifier struct {
	// UnauthorizedMeansSecondFactor treats a bare 401 on the credentials
	// step as a second-factor prompt. The remote service answers both
	// "needs 2FA" and "bad password" with 401 in some paths, so this can
	// misread genuinely wrong credentials. When it does, every code the
	// user submits repeats the same failing credentials lookup, gets the
	// same 401 and is reported as an invalid code; the code itself is
	// never sent. Only Disconnect ends that loop.
	UnauthorizedMeansSecondFactor bool
}

var (
	throttlePhrases = []string{"too many requests", "rate limit", "ratelimit", "slow down"}

	invalidCodePhrases = []string{
		"invalid code", "code is invalid", "incorrect code", "wrong code",
		"code expired", "expired code", "verification failed", "invalid otp", "invalid totp",
	}

	secondFactorPhrases = []string{
		"two-factor", "two factor", "2fa", "twofactorauth", "verification code",
		"requires two", "one-time code", "emailotp",
	}

	invalidCredentialPhrases = []string{
		"invalid username", "invalid password", "incorrect password",
		"invalid credentials", "wrong password", "password is incorrect",
	}
)

// Classify reduces r to a Kind.
func (c Classifier) Classify(r Response) Kind {
	if k, ok := classifyFlags(r); ok {
		return k
	}
	if r.Status >= 200 && r.Status < 300 {
		return KindNone
	}
	// A 429 is unambiguous whatever the message says.
	if r.Status == http.StatusTooManyRequests {
		return KindThrottled
	}
	if r.Stage == StageFriends {
		return KindTransientPollFailure
	}
	if k, ok := classifyPhrases(r); ok {
		return k
	}
	return c.classifyStatus(r)
}

func classifyFlags(r Response) (Kind, bool) {
	if len(r.TwoFactorMethods) > 0 {
		if r.Stage == StageSecondFactor {
			return KindSecondFactorInvalid, true
		}
		return KindSecondFactorRequired, true
	}
	if r.Verified != nil && !*r.Verified {
		return KindSecondFactorInvalid, true
	}
	return KindNone, false
}

func classifyPhrases(r Response) (Kind, bool) {
	msg := strings.ToLower(r.Message)
	if msg == "" {
		return KindNone, false
	}
	switch {
	case containsAny(msg, throttlePhrases):
		return KindThrottled, true
	case r.Stage == StageSecondFactor && containsAny(msg, invalidCodePhrases):
		return KindSecondFactorInvalid, true
	case containsAny(msg, secondFactorPhrases):
		if r.Stage == StageSecondFactor {
			return KindSecondFactorInvalid, true
		}
		return KindSecondFactorRequired, true
	case containsAny(msg, invalidCredentialPhrases):
		return KindInvalidCredentials, true
	}
	return KindNone, false
}

func (c Classifier) classifyStatus(r Response) Kind {
	switch r.Status {
	case http.StatusTooManyRequests:
		return KindThrottled
	case http.StatusUnauthorized:
		if r.Stage == StageSecondFactor {
			return KindSecondFactorInvalid
		}
		if c.UnauthorizedMeansSecondFactor {
			return KindSecondFactorRequired
		}
		return KindInvalidCredentials
	case http.StatusBadRequest:
		if r.Stage == StageSecondFactor {
			return KindSecondFactorInvalid
		}
		return KindUnclassified
	case http.StatusForbidden:
		return KindInvalidCredentials
	default:
		return KindUnclassified
	}
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
