// Package ratelimit implements fixed-window request counting per named
// policy and caller key. A window opens on the first request for a key and
// lasts Policy.Window; once the window has passed, the next request opens a
// new one with a count of 1.
package ratelimit

import (
	"context"
	"math"
	"strings"
	"time"
)

type Policy struct {
	Name    string
	Window  time.Duration
	Max     int
	Message string
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, with a minimum of 1
// for rejected requests.
func (d Decision) RetryAfterSeconds() int {
	if d.Allowed {
		return 0
	}
	secs := int(math.Ceil(d.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Limiter counts one request for key under policy and reports whether it is
// allowed. Implementations must be safe for concurrent use.
type Limiter interface {
	Allow(ctx context.Context, policy Policy, key string) (Decision, error)
}

func decide(policy Policy, count int, resetAt, now time.Time) Decision {
	d := Decision{
		Allowed:   count <= policy.Max,
		Limit:     policy.Max,
		Remaining: policy.Max - count,
		ResetAt:   resetAt,
	}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if !d.Allowed {
		d.RetryAfter = resetAt.Sub(now)
	}
	return d
}

// Policies is the set of named policies the HTTP layer applies.
type Policies struct {
	General           Policy
	Strict            Policy
	Auth              Policy
	PasswordReset     Policy
	EmailVerification Policy
}

const ipMessage = "Too many requests from this IP, please try again later."

// DefaultPolicies returns the production limits. Outside production the
// general policy is relaxed so local clients are not throttled.
func DefaultPolicies(production bool) Policies {
	general := 100
	if !production {
		general = 1000
	}
	return Policies{
		General:           Policy{Name: "general", Window: 15 * time.Minute, Max: general, Message: ipMessage},
		Strict:            Policy{Name: "strict", Window: 15 * time.Minute, Max: 5, Message: ipMessage},
		Auth:              Policy{Name: "auth", Window: 15 * time.Minute, Max: 10, Message: "Too many authentication attempts, please try again later."},
		PasswordReset:     Policy{Name: "password-reset", Window: 15 * time.Minute, Max: 3, Message: "Too many password reset requests, please try again later."},
		EmailVerification: Policy{Name: "email-verification", Window: time.Hour, Max: 5, Message: "Too many email verification requests, please try again later."},
	}
}

func IPKey(ip string) string {
	return "ip:" + ip
}

// ClientKey keys on IP and user agent together, so clients behind one NAT
// with different browsers get separate budgets.
func ClientKey(ip, userAgent string) string {
	if userAgent == "" {
		userAgent = "unknown"
	}
	return "client:" + ip + "|" + userAgent
}

func EmailKey(email string) string {
	return "email:" + strings.ToLower(strings.TrimSpace(email))
}

func storageKey(policy Policy, key string) string {
	return "ratelimit:" + policy.Name + ":" + key
}
