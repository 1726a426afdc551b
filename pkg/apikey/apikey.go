package apikey

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrymomot/cdngate/pkg/ratelimit"
)

// Errors.
var (
	// ErrUnauthorized covers a missing key, an unknown key, and a key whose
	// status is not active. The three are indistinguishable to the caller.
	ErrUnauthorized = errors.New("apikey: invalid or missing API key")

	// ErrExpiredKey means the credential was valid but its expiry has passed.
	ErrExpiredKey = errors.New("apikey: API key expired")

	// ErrRateLimited means the key's request budget for the current window
	// is exhausted. Returned wrapped in a *RateLimitedError.
	ErrRateLimited = errors.New("apikey: rate limit exceeded")
)

// Status values for API key records.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusRevoked  = "revoked"
)

// Record is a provisioned API key. Keys are created out-of-band and never
// physically deleted; deactivation flips Status instead.
type Record struct {
	// Key is the opaque credential string presented by callers.
	Key string

	// Status is one of active, inactive, or revoked. Only active keys
	// authenticate.
	Status string

	// RateLimit overrides the default per-window request budget.
	// Nil means use the authenticator's default.
	RateLimit *int

	// UsageCount is an advisory lifetime counter, reset out-of-band.
	UsageCount int64

	// ExpiredAt, when set, invalidates the key from that instant.
	ExpiredAt *time.Time

	CreatedAt time.Time
}

// Store persists API key records.
type Store interface {
	// FindActive returns the record for key if its status is active.
	// Returns ErrUnauthorized for unknown or non-active keys.
	FindActive(ctx context.Context, key string) (*Record, error)

	// IncrementUsage advances the advisory usage counter. Best-effort.
	IncrementUsage(ctx context.Context, key string) error

	// ResetUsage zeroes every key's usage counter, for scheduled resets.
	ResetUsage(ctx context.Context) error
}

// RateLimitedError carries the retry interval alongside ErrRateLimited.
type RateLimitedError struct {
	RetryAfter time.Duration
	Limit      int
	WindowEnd  time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("apikey: rate limit of %d exceeded, retry in %s", e.Limit, e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error {
	return ErrRateLimited
}

// Result is a successful authentication outcome.
type Result struct {
	// Record is the resolved credential.
	Record *Record

	// RateLimit is the rate-limiter state after this request was counted,
	// for response headers.
	RateLimit ratelimit.Result
}
