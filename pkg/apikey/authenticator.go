package apikey

import (
	"context"
	"time"

	"github.com/dmitrymomot/cdngate/pkg/ratelimit"
)

// DefaultRateLimit is the per-window request budget for keys without their
// own limit.
const DefaultRateLimit = 1000

// Authenticator validates presented API keys and composes with a rate
// limiter: authentication and the limiter's atomic check-and-increment form
// one admission decision.
type Authenticator struct {
	store        Store
	limiter      ratelimit.Limiter
	now          func() time.Time
	defaultLimit int
}

// Option configures the Authenticator.
type Option func(*Authenticator)

// WithDefaultLimit sets the request budget for keys without their own limit.
func WithDefaultLimit(limit int) Option {
	return func(a *Authenticator) {
		if limit > 0 {
			a.defaultLimit = limit
		}
	}
}

// WithClock sets the time source. Used by tests to control key expiry.
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAuthenticator creates an Authenticator over the given store and limiter.
func NewAuthenticator(store Store, limiter ratelimit.Limiter, opts ...Option) *Authenticator {
	a := &Authenticator{
		store:        store,
		limiter:      limiter,
		now:          time.Now,
		defaultLimit: DefaultRateLimit,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authenticate resolves a presented key and counts the request against the
// key's budget for the given endpoint. Failure modes, in order:
//
//   - ErrUnauthorized: no key presented, unknown key, or non-active status
//   - ErrExpiredKey: valid key past its expiry
//   - *RateLimitedError (wrapping ErrRateLimited): window budget exhausted
//
// On success the request has already been counted; the returned rate-limit
// state reflects it.
func (a *Authenticator) Authenticate(ctx context.Context, presentedKey, endpoint string) (*Result, error) {
	if presentedKey == "" {
		return nil, ErrUnauthorized
	}

	rec, err := a.store.FindActive(ctx, presentedKey)
	if err != nil {
		return nil, err
	}

	if rec.ExpiredAt != nil && !rec.ExpiredAt.After(a.now()) {
		return nil, ErrExpiredKey
	}

	limit := a.defaultLimit
	if rec.RateLimit != nil && *rec.RateLimit > 0 {
		limit = *rec.RateLimit
	}

	res, err := a.limiter.Allow(ctx, rec.Key, endpoint, limit)
	if err != nil {
		return nil, err
	}
	if !res.Admitted {
		return nil, &RateLimitedError{
			RetryAfter: res.RetryAfter,
			Limit:      res.Limit,
			WindowEnd:  res.WindowEnd,
		}
	}

	// Advisory lifetime counter; the limiter's window count is the
	// authoritative admission state.
	_ = a.store.IncrementUsage(ctx, rec.Key)

	return &Result{Record: rec, RateLimit: res}, nil
}
