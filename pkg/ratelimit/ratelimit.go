package ratelimit

import (
	"context"
	"errors"
	"time"
)

// DefaultWindow is the default fixed-window size for request counters.
const DefaultWindow = time.Hour

// Errors.
var (
	ErrInvalidWindow = errors.New("ratelimit: window size must be positive")
	ErrInvalidLimit  = errors.New("ratelimit: limit must be positive")
	ErrClosed        = errors.New("ratelimit: limiter is closed")
)

// Result is the outcome of a single admission decision.
type Result struct {
	// WindowEnd is when the current window rolls over and the counter resets.
	WindowEnd time.Time

	// RetryAfter is how long the caller should wait before retrying.
	// Zero when the request was admitted; at least one second otherwise.
	RetryAfter time.Duration

	// Limit is the configured maximum for the window.
	Limit int

	// Remaining is how many requests are left in the current window.
	Remaining int

	// Admitted reports whether the request was allowed.
	Admitted bool
}

// Limiter counts requests per (principal, endpoint) pair in fixed windows.
//
// Allow is the sole admission operation: it checks the current window and
// increments the counter as one atomic unit, so concurrent callers can never
// overshoot the limit by racing between the check and the increment.
type Limiter interface {
	// Allow records one request for the given principal and endpoint and
	// reports whether it fits within limit for the current window.
	// A window that has rolled over is discarded atomically; the request
	// that triggers the rollover becomes the first of the new window.
	Allow(ctx context.Context, principal, endpoint string, limit int) (Result, error)
}

// clampRetry enforces the minimum retry interval callers can act on.
func clampRetry(d time.Duration) time.Duration {
	if d < time.Second {
		return time.Second
	}
	return d
}
