// Package ratelimit provides fixed-window request counters keyed by
// (principal, endpoint).
//
// Every implementation exposes a single atomic Allow operation that checks
// the current window and increments the counter in one step. The in-process
// Memory limiter suits a single instance; the Redis and Postgres limiters
// share state across stateless workers.
//
//	limiter := ratelimit.NewMemory(ratelimit.WithWindow(time.Hour))
//	defer limiter.Close()
//
//	res, err := limiter.Allow(ctx, apiKey, "upload", 100)
//	if err != nil {
//		return err
//	}
//	if !res.Admitted {
//		// reject with Retry-After: res.RetryAfter
//	}
package ratelimit
