package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// allowScript performs the whole admission decision server-side so that the
// rollover check and the increment form one atomic unit. It stores the window
// anchor and counter in a hash:
//
//	KEYS[1] = window hash key
//	ARGV[1] = now (unix milliseconds)
//	ARGV[2] = window size (milliseconds)
//	ARGV[3] = limit
//
// Returns {admitted, count, window_start_ms}.
var allowScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local size = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

local start = tonumber(redis.call("HGET", KEYS[1], "start"))
if not start or now >= start + size then
	redis.call("HSET", KEYS[1], "start", now, "count", 1)
	redis.call("PEXPIRE", KEYS[1], size * 2)
	return {1, 1, now}
end

local count = tonumber(redis.call("HGET", KEYS[1], "count")) or 0
if count >= limit then
	return {0, count, start}
end

count = redis.call("HINCRBY", KEYS[1], "count", 1)
return {1, count, start}
`)

// Redis is a fixed-window limiter backed by Redis, suitable for sharing
// counters across stateless workers. Window state expires from Redis at
// twice the window size, so no explicit cleanup task is needed.
type Redis struct {
	client redis.UniversalClient
	now    func() time.Time
	prefix string
	size   time.Duration
}

// RedisOption configures the Redis limiter.
type RedisOption func(*Redis)

// WithRedisWindow sets the fixed-window size. Default is one hour.
func WithRedisWindow(size time.Duration) RedisOption {
	return func(r *Redis) {
		if size > 0 {
			r.size = size
		}
	}
}

// WithRedisPrefix sets the key prefix. Default is "cdngate:rl".
func WithRedisPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// WithRedisClock sets the time source. Used by tests.
func WithRedisClock(now func() time.Time) RedisOption {
	return func(r *Redis) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRedis creates a Redis-backed limiter.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{
		client: client,
		now:    time.Now,
		prefix: "cdngate:rl",
		size:   DefaultWindow,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Allow implements Limiter.
func (r *Redis) Allow(ctx context.Context, principal, endpoint string, limit int) (Result, error) {
	if limit <= 0 {
		return Result{}, ErrInvalidLimit
	}

	now := r.now()
	key := fmt.Sprintf("%s:%s:%s", r.prefix, principal, endpoint)

	raw, err := allowScript.Run(ctx, r.client, []string{key},
		now.UnixMilli(), r.size.Milliseconds(), limit).Slice()
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit: redis script failed: %w", err)
	}
	if len(raw) != 3 {
		return Result{}, fmt.Errorf("ratelimit: unexpected script reply of %d elements", len(raw))
	}

	admitted := raw[0].(int64) == 1
	count := int(raw[1].(int64))
	start := time.UnixMilli(raw[2].(int64))
	end := start.Add(r.size)

	res := Result{
		Admitted:  admitted,
		Limit:     limit,
		Remaining: max(0, limit-count),
		WindowEnd: end,
	}
	if !admitted {
		res.RetryAfter = clampRetry(end.Sub(now))
	}

	return res, nil
}
