// Package redis establishes the Redis connection used by the rate limiter.
package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrConnectFailed is returned when the server cannot be reached within the
// configured retry budget.
var ErrConnectFailed = errors.New("redis: failed to connect")

// Config holds Redis connection parameters.
type Config struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// Pool sizing. Zero values keep go-redis defaults.
	PoolSize     int `yaml:"pool_size"`
	MinIdleConns int `yaml:"min_idle_conns"`

	// Retry behavior for transient startup failures.
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"-"`
}

// Connect opens a client and verifies it with a ping, retrying with linear
// backoff.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	attempts := max(cfg.RetryAttempts, 1)
	interval := cfg.RetryInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	var lastErr error
	for i := range attempts {
		if lastErr = client.Ping(ctx).Err(); lastErr == nil {
			return client, nil
		}

		select {
		case <-ctx.Done():
			_ = client.Close()
			return nil, errors.Join(ErrConnectFailed, ctx.Err())
		case <-time.After(time.Duration(i+1) * interval):
		}
	}

	_ = client.Close()
	return nil, errors.Join(ErrConnectFailed, lastErr)
}

// Healthcheck returns a ping function usable by readiness probes.
func Healthcheck(client *redis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}
