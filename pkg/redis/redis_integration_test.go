//go:build integration

package redis_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/cdngate/pkg/redis"
)

func TestConnect(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := redis.Connect(ctx, redis.Config{Addr: addr})
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, redis.Healthcheck(client)(ctx))
}
