package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whispr-service/internal/client"
)

func TestRateLimitWindow(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	conn := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = conn.Close() })
	limiter := NewRateLimitCache(client.NewRedisClientFromConn(conn, "test"), 2, time.Minute)

	for i := 0; i < 2; i++ {
		ok, err := limiter.Allow(ctx, "broadcast:alice")
		require.NoError(t, err)
		assert.True(t, ok, "call %d", i)
	}
	ok, err := limiter.Allow(ctx, "broadcast:alice")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = limiter.Allow(ctx, "broadcast:bob")
	require.NoError(t, err)
	assert.True(t, ok, "keys are counted separately")

	mr.FastForward(time.Minute + time.Second)
	ok, err = limiter.Allow(ctx, "broadcast:alice")
	require.NoError(t, err)
	assert.True(t, ok, "a new window starts after expiry")

	require.NoError(t, limiter.ResetCounter(ctx, "broadcast:bob"))
	n, err := limiter.IncrementCounter(ctx, "broadcast:bob")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
