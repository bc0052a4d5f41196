package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"whispr-service/internal/client"
	"whispr-service/internal/util"
)

const rateLimitPrefix = "rate_limit"

// RateLimitCache counts actions per key in fixed windows shared by every bot
// instance on the same Redis.
type RateLimitCache struct {
	client *client.RedisClient
	limit  int64
	window time.Duration
}

func NewRateLimitCache(c *client.RedisClient, limit int, window time.Duration) *RateLimitCache {
	return &RateLimitCache{client: c, limit: int64(limit), window: window}
}

// IncrementCounter bumps key's counter in the current window and returns the new count.
func (c *RateLimitCache) IncrementCounter(ctx context.Context, key string) (int64, error) {
	rateLimitKey := c.client.Key(rateLimitPrefix, key)

	count, err := c.client.Client.Incr(ctx, rateLimitKey).Result()
	if err != nil {
		util.Error("Failed to increment rate limit counter", zap.String("key", key), zap.Error(err))
		return 0, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}
	if count == 1 {
		if err := c.client.Client.Expire(ctx, rateLimitKey, c.window).Err(); err != nil {
			return count, fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}

	util.Debug("Rate limit counter incremented", zap.String("key", key), zap.Int64("count", count))
	return count, nil
}

// Allow counts one action for key and reports whether it is within the limit.
func (c *RateLimitCache) Allow(ctx context.Context, key string) (bool, error) {
	count, err := c.IncrementCounter(ctx, key)
	if err != nil {
		return false, err
	}
	return count <= c.limit, nil
}

func (c *RateLimitCache) ResetCounter(ctx context.Context, key string) error {
	if err := c.client.Client.Del(ctx, c.client.Key(rateLimitPrefix, key)).Err(); err != nil {
		return fmt.Errorf("failed to reset rate limit counter: %w", err)
	}
	return nil
}
