// Package redis wraps go-redis with the small set of operations the
// Redis-backed proxy implementation (pkg/proxy) needs: hash storage for
// node/instance/domain snapshots, and pub/sub for the live subscriber feed.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Logger is the minimal logging interface this package depends on.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Client wraps redis.Client with common operations and instrumentation.
type Client struct {
	redis  *goredis.Client
	logger Logger
}

// NewClient creates a new Redis client wrapper.
func NewClient(redisClient *goredis.Client, logger Logger) *Client {
	return &Client{redis: redisClient, logger: logger}
}

// GetUnderlying returns the underlying redis.Client for advanced operations.
func (c *Client) GetUnderlying() *goredis.Client { return c.redis }

// Set stores a key with optional expiration (0 = no expiration).
func (c *Client) Set(ctx context.Context, key, value string, expiry time.Duration) error {
	if err := c.redis.Set(ctx, key, value, expiry).Err(); err != nil {
		c.logger.Error("redis SET failed", "key", key, "error", err)
		return fmt.Errorf("set key %s: %w", key, err)
	}
	c.logger.Debug("redis SET", "key", key)
	return nil
}

// Get retrieves a value by key.
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.redis.Get(ctx, key).Result()
	if err == goredis.Nil {
		return "", false, nil
	}
	if err != nil {
		c.logger.Error("redis GET failed", "key", key, "error", err)
		return "", false, fmt.Errorf("get key %s: %w", key, err)
	}
	return val, true, nil
}

// Delete removes one or more keys.
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		c.logger.Error("redis DEL failed", "keys", keys, "error", err)
		return fmt.Errorf("delete keys: %w", err)
	}
	return nil
}

// SetHash sets a hash field value.
func (c *Client) SetHash(ctx context.Context, key, field, value string) error {
	if err := c.redis.HSet(ctx, key, field, value).Err(); err != nil {
		c.logger.Error("redis HSET failed", "key", key, "field", field, "error", err)
		return fmt.Errorf("set hash %s field %s: %w", key, field, err)
	}
	return nil
}

// DeleteHashField removes one field of a hash.
func (c *Client) DeleteHashField(ctx context.Context, key, field string) error {
	if err := c.redis.HDel(ctx, key, field).Err(); err != nil {
		c.logger.Error("redis HDEL failed", "key", key, "field", field, "error", err)
		return fmt.Errorf("delete hash %s field %s: %w", key, field, err)
	}
	return nil
}

// GetAllHash retrieves all fields and values of a hash.
func (c *Client) GetAllHash(ctx context.Context, key string) (map[string]string, error) {
	val, err := c.redis.HGetAll(ctx, key).Result()
	if err != nil {
		c.logger.Error("redis HGETALL failed", "key", key, "error", err)
		return nil, fmt.Errorf("get all hash fields %s: %w", key, err)
	}
	return val, nil
}

// PublishEvent publishes an event to a Redis channel.
func (c *Client) PublishEvent(ctx context.Context, channel string, message string) error {
	if err := c.redis.Publish(ctx, channel, message).Err(); err != nil {
		c.logger.Error("redis PUBLISH failed", "channel", channel, "error", err)
		return fmt.Errorf("publish to channel %s: %w", channel, err)
	}
	return nil
}

// Subscribe subscribes to a Redis pub/sub channel.
func (c *Client) Subscribe(ctx context.Context, channel string) *goredis.PubSub {
	return c.redis.Subscribe(ctx, channel)
}
