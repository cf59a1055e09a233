package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/sliding_window.lua
var slidingWindowScript string

type Client struct {
	rdb          *redis.Client
	windowScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:          rdb,
		windowScript: redis.NewScript(slidingWindowScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// SlideWindow atomically prunes expired timestamps for an identifier, counts
// the survivors, and appends now when the count is under max.
// Returns allowed, the post-call count, and the oldest surviving timestamp.
func (c *Client) SlideWindow(ctx context.Context, identifier string, now time.Time, window time.Duration, max int) (bool, int, time.Time, error) {
	key := fmt.Sprintf("ratelimit:%s", identifier)

	result, err := c.windowScript.Run(ctx, c.rdb, []string{key},
		now.UnixMilli(), window.Milliseconds(), max).Result()
	if err != nil {
		return false, 0, time.Time{}, fmt.Errorf("sliding window script failed: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 3 {
		return false, 0, time.Time{}, fmt.Errorf("unexpected script result shape")
	}

	allowed, _ := values[0].(int64)
	count, _ := values[1].(int64)
	oldestMs, _ := values[2].(int64)

	oldest := now
	if oldestMs > 0 {
		oldest = time.UnixMilli(oldestMs)
	}

	return allowed == 1, int(count), oldest, nil
}

// AcquireLock acquires a distributed lock
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), "1", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:%s", lockKey)).Err()
}
