package ratelimit

import (
	"context"
	"time"

	"marketplace-payments/internal/redisclient"
)

// RedisStore backs the sliding window with a Redis sorted set per identifier,
// so the limit holds across service instances. Keys expire with the window;
// no sweeper is needed.
type RedisStore struct {
	client *redisclient.Client
}

// NewRedisStore creates a Redis-backed sliding window store
func NewRedisStore(client *redisclient.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Slide implements Store
func (r *RedisStore) Slide(ctx context.Context, identifier string, now time.Time, window time.Duration, max int) (bool, int, time.Time, error) {
	return r.client.SlideWindow(ctx, identifier, now, window, max)
}
