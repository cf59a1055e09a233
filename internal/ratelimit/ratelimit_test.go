package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(store Store, at *time.Time) *Limiter {
	l := NewLimiter(store)
	l.now = func() time.Time { return *at }
	return l
}

func TestLimiterAllowsUpToMax(t *testing.T) {
	now := time.Unix(1700000000, 0)
	l := newTestLimiter(NewMemoryStore(), &now)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		res, err := l.Check(ctx, "ip:10.0.0.1", 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, 4-i, res.Remaining)
		now = now.Add(time.Second)
	}

	res, err := l.Check(ctx, "ip:10.0.0.1", 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
}

func TestLimiterWindowSlides(t *testing.T) {
	now := time.Unix(1700000000, 0)
	l := newTestLimiter(NewMemoryStore(), &now)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := l.Check(ctx, "ip:10.0.0.2", 3, time.Minute)
		require.NoError(t, err)
		require.True(t, res.Allowed)
	}

	res, err := l.Check(ctx, "ip:10.0.0.2", 3, time.Minute)
	require.NoError(t, err)
	require.False(t, res.Allowed)

	// Once the first request ages out, capacity frees up.
	now = now.Add(61 * time.Second)
	res, err = l.Check(ctx, "ip:10.0.0.2", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestLimiterDenialDoesNotExtendWindow(t *testing.T) {
	now := time.Unix(1700000000, 0)
	l := newTestLimiter(NewMemoryStore(), &now)
	ctx := context.Background()

	res, err := l.Check(ctx, "ip:10.0.0.3", 1, time.Minute)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	// Hammering while denied must not push the reset further out.
	for i := 0; i < 10; i++ {
		now = now.Add(time.Second)
		res, err = l.Check(ctx, "ip:10.0.0.3", 1, time.Minute)
		require.NoError(t, err)
		require.False(t, res.Allowed)
	}

	now = now.Add(51 * time.Second) // 61s after the only allowed request
	res, err = l.Check(ctx, "ip:10.0.0.3", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestLimiterRetryAfterTracksOldestEntry(t *testing.T) {
	now := time.Unix(1700000000, 0)
	l := newTestLimiter(NewMemoryStore(), &now)
	ctx := context.Background()

	res, err := l.Check(ctx, "user:42", 1, time.Minute)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	now = now.Add(20 * time.Second)
	res, err = l.Check(ctx, "user:42", 1, time.Minute)
	require.NoError(t, err)
	require.False(t, res.Allowed)
	assert.Equal(t, 40*time.Second, res.RetryAfter)
	assert.Equal(t, time.Unix(1700000000, 0).Add(time.Minute), res.ResetTime)
}

func TestLimiterIdentifiersAreIndependent(t *testing.T) {
	now := time.Unix(1700000000, 0)
	l := newTestLimiter(NewMemoryStore(), &now)
	ctx := context.Background()

	res, err := l.Check(ctx, "ip:10.0.0.4", 1, time.Minute)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	res, err = l.Check(ctx, "ip:10.0.0.4", 1, time.Minute)
	require.NoError(t, err)
	require.False(t, res.Allowed)

	res, err = l.Check(ctx, "ip:10.0.0.5", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "other identifiers keep their own budget")
}

type failingStore struct{}

func (failingStore) Slide(context.Context, string, time.Time, time.Duration, int) (bool, int, time.Time, error) {
	return false, 0, time.Time{}, errors.New("store unavailable")
}

func TestLimiterDegradesOpenOnStoreFailure(t *testing.T) {
	now := time.Unix(1700000000, 0)
	l := newTestLimiter(failingStore{}, &now)

	res, err := l.Check(context.Background(), "ip:10.0.0.6", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestMemoryStoreSweep(t *testing.T) {
	store := NewMemoryStore()
	now := time.Unix(1700000000, 0)
	ctx := context.Background()

	_, _, _, err := store.Slide(ctx, "ip:stale", now, time.Minute, 10)
	require.NoError(t, err)
	_, _, _, err = store.Slide(ctx, "ip:fresh", now.Add(2*time.Hour), time.Minute, 10)
	require.NoError(t, err)
	require.Equal(t, 2, store.Len())

	// Retention cutoff one hour after the stale entry drops only that one.
	store.sweep(now.Add(time.Hour))
	assert.Equal(t, 1, store.Len())
}
