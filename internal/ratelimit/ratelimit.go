package ratelimit

import (
	"context"
	"time"

	"marketplace-payments/internal/util"

	"go.uber.org/zap"
)

// Result is the outcome of a limit check
type Result struct {
	Allowed    bool
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

// Store tracks recent request timestamps per identifier. Slide must prune
// entries older than the window, count the survivors, and append now only
// when the count is under max. It reports the post-call count and the oldest
// surviving timestamp.
type Store interface {
	Slide(ctx context.Context, identifier string, now time.Time, window time.Duration, max int) (allowed bool, count int, oldest time.Time, err error)
}

// Limiter applies a sliding-window request cap per identifier
type Limiter struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewLimiter creates a limiter on top of a store
func NewLimiter(store Store) *Limiter {
	return &Limiter{
		store:  store,
		logger: util.GetLogger(),
		now:    time.Now,
	}
}

// Check records a request for the identifier and reports whether it is
// within budget. On denial, RetryAfter is computed from the oldest surviving
// timestamp plus the window.
func (l *Limiter) Check(ctx context.Context, identifier string, max int, window time.Duration) (Result, error) {
	now := l.now()

	allowed, count, oldest, err := l.store.Slide(ctx, identifier, now, window, max)
	if err != nil {
		// Degrade open: a broken limiter store must not take down the
		// payment paths it protects.
		l.logger.Error("rate limit store failure, allowing request",
			zap.String("identifier", identifier),
			zap.Error(err))
		return Result{Allowed: true, Remaining: 0, ResetTime: now.Add(window)}, nil
	}

	reset := oldest.Add(window)

	if !allowed {
		retryAfter := reset.Sub(now)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return Result{
			Allowed:    false,
			Remaining:  0,
			ResetTime:  reset,
			RetryAfter: retryAfter,
		}, nil
	}

	remaining := max - count
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   true,
		Remaining: remaining,
		ResetTime: reset,
	}, nil
}
