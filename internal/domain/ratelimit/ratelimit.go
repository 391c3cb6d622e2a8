// Package ratelimit implements fixed-window admission control for protected
// operations.
//
// Counters are keyed by (user, resource class). A key's windows start at its
// first consumption and repeat every window length from there; the count
// resets whenever a call lands in a later window. Admins bypass the limiter
// entirely and never touch a counter.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/watchtower/internal/domain/model"
	"github.com/okian/watchtower/pkg/logger"
	"github.com/okian/watchtower/pkg/metrics"
)

// Limiter gates protected operations.
type Limiter interface {
	// Consume records one call for (claims.UserID, resourceClass) or returns
	// an error matching ErrAccessDenied when the window allowance is used up.
	Consume(ctx context.Context, claims model.UserClaims, resourceClass string) error
}

type key struct {
	userID        string
	resourceClass string
}

type counter struct {
	windowStart time.Time
	count       int
}

// FixedWindow is a concurrency-safe fixed-window Limiter.
type FixedWindow struct {
	limit  int
	window time.Duration
	now    func() time.Time
	logger logger.Logger

	mu       sync.Mutex
	counters map[key]*counter
}

// NewFixedWindow creates a limiter allowing limit calls per window.
func NewFixedWindow(limit int, window time.Duration, opts ...Option) (*FixedWindow, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidLimit, limit)
	}
	if window <= 0 {
		return nil, fmt.Errorf("%w: window must be positive, got %s", ErrInvalidLimit, window)
	}
	l := &FixedWindow{
		limit:    limit,
		window:   window,
		now:      time.Now,
		counters: make(map[key]*counter),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = logger.Get().Named("ratelimit")
	}
	return l, nil
}

// Consume implements Limiter.
func (l *FixedWindow) Consume(ctx context.Context, claims model.UserClaims, resourceClass string) error {
	if claims.IsAdmin() {
		metrics.RecordRateLimitDecision(resourceClass, "bypass")
		return nil
	}

	now := l.now()
	k := key{userID: claims.UserID, resourceClass: resourceClass}

	l.mu.Lock()
	c, ok := l.counters[k]
	if !ok {
		c = &counter{windowStart: now}
		l.counters[k] = c
	} else if elapsed := now.Sub(c.windowStart); elapsed >= l.window {
		c.windowStart = c.windowStart.Add(elapsed.Truncate(l.window))
		c.count = 0
	}
	if c.count >= l.limit {
		retryAfter := c.windowStart.Add(l.window).Sub(now)
		l.mu.Unlock()

		metrics.RecordRateLimitDecision(resourceClass, "denied")
		l.logger.Debug(ctx, "rate limit exceeded",
			logger.String("user_id", claims.UserID),
			logger.String("resource_class", resourceClass),
			logger.Duration("retry_after", retryAfter),
		)
		return &DeniedError{
			UserID:        claims.UserID,
			ResourceClass: resourceClass,
			Limit:         l.limit,
			RetryAfter:    retryAfter,
		}
	}
	c.count++
	l.mu.Unlock()

	metrics.RecordRateLimitDecision(resourceClass, "allowed")
	return nil
}

// Remaining returns how many calls the key may still make in its current window.
func (l *FixedWindow) Remaining(claims model.UserClaims, resourceClass string) int {
	if claims.IsAdmin() {
		return l.limit
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.counters[key{userID: claims.UserID, resourceClass: resourceClass}]
	if !ok || l.now().Sub(c.windowStart) >= l.window {
		return l.limit
	}
	return l.limit - c.count
}

// Sweep drops counters whose window has ended and returns how many were removed.
func (l *FixedWindow) Sweep() int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for k, c := range l.counters {
		if now.Sub(c.windowStart) >= l.window {
			delete(l.counters, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked counters.
func (l *FixedWindow) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.counters)
}

// Run sweeps expired counters every interval until ctx is done.
func (l *FixedWindow) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = l.window
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Sweep(); n > 0 {
				l.logger.Debug(ctx, "swept rate limit counters", logger.Int("removed", n))
			}
		}
	}
}
