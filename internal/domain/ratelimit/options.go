package ratelimit

import (
	"time"

	"github.com/okian/watchtower/pkg/logger"
)

// Option applies a configuration option to the FixedWindow limiter.
type Option func(*FixedWindow)

// WithClock sets the clock used to place calls into windows.
func WithClock(now func() time.Time) Option {
	return func(l *FixedWindow) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets a custom logger for the limiter.
func WithLogger(log logger.Logger) Option {
	return func(l *FixedWindow) {
		if log != nil {
			l.logger = log
		}
	}
}
