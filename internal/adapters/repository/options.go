package repository

import (
	"time"

	"github.com/okian/watchtower/pkg/logger"
)

// MemoryOption applies a configuration option to the MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMaxRunsPerTracker bounds the retained run history per tracker. History
// is unbounded by default. Pending runs are never dropped.
func WithMaxRunsPerTracker(n int) MemoryOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.maxRuns = n
		}
	}
}

// PostgresOption applies a configuration option to the PostgresStore.
type PostgresOption func(*PostgresStore)

// WithPostgresLogger sets the store logger.
func WithPostgresLogger(l logger.Logger) PostgresOption {
	return func(s *PostgresStore) {
		if l != nil {
			s.log = l
		}
	}
}

// WithPoolLimits sets the pgx pool connection bounds.
func WithPoolLimits(minConns, maxConns int32) PostgresOption {
	return func(s *PostgresStore) {
		if minConns >= 0 && maxConns > 0 && maxConns >= minConns {
			s.minConns, s.maxConns = minConns, maxConns
		}
	}
}

// WithHealthCheckPeriod sets how often idle pool connections are checked.
func WithHealthCheckPeriod(d time.Duration) PostgresOption {
	return func(s *PostgresStore) {
		if d > 0 {
			s.healthCheck = d
		}
	}
}
