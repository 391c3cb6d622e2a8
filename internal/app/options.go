package service

import (
	"time"

	"github.com/okian/watchtower/internal/domain/guard"
	"github.com/okian/watchtower/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of queued run requests.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithSchedulerInterval sets how often due trackers are enqueued.
func WithSchedulerInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.schedulerInterval = d
		}
	}
}

// WithRunTimeout bounds the fetch and analysis stages of a run.
func WithRunTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.runTimeout = d
		}
	}
}

// WithErrorThreshold moves a tracker to the error status after n consecutive
// failed runs. Zero disables escalation.
func WithErrorThreshold(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.errorThreshold = n
		}
	}
}

// WithStaleRunAfter sets how old a pending run must be before the scheduler
// fails it. The default is twice the run timeout plus the finalize timeout.
func WithStaleRunAfter(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.staleRunAfter = d
		}
	}
}

// WithFinalizeTimeout bounds the retried terminal write of a failed run.
func WithFinalizeTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.finalizeTimeout = d
		}
	}
}

// WithNotifier sets the channel router used for dispatch.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithGate sets the notification gate.
func WithGate(g *Gate) Option {
	return func(s *Service) {
		if g != nil {
			s.gate = g
		}
	}
}

// WithGuard replaces the in-process run guard.
func WithGuard(g guard.Guard) Option {
	return func(s *Service) {
		if g != nil {
			s.guard = g
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides the uuid-based run and snapshot IDs.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
