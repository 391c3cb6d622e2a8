// Package service wires the tracker engine: it runs trackers end to end and
// owns the queue, worker pool and scheduler that drive them.
package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/watchtower/internal/adapters/fetch"
	eventqueue "github.com/okian/watchtower/internal/adapters/mq/queue"
	workerpool "github.com/okian/watchtower/internal/adapters/mq/worker"
	"github.com/okian/watchtower/internal/adapters/notify"
	"github.com/okian/watchtower/internal/adapters/repository"
	"github.com/okian/watchtower/internal/domain/analysis"
	"github.com/okian/watchtower/internal/domain/guard"
	"github.com/okian/watchtower/internal/domain/model"
	"github.com/okian/watchtower/pkg/logger"
	"github.com/okian/watchtower/pkg/metrics"
)

const (
	defaultQueueSize         = 1024
	defaultSchedulerInterval = 30 * time.Second
	defaultRunTimeout        = 2 * time.Minute
	defaultFinalizeTimeout   = 10 * time.Second
	finalizeBackoff          = 50 * time.Millisecond
	maxFinalizeBackoff       = time.Second
)

// Notifier routes a message to a named channel.
type Notifier interface {
	Send(ctx context.Context, channel string, msg notify.Message) error
}

// Service runs trackers and schedules them.
type Service struct {
	mu sync.RWMutex

	// Collaborators
	store    repository.Store
	fetcher  fetch.Fetcher
	analyzer analysis.Analyzer
	notifier Notifier
	gate     *Gate
	guard    guard.Guard

	// Configuration
	workerCount       int
	queueSize         int
	schedulerInterval time.Duration
	runTimeout        time.Duration
	errorThreshold    int
	staleRunAfter     time.Duration
	finalizeTimeout   time.Duration
	now               func() time.Time
	newID             func() string

	// State
	queue     *eventqueue.InMemoryQueue
	pool      *workerpool.Pool
	scheduler *Scheduler
	cancel    context.CancelFunc
	done      chan struct{}
	started   bool

	logger logger.Logger
}

// New constructs a Service over its storage, fetch and analysis collaborators.
func New(store repository.Store, fetcher fetch.Fetcher, analyzer analysis.Analyzer, opts ...Option) *Service {
	s := &Service{
		store:             store,
		fetcher:           fetcher,
		analyzer:          analyzer,
		workerCount:       runtime.NumCPU() * 2,
		queueSize:         defaultQueueSize,
		schedulerInterval: defaultSchedulerInterval,
		runTimeout:        defaultRunTimeout,
		finalizeTimeout:   defaultFinalizeTimeout,
		now:               time.Now,
		newID:             uuid.NewString,
		logger:            logger.Get().Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.guard == nil {
		s.guard = guard.New()
	}
	if s.gate == nil {
		s.gate = NewGate(nil)
	}
	if s.notifier == nil {
		s.notifier = notify.NewRouter("log", map[string]notify.Notifier{"log": notify.NewLogNotifier(nil)})
	}
	return s
}

// Start launches the worker pool and the scheduler.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.pool = workerpool.NewPool(s.workerCount, s.queue, s,
		workerpool.WithExpectedErrors(repository.ErrRunPending, ErrTrackerNotActive))
	s.pool.Start(runCtx)

	staleAfter := s.staleRunAfter
	if staleAfter == 0 {
		staleAfter = 2*s.runTimeout + s.finalizeTimeout
	}
	s.scheduler = NewScheduler(s.store, s.queue,
		WithInterval(s.schedulerInterval),
		WithStaleAfter(staleAfter),
		WithSchedulerClock(s.now))
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		s.scheduler.Run(runCtx)
	}()

	s.started = true
	s.logger.Info(ctx, "tracker service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Duration("schedulerInterval", s.schedulerInterval))
	return nil
}

// Stop stops scheduling, drains queued runs and cancels in-flight ones when
// ctx expires.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping tracker service...")

	s.scheduler.Stop()
	<-s.done
	err := s.pool.Shutdown(ctx)
	s.cancel()

	s.started = false
	s.logger.Info(ctx, "tracker service stopped")
	return err
}

// Enqueue requests an asynchronous run of a tracker.
func (s *Service) Enqueue(ctx context.Context, trackerID string) error {
	s.mu.RLock()
	q := s.queue
	s.mu.RUnlock()
	if q == nil {
		return ErrNotStarted
	}
	return q.Enqueue(ctx, eventqueue.Job{TrackerID: trackerID, Trigger: eventqueue.TriggerManual})
}

// GetTracker returns a tracker by ID.
func (s *Service) GetTracker(ctx context.Context, id string) (model.Tracker, error) {
	return s.store.GetTracker(ctx, id)
}

// ListRuns returns up to limit runs of a tracker, newest first.
func (s *Service) ListRuns(ctx context.Context, trackerID string, limit int) ([]model.TrackerRun, error) {
	if _, err := s.store.GetTracker(ctx, trackerID); err != nil {
		return nil, err
	}
	return s.store.ListRuns(ctx, trackerID, limit)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acquired, rejected := guard.Stats(s.guard)
	stats := map[string]any{
		"started":         s.started,
		"workerCount":     s.workerCount,
		"queueSize":       s.queueSize,
		"runsInFlight":    s.guard.Size(),
		"guardAcquired":   acquired,
		"guardRejected":   rejected,
		"runTimeout":      s.runTimeout.String(),
		"errorThreshold":  s.errorThreshold,
		"schedulerPeriod": s.schedulerInterval.String(),
	}

	if trackers, err := s.store.ListTrackers(ctx); err == nil {
		active := 0
		for _, t := range trackers {
			if t.Status == model.TrackerActive {
				active++
			}
		}
		stats["trackers"] = len(trackers)
		stats["activeTrackers"] = active
		metrics.UpdateActiveTrackers(active)
	}

	if s.started {
		stats["queueLength"] = s.queue.Len()
		processed, failed := s.pool.Stats()
		stats["jobsProcessed"] = processed
		stats["jobsFailed"] = failed
	}
	return stats
}

func (s *Service) trackerError(id string, err error) error {
	return fmt.Errorf("tracker %q: %w", id, err)
}
