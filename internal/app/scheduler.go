package service

import (
	"context"
	"errors"
	"sync"
	"time"

	eventqueue "github.com/okian/watchtower/internal/adapters/mq/queue"
	"github.com/okian/watchtower/internal/adapters/repository"
	"github.com/okian/watchtower/internal/domain/model"
	"github.com/okian/watchtower/pkg/logger"
	"github.com/okian/watchtower/pkg/metrics"
)

// Enqueuer accepts run requests.
type Enqueuer interface {
	Enqueue(ctx context.Context, j eventqueue.Job) error
}

// Scheduler periodically enqueues active trackers whose interval schedule is
// due. Irregular trackers and cron schedules are only run on request.
type Scheduler struct {
	store    repository.Store
	queue    Enqueuer
	interval time.Duration
	stale    time.Duration // 0 disables the stale-run sweep
	now      func() time.Time
	logger   logger.Logger

	mu     sync.Mutex
	queued map[string]time.Time // tracker id -> last enqueue time

	stopOnce sync.Once
	stop     chan struct{}
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithInterval sets the tick period.
func WithInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithStaleAfter makes every tick fail pending runs older than d, releasing
// trackers whose run was never finalized.
func WithStaleAfter(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.stale = d
		}
	}
}

// WithSchedulerClock overrides time.Now.
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// NewScheduler creates a scheduler over store that feeds queue.
func NewScheduler(store repository.Store, queue Enqueuer, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		store:    store,
		queue:    queue,
		interval: defaultSchedulerInterval,
		now:      time.Now,
		logger:   logger.Get().Named("scheduler"),
		queued:   make(map[string]time.Time),
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run ticks until ctx is done or Stop is called. The first tick is immediate.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.Tick(ctx); err != nil {
			s.logger.Error(ctx, "scheduler tick failed", logger.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
		}
	}
}

// Stop ends Run.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Tick enqueues every due tracker once and returns how many were enqueued.
// A tracker whose last run is still pending is skipped, and an enqueue counts
// as a run so a backlog never holds the same tracker twice. A full queue ends the
// tick early; the remaining trackers are picked up next time.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	now := s.now()
	s.releaseStale(ctx, now)

	trackers, err := s.store.ListTrackers(ctx)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	active, enqueued := 0, 0
	for _, t := range trackers {
		if t.Status != model.TrackerActive {
			continue
		}
		active++
		if t.Mode == model.ModeIrregular {
			continue
		}

		last, ok, err := s.store.LastRun(ctx, t.ID)
		if err != nil {
			s.logger.Warn(ctx, "last run lookup failed", logger.String("tracker_id", t.ID), logger.Error(err))
			continue
		}
		var lastAt time.Time
		if ok {
			if last.Status == model.RunPending {
				continue
			}
			lastAt = last.Timestamp
		}
		if q := s.queued[t.ID]; q.After(lastAt) {
			lastAt = q
		}
		if !t.Schedule.Due(lastAt, now) {
			continue
		}

		err = s.queue.Enqueue(ctx, eventqueue.Job{TrackerID: t.ID, Trigger: eventqueue.TriggerScheduled, EnqueuedAt: now})
		switch {
		case err == nil:
			s.queued[t.ID] = now
			enqueued++
		case errors.Is(err, eventqueue.ErrFull):
			s.logger.Warn(ctx, "queue full, deferring remaining trackers", logger.Int("enqueued", enqueued))
			metrics.UpdateActiveTrackers(active)
			return enqueued, nil
		default:
			return enqueued, err
		}
	}

	metrics.UpdateActiveTrackers(active)
	if enqueued > 0 {
		s.logger.Debug(ctx, "scheduled trackers", logger.Int("enqueued", enqueued), logger.Int("active", active))
	}
	return enqueued, nil
}

func (s *Scheduler) releaseStale(ctx context.Context, now time.Time) {
	if s.stale <= 0 {
		return
	}
	released, err := s.store.ReleaseStalePending(ctx, now.Add(-s.stale), now)
	if err != nil {
		s.logger.Error(ctx, "release stale runs", logger.Error(err))
	}
	for _, r := range released {
		metrics.RecordRunFailed(stageAbandoned, float64(now.Sub(r.Timestamp).Milliseconds()))
		s.logger.Warn(ctx, "released stale pending run",
			logger.String("tracker_id", r.TrackerID),
			logger.String("run_id", r.ID),
			logger.Time("started_at", r.Timestamp))
	}
}
