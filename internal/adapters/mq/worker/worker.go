// Package worker runs queued tracker jobs.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/watchtower/internal/adapters/mq/queue"
	"github.com/okian/watchtower/internal/domain/model"
	"github.com/okian/watchtower/pkg/logger"
	"github.com/okian/watchtower/pkg/metrics"
)

const (
	defaultWorkerMultiplier = 2
	poolShutdownTimeout     = 30 * time.Second
)

// Runner executes one tracker run.
type Runner interface {
	RunTracker(ctx context.Context, trackerID string) (model.TrackerRun, error)
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// Worker processes jobs until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker after its current job.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	jobs     <-chan queue.Job
	runner   Runner
	name     string
	expected []error

	processed atomic.Int64
	failed    atomic.Int64

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker reading from q.
func NewInMemoryWorker(ctx context.Context, q Queue, runner Runner, opts ...Option) *InMemoryWorker {
	return newWorker(q.Dequeue(ctx), runner, opts...)
}

func newWorker(jobs <-chan queue.Job, runner Runner, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		jobs:     jobs,
		runner:   runner,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-w.jobs:
			if !ok {
				return
			}
			w.process(ctx, job)
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Stats returns processed and failed job counts.
func (w *InMemoryWorker) Stats() (processed, failed int64) {
	return w.processed.Load(), w.failed.Load()
}

func (w *InMemoryWorker) process(ctx context.Context, job queue.Job) {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()
	w.processed.Add(1)

	run, err := w.runner.RunTracker(ctx, job.TrackerID)
	if err == nil {
		w.logger.Debug(ctx, "tracker run finished",
			logger.String("tracker_id", job.TrackerID),
			logger.String("run_id", run.ID),
			logger.String("status", string(run.Status)),
			logger.Duration("queued", start.Sub(job.EnqueuedAt)))
		return
	}
	if w.isExpected(err) {
		w.logger.Debug(ctx, "tracker run skipped",
			logger.String("tracker_id", job.TrackerID),
			logger.String("trigger", string(job.Trigger)),
			logger.Error(err))
		return
	}

	w.failed.Add(1)
	metrics.RecordWorkerError()
	metrics.RecordErrorByComponent("worker", "run_failed")
	w.logger.Error(ctx, "tracker run failed",
		logger.String("tracker_id", job.TrackerID),
		logger.String("run_id", run.ID),
		logger.String("trigger", string(job.Trigger)),
		logger.Error(err))
}

func (w *InMemoryWorker) isExpected(err error) bool {
	for _, e := range w.expected {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	runner  Runner
	opts    []Option

	logger logger.Logger
}

// NewPool creates a pool; workerCount < 1 means twice the CPU count.
func NewPool(workerCount int, q Queue, runner Runner, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}
	return &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		runner:  runner,
		opts:    opts,
		logger:  logger.Get().Named("worker-pool"),
	}
}

// Start starts all workers on a single dequeue channel.
func (p *Pool) Start(ctx context.Context) {
	jobs := p.queue.Dequeue(ctx)
	for i := range p.workers {
		opts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, p.opts...)
		p.workers[i] = newWorker(jobs, p.runner, opts...)
		go p.workers[i].Run(ctx)
	}
	metrics.UpdateWorkerActiveCount(len(p.workers))
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
}

// Stats sums processed and failed counts over all workers.
func (p *Pool) Stats() (processed, failed int64) {
	for _, w := range p.workers {
		if w == nil {
			continue
		}
		pr, f := w.Stats()
		processed += pr
		failed += f
	}
	return processed, failed
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Shutdown closes the queue and waits for workers to drain it.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, w := range p.workers {
		if w == nil {
			continue
		}
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	metrics.UpdateWorkerActiveCount(0)
	if timedOut {
		return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
	}
	return nil
}
