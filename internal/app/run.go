package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/watchtower/internal/adapters/fetch"
	"github.com/okian/watchtower/internal/adapters/notify"
	"github.com/okian/watchtower/internal/adapters/repository"
	"github.com/okian/watchtower/internal/domain/analysis"
	"github.com/okian/watchtower/internal/domain/changeset"
	"github.com/okian/watchtower/internal/domain/model"
	"github.com/okian/watchtower/internal/domain/movement"
	"github.com/okian/watchtower/internal/domain/normalize"
	"github.com/okian/watchtower/pkg/logger"
	"github.com/okian/watchtower/pkg/metrics"
)

// Failure stages, used as metric labels.
const (
	stageFetch     = "fetch"
	stageSnapshot  = "snapshot"
	stageAnalysis  = "analysis"
	stagePersist   = "persist"
	stageAbandoned = "abandoned"
)

type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.stage + ": " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

func failAt(stage string, err error) error { return &stageError{stage: stage, err: err} }

// RunTracker evaluates one tracker end to end: fetch, normalize, diff,
// analyze, notify and persist. At most one run per tracker is pending at a
// time; a second request gets repository.ErrRunPending.
//
// Once the pending run exists it always reaches a terminal status, even if
// ctx is cancelled. A failed run is returned together with the error.
func (s *Service) RunTracker(ctx context.Context, trackerID string) (model.TrackerRun, error) {
	t, err := s.store.GetTracker(ctx, trackerID)
	if err != nil {
		return model.TrackerRun{}, err
	}
	if t.Status != model.TrackerActive {
		metrics.RecordRunRejected("not_active")
		return model.TrackerRun{}, fmt.Errorf("tracker %q is %s: %w", trackerID, t.Status, ErrTrackerNotActive)
	}

	if !s.guard.Acquire(ctx, trackerID) {
		metrics.RecordRunRejected("pending")
		return model.TrackerRun{}, s.trackerError(trackerID, repository.ErrRunPending)
	}
	defer s.guard.Release(ctx, trackerID)

	start := s.now()
	run := model.NewPendingRun(s.newID(), trackerID, start)
	if err := s.store.CreatePendingRun(ctx, run); err != nil {
		if errors.Is(err, repository.ErrRunPending) {
			metrics.RecordRunRejected("pending")
		}
		return model.TrackerRun{}, err
	}
	metrics.RecordRunStarted()

	log := s.logger.With(logger.String("tracker_id", trackerID), logger.String("run_id", run.ID))
	log.Debug(ctx, "run started", logger.String("target", model.TargetKind(t.Target)))

	if err := s.execute(ctx, t, &run); err != nil {
		return s.fail(ctx, log, run, start, err)
	}

	metrics.RecordRunCompleted(float64(s.now().Sub(start).Milliseconds()))
	if err := s.store.ResetFailures(ctx, trackerID); err != nil {
		log.Warn(ctx, "reset failure count", logger.Error(err))
	}
	log.Info(ctx, "run completed",
		logger.Int("events", len(run.ChangeEvents)),
		logger.Bool("triggered", run.AnalysisResult != nil && run.AnalysisResult.Triggered))
	return run, nil
}

// execute performs every stage after the pending run exists and completes run
// in place.
func (s *Service) execute(ctx context.Context, t model.Tracker, run *model.TrackerRun) error {
	stageCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	payload, err := s.fetcher.Fetch(stageCtx, t.Target)
	if err != nil {
		return failAt(stageFetch, fmt.Errorf("%w: %w", ErrFetch, err))
	}

	at := s.now()
	items := make([]model.NormalizedItem, 0, len(payload.Items))
	for _, raw := range payload.Items {
		items = append(items, normalize.BuildItem(raw.SourceID, raw.ExternalID, raw.Data, normalize.WithNormalizedAt(at)))
	}

	prev, err := s.store.LatestSnapshot(stageCtx, t.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return failAt(stageSnapshot, err)
	}
	events := changeset.New(changeset.WithClock(func() time.Time { return at })).Compute(prev.Items, items)
	for typ, n := range changeset.Count(events) {
		metrics.RecordChangeEvents(string(typ), n)
	}

	in := analysis.Input{Tracker: t, Events: events}
	if model.PriceBearing(t.Target) {
		in.Movements, in.Comparison = movements(payload)
	}
	outcome, err := s.analyzer.Analyze(stageCtx, in)
	if err != nil {
		return failAt(stageAnalysis, err)
	}
	result := &model.AnalysisResult{
		TrackerID: t.ID,
		RunID:     run.ID,
		Timestamp: s.now(),
		Type:      t.Analysis.AnalysisType(),
		Summary:   outcome.Summary,
		Triggered: outcome.Triggered,
		Footnote:  outcome.Footnote,
	}
	metrics.RecordAnalysisOutcome(string(result.Type), result.Triggered)

	run.Notification = s.dispatch(ctx, t, run.ID, result, events)

	// The snapshot becomes the next baseline only together with the completed
	// run, so a run that ends up failed never hides its changes.
	snap := model.Snapshot{ID: s.newID(), TrackerID: t.ID, TakenAt: at, Items: items}
	completed := *run
	if err := completed.Complete(snap.ID, events, result, s.now()); err != nil {
		return failAt(stagePersist, err)
	}
	if err := s.store.CompleteRun(ctx, completed, snap); err != nil {
		return failAt(stagePersist, err)
	}
	*run = completed
	return nil
}

// movements summarizes every history and compares the first two.
func movements(p fetch.Payload) ([]movement.Summary, *movement.Comparison) {
	if len(p.Prices) == 0 {
		return nil, nil
	}
	out := make([]movement.Summary, 0, len(p.Prices))
	for _, h := range p.Prices {
		out = append(out, movement.Summarize(h))
	}
	if len(out) < 2 {
		return out, nil
	}
	cmp := movement.Compare(out[0], out[1])
	return out, &cmp
}

// dispatch applies the gate and sends the notification. Dispatch errors are
// recorded on the outcome and never fail the run.
func (s *Service) dispatch(ctx context.Context, t model.Tracker, runID string, result *model.AnalysisResult, events []model.ChangeEvent) *model.NotificationOutcome {
	ok, reason := s.gate.Decide(ctx, t, result.Triggered, s.now())
	if !ok {
		metrics.RecordNotification(reason)
		return &model.NotificationOutcome{Suppressed: reason}
	}

	msg := notify.Message{
		TrackerID: t.ID,
		RunID:     runID,
		Recipient: t.Notification.Recipient,
		Target:    model.TargetKind(t.Target),
		Timestamp: result.Timestamp,
		Result:    *result,
		Events:    events,
	}
	if err := s.notifier.Send(ctx, t.Notification.Channel, msg); err != nil {
		metrics.RecordNotification("error")
		s.logger.Warn(ctx, "notification failed",
			logger.String("tracker_id", t.ID), logger.String("run_id", runID), logger.Error(err))
		return &model.NotificationOutcome{Error: err.Error()}
	}
	metrics.RecordNotification("dispatched")
	return &model.NotificationOutcome{Dispatched: true}
}

// fail records run as failed, counts the failure and escalates the tracker
// when the threshold is reached. It returns the run and the original cause.
func (s *Service) fail(ctx context.Context, log logger.Logger, run model.TrackerRun, start time.Time, cause error) (model.TrackerRun, error) {
	stage := stagePersist
	var se *stageError
	if errors.As(cause, &se) {
		stage = se.stage
		cause = se.err
	}
	metrics.RecordRunFailed(stage, float64(s.now().Sub(start).Milliseconds()))

	// The pending run must be closed even if the caller has gone away.
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.finalizeTimeout)
	defer cancel()

	if run.Status == model.RunPending {
		if err := run.Fail(cause, s.now()); err != nil {
			log.Error(dctx, "fail run", logger.Error(err))
		}
	}
	if err := s.finalize(dctx, run); err != nil && !errors.Is(err, repository.ErrRunNotPending) {
		// The stale-run sweep releases it later.
		log.Error(dctx, "finalize failed run", logger.Error(err))
	}

	count, err := s.store.RecordFailure(dctx, run.TrackerID)
	if err != nil {
		log.Warn(dctx, "record failure", logger.Error(err))
	} else if s.errorThreshold > 0 && count >= s.errorThreshold {
		if err := s.store.SetTrackerStatus(dctx, run.TrackerID, model.TrackerError); err != nil {
			log.Error(dctx, "escalate tracker", logger.Error(err))
		} else {
			log.Warn(dctx, "tracker moved to error", logger.Int("consecutive_failures", count))
		}
	}

	log.Warn(dctx, "run failed", logger.String("stage", stage), logger.Error(cause))
	return run, fmt.Errorf("run %s: %w", run.ID, cause)
}

// finalize writes the terminal run, retrying transient store errors with
// exponential backoff until ctx expires.
func (s *Service) finalize(ctx context.Context, run model.TrackerRun) error {
	delay := finalizeBackoff
	for {
		err := s.store.FinalizeRun(ctx, run)
		if err == nil || !retryableFinalize(err) {
			return err
		}
		s.logger.Debug(ctx, "retrying run finalize",
			logger.String("run_id", run.ID), logger.Duration("delay", delay), logger.Error(err))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%w (last error: %w)", ctx.Err(), err)
		}
		delay = min(delay*2, maxFinalizeBackoff)
	}
}

func retryableFinalize(err error) bool {
	return !errors.Is(err, repository.ErrRunNotPending) &&
		!errors.Is(err, repository.ErrNotFound) &&
		!errors.Is(err, model.ErrInvalidTransition) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}
