package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/watchtower/internal/domain/model"
)

// MemoryStore is an in-process Store. All operations take a single mutex, so
// the pending-run check in CreatePendingRun is atomic with its write.
type MemoryStore struct {
	mu        sync.RWMutex
	trackers  map[string]model.Tracker
	snapshots map[string]model.Snapshot
	runs      map[string]model.TrackerRun
	history   map[string][]string // tracker id -> run ids, oldest first
	pending   map[string]string   // tracker id -> pending run id
	failures  map[string]int
	maxRuns   int // 0 keeps every run
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		trackers:  make(map[string]model.Tracker),
		snapshots: make(map[string]model.Snapshot),
		runs:      make(map[string]model.TrackerRun),
		history:   make(map[string][]string),
		pending:   make(map[string]string),
		failures:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) GetTracker(_ context.Context, id string) (model.Tracker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trackers[id]
	if !ok {
		return model.Tracker{}, fmt.Errorf("tracker %q: %w", id, ErrNotFound)
	}
	return t, nil
}

func (s *MemoryStore) ListTrackers(_ context.Context) ([]model.Tracker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Tracker, 0, len(s.trackers))
	for _, t := range s.trackers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) PutTracker(_ context.Context, t model.Tracker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trackers[t.ID] = t
	return nil
}

func (s *MemoryStore) SetTrackerStatus(_ context.Context, id string, status model.TrackerStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trackers[id]
	if !ok {
		return fmt.Errorf("tracker %q: %w", id, ErrNotFound)
	}
	t.Status = status
	s.trackers[id] = t
	return nil
}

func (s *MemoryStore) SaveSnapshot(_ context.Context, snap model.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap.Items = append([]model.NormalizedItem(nil), snap.Items...)
	s.snapshots[snap.TrackerID] = snap
	return nil
}

func (s *MemoryStore) LatestSnapshot(_ context.Context, trackerID string) (model.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[trackerID]
	if !ok {
		return model.Snapshot{}, fmt.Errorf("snapshot for %q: %w", trackerID, ErrNotFound)
	}
	return snap, nil
}

func (s *MemoryStore) CreatePendingRun(_ context.Context, run model.TrackerRun) error {
	if run.Status != model.RunPending {
		return fmt.Errorf("create run %s with status %s: %w", run.ID, run.Status, ErrRunNotPending)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.pending[run.TrackerID]; ok {
		return fmt.Errorf("tracker %q run %s: %w", run.TrackerID, existing, ErrRunPending)
	}
	s.pending[run.TrackerID] = run.ID
	s.runs[run.ID] = run
	s.history[run.TrackerID] = append(s.history[run.TrackerID], run.ID)
	s.trimLocked(run.TrackerID)
	return nil
}

func (s *MemoryStore) FinalizeRun(_ context.Context, run model.TrackerRun) error {
	if !run.Status.Terminal() {
		return fmt.Errorf("finalize run %s with status %s: %w", run.ID, run.Status, model.ErrInvalidTransition)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkPendingLocked(run.ID); err != nil {
		return err
	}
	s.finalizeLocked(run)
	return nil
}

func (s *MemoryStore) CompleteRun(_ context.Context, run model.TrackerRun, snap model.Snapshot) error {
	if run.Status != model.RunCompleted {
		return fmt.Errorf("complete run %s with status %s: %w", run.ID, run.Status, model.ErrInvalidTransition)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkPendingLocked(run.ID); err != nil {
		return err
	}
	snap.Items = append([]model.NormalizedItem(nil), snap.Items...)
	s.snapshots[snap.TrackerID] = snap
	s.finalizeLocked(run)
	return nil
}

func (s *MemoryStore) ReleaseStalePending(_ context.Context, olderThan, now time.Time) ([]model.TrackerRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var released []model.TrackerRun
	for _, id := range s.pending {
		run := s.runs[id]
		if !run.Timestamp.Before(olderThan) {
			continue
		}
		if err := run.Fail(ErrRunAbandoned, now); err != nil {
			return released, err
		}
		s.finalizeLocked(run)
		released = append(released, run)
	}
	sort.Slice(released, func(i, j int) bool { return released[i].TrackerID < released[j].TrackerID })
	return released, nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.TrackerRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	if !ok {
		return model.TrackerRun{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return r, nil
}

func (s *MemoryStore) ListRuns(_ context.Context, trackerID string, limit int) ([]model.TrackerRun, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit %d: %w", limit, ErrInvalidLimit)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.history[trackerID]
	if limit > len(ids) {
		limit = len(ids)
	}
	out := make([]model.TrackerRun, 0, limit)
	for i := len(ids) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.runs[ids[i]])
	}
	return out, nil
}

func (s *MemoryStore) LastRun(_ context.Context, trackerID string) (model.TrackerRun, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.history[trackerID]
	if len(ids) == 0 {
		return model.TrackerRun{}, false, nil
	}
	return s.runs[ids[len(ids)-1]], true, nil
}

func (s *MemoryStore) RecordFailure(_ context.Context, trackerID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[trackerID]++
	return s.failures[trackerID], nil
}

func (s *MemoryStore) ResetFailures(_ context.Context, trackerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, trackerID)
	return nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() {}

func (s *MemoryStore) checkPendingLocked(runID string) error {
	stored, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if stored.Status != model.RunPending {
		return fmt.Errorf("run %s is %s: %w", runID, stored.Status, ErrRunNotPending)
	}
	return nil
}

func (s *MemoryStore) finalizeLocked(run model.TrackerRun) {
	run.ChangeEvents = append([]model.ChangeEvent(nil), run.ChangeEvents...)
	s.runs[run.ID] = run
	if s.pending[run.TrackerID] == run.ID {
		delete(s.pending, run.TrackerID)
	}
	s.trimLocked(run.TrackerID)
}

// trimLocked drops the oldest terminal runs beyond maxRuns. Caller holds s.mu.
func (s *MemoryStore) trimLocked(trackerID string) {
	if s.maxRuns <= 0 {
		return
	}
	ids := s.history[trackerID]
	excess := len(ids) - s.maxRuns
	if excess <= 0 {
		return
	}
	kept := ids[:0]
	for _, id := range ids {
		if excess > 0 && s.runs[id].Status.Terminal() {
			delete(s.runs, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	s.history[trackerID] = kept
}
