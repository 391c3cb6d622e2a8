// Package repository persists trackers, snapshots and runs.
package repository

import (
	"context"
	"time"

	"github.com/okian/watchtower/internal/domain/model"
)

// TrackerStore reads and updates tracker definitions.
type TrackerStore interface {
	// GetTracker returns ErrNotFound for an unknown id.
	GetTracker(ctx context.Context, id string) (model.Tracker, error)
	// ListTrackers returns every tracker ordered by id.
	ListTrackers(ctx context.Context) ([]model.Tracker, error)
	// PutTracker inserts or replaces a tracker.
	PutTracker(ctx context.Context, t model.Tracker) error
	// SetTrackerStatus returns ErrNotFound for an unknown id.
	SetTrackerStatus(ctx context.Context, id string, status model.TrackerStatus) error
}

// SnapshotStore keeps the latest normalized snapshot per tracker.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, s model.Snapshot) error
	// LatestSnapshot returns ErrNotFound when the tracker has no snapshot yet.
	LatestSnapshot(ctx context.Context, trackerID string) (model.Snapshot, error)
}

// RunStore records tracker runs.
type RunStore interface {
	// CreatePendingRun stores a pending run. It returns ErrRunPending when the
	// tracker already has one; the check and the write are atomic.
	CreatePendingRun(ctx context.Context, run model.TrackerRun) error
	// FinalizeRun replaces a pending run with its terminal state. It returns
	// ErrRunNotPending when the stored run is already terminal.
	FinalizeRun(ctx context.Context, run model.TrackerRun) error
	// CompleteRun stores snap as the tracker's latest snapshot and finalizes
	// the completed run in one atomic step. Neither is written when the
	// stored run is no longer pending.
	CompleteRun(ctx context.Context, run model.TrackerRun, snap model.Snapshot) error
	// ReleaseStalePending fails every pending run started before olderThan
	// with ErrRunAbandoned and returns the released runs.
	ReleaseStalePending(ctx context.Context, olderThan, now time.Time) ([]model.TrackerRun, error)
	// GetRun returns ErrNotFound for an unknown id.
	GetRun(ctx context.Context, id string) (model.TrackerRun, error)
	// ListRuns returns up to limit runs for a tracker, newest first.
	ListRuns(ctx context.Context, trackerID string, limit int) ([]model.TrackerRun, error)
	// LastRun returns the newest run and whether one exists.
	LastRun(ctx context.Context, trackerID string) (model.TrackerRun, bool, error)
	// RecordFailure increments and returns the consecutive failure count.
	RecordFailure(ctx context.Context, trackerID string) (int, error)
	// ResetFailures clears the consecutive failure count.
	ResetFailures(ctx context.Context, trackerID string) error
}

// Store is the full persistence surface used by the service.
type Store interface {
	TrackerStore
	SnapshotStore
	RunStore
	Close()
}
