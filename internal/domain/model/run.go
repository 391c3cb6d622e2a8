package model

import (
	"fmt"
	"time"
)

// RunStatus is the state of a TrackerRun.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// AnalysisResult is produced once per completed run.
type AnalysisResult struct {
	TrackerID string       `json:"tracker_id"`
	RunID     string       `json:"run_id"`
	Timestamp time.Time    `json:"timestamp"`
	Type      AnalysisType `json:"type"`
	Summary   string       `json:"summary"`
	Triggered bool         `json:"triggered"`
	Footnote  string       `json:"footnote,omitempty"`
}

// NotificationOutcome records what the notification gate decided for a run.
type NotificationOutcome struct {
	Dispatched bool   `json:"dispatched"`
	Suppressed string `json:"suppressed,omitempty"`
	Error      string `json:"error,omitempty"`
}

// TrackerRun is one evaluation of a tracker.
type TrackerRun struct {
	ID             string               `json:"id"`
	TrackerID      string               `json:"tracker_id"`
	Timestamp      time.Time            `json:"timestamp"`
	SnapshotID     string               `json:"snapshot_id,omitempty"`
	ChangeEvents   []ChangeEvent        `json:"change_events"`
	AnalysisResult *AnalysisResult      `json:"analysis_result,omitempty"`
	Notification   *NotificationOutcome `json:"notification,omitempty"`
	Status         RunStatus            `json:"status"`
	Error          string               `json:"error,omitempty"`
	FinishedAt     time.Time            `json:"finished_at,omitempty"`
}

// NewPendingRun creates a run in the pending state.
func NewPendingRun(id, trackerID string, at time.Time) TrackerRun {
	return TrackerRun{ID: id, TrackerID: trackerID, Timestamp: at, Status: RunPending}
}

// Complete moves a pending run to completed.
func (r *TrackerRun) Complete(snapshotID string, events []ChangeEvent, result *AnalysisResult, at time.Time) error {
	if r.Status != RunPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, RunCompleted)
	}
	r.Status = RunCompleted
	r.SnapshotID = snapshotID
	r.ChangeEvents = events
	r.AnalysisResult = result
	r.FinishedAt = at
	return nil
}

// Fail moves a pending run to failed with the given cause.
func (r *TrackerRun) Fail(cause error, at time.Time) error {
	if r.Status != RunPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, RunFailed)
	}
	r.Status = RunFailed
	if cause != nil {
		r.Error = cause.Error()
	}
	r.FinishedAt = at
	return nil
}
