package model

import "time"

// ItemKey identifies an observed item across snapshots.
type ItemKey struct {
	SourceID   string
	ExternalID string
}

// NormalizedItem is one observed record of a source, carrying the content
// fingerprint used for change detection.
type NormalizedItem struct {
	SourceID     string         `json:"source_id"`
	ExternalID   string         `json:"external_id"`
	NormalizedAt time.Time      `json:"normalized_at"`
	Fingerprint  string         `json:"fingerprint"`
	Data         map[string]any `json:"data"`
}

// Key returns the identity key of the item.
func (i NormalizedItem) Key() ItemKey {
	return ItemKey{SourceID: i.SourceID, ExternalID: i.ExternalID}
}

// ChangeType classifies a ChangeEvent.
type ChangeType string

const (
	ChangeAdded   ChangeType = "added"
	ChangeUpdated ChangeType = "updated"
	ChangeRemoved ChangeType = "removed"
)

// ChangeEvent describes the difference for one key between two snapshots.
// Added carries only Current, Removed only Previous, Updated both.
type ChangeEvent struct {
	SourceID   string          `json:"source_id"`
	ExternalID string          `json:"external_id"`
	Type       ChangeType      `json:"type"`
	DetectedAt time.Time       `json:"detected_at"`
	Previous   *NormalizedItem `json:"previous,omitempty"`
	Current    *NormalizedItem `json:"current,omitempty"`
}

// Snapshot is the full set of items observed for a tracker at one point in time.
type Snapshot struct {
	ID        string           `json:"id"`
	TrackerID string           `json:"tracker_id"`
	TakenAt   time.Time        `json:"taken_at"`
	Items     []NormalizedItem `json:"items"`
}
