// Package changeset diffs two snapshots of normalized items into change events.
package changeset

import (
	"sort"
	"time"

	"github.com/okian/watchtower/internal/domain/model"
)

// Computer diffs snapshots. The zero value uses time.Now.
type Computer struct {
	now func() time.Time
}

// Option applies a configuration option to the Computer.
type Option func(*Computer)

// WithClock sets the clock that stamps DetectedAt.
func WithClock(now func() time.Time) Option {
	return func(c *Computer) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a Computer.
func New(opts ...Option) *Computer {
	c := &Computer{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compute diffs previous against next using the wall clock.
func Compute(previous, next []model.NormalizedItem) []model.ChangeEvent {
	return New().Compute(previous, next)
}

// Compute returns one event per key present in only one snapshot and one
// updated event per key whose fingerprint changed, sorted by ExternalID.
// All events share a single DetectedAt.
func (c *Computer) Compute(previous, next []model.NormalizedItem) []model.ChangeEvent {
	now := time.Now
	if c != nil && c.now != nil {
		now = c.now
	}
	detectedAt := now()

	// Duplicate keys in previous: last write wins.
	index := make(map[model.ItemKey]model.NormalizedItem, len(previous))
	for _, item := range previous {
		index[item.Key()] = item
	}

	events := make([]model.ChangeEvent, 0)
	for _, item := range next {
		cur := item
		key := cur.Key()
		prev, ok := index[key]
		switch {
		case !ok:
			events = append(events, model.ChangeEvent{
				SourceID:   key.SourceID,
				ExternalID: key.ExternalID,
				Type:       model.ChangeAdded,
				DetectedAt: detectedAt,
				Current:    &cur,
			})
		case prev.Fingerprint != cur.Fingerprint:
			events = append(events, model.ChangeEvent{
				SourceID:   key.SourceID,
				ExternalID: key.ExternalID,
				Type:       model.ChangeUpdated,
				DetectedAt: detectedAt,
				Previous:   &prev,
				Current:    &cur,
			})
		}
		delete(index, key)
	}

	// Walk previous in input order so removed events do not depend on map order.
	for _, item := range previous {
		key := item.Key()
		prev, ok := index[key]
		if !ok {
			continue
		}
		delete(index, key)
		events = append(events, model.ChangeEvent{
			SourceID:   key.SourceID,
			ExternalID: key.ExternalID,
			Type:       model.ChangeRemoved,
			DetectedAt: detectedAt,
			Previous:   &prev,
		})
	}

	sort.SliceStable(events, func(i, j int) bool {
		if events[i].ExternalID != events[j].ExternalID {
			return events[i].ExternalID < events[j].ExternalID
		}
		return events[i].SourceID < events[j].SourceID
	})
	return events
}

// Count tallies events by type.
func Count(events []model.ChangeEvent) map[model.ChangeType]int {
	counts := make(map[model.ChangeType]int, 3)
	for _, e := range events {
		counts[e.Type]++
	}
	return counts
}
