// Package normalize wraps raw source payloads into fingerprinted items.
package normalize

import (
	"time"

	"github.com/okian/watchtower/internal/domain/fingerprint"
	"github.com/okian/watchtower/internal/domain/model"
)

// Option applies a configuration option to BuildItem.
type Option func(*options)

type options struct {
	at  time.Time
	now func() time.Time
}

// WithNormalizedAt fixes the normalization timestamp.
func WithNormalizedAt(at time.Time) Option {
	return func(o *options) {
		o.at = at
	}
}

// WithClock sets the clock used when no timestamp is given.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// BuildItem creates a NormalizedItem for data. NormalizedAt defaults to now.
func BuildItem(sourceID, externalID string, data map[string]any, opts ...Option) model.NormalizedItem {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	at := o.at
	if at.IsZero() {
		at = o.now()
	}
	return model.NormalizedItem{
		SourceID:     sourceID,
		ExternalID:   externalID,
		NormalizedAt: at,
		Fingerprint:  fingerprint.Of(data),
		Data:         data,
	}
}
