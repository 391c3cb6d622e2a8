package analysis

import (
	"context"
	"fmt"

	"github.com/okian/watchtower/internal/domain/model"
)

// Dispatcher routes an input to the analyzer that matches the tracker's
// analysis variant.
type Dispatcher struct {
	computational Analyzer
	ai            Analyzer
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithComputational overrides the computational analyzer.
func WithComputational(a Analyzer) Option {
	return func(d *Dispatcher) {
		if a != nil {
			d.computational = a
		}
	}
}

// WithAI sets the analyzer used for model.AI analyses.
func WithAI(a Analyzer) Option {
	return func(d *Dispatcher) {
		d.ai = a
	}
}

// NewDispatcher creates a dispatcher with the computational analyzer wired in.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{computational: NewComputational()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Analyze implements Analyzer.
func (d *Dispatcher) Analyze(ctx context.Context, in Input) (Outcome, error) {
	switch in.Tracker.Analysis.(type) {
	case model.Computational:
		return d.computational.Analyze(ctx, in)
	case model.AI:
		if d.ai == nil {
			return Outcome{}, fmt.Errorf("%w: ai", ErrAnalyzerUnavailable)
		}
		return d.ai.Analyze(ctx, in)
	default:
		return Outcome{}, fmt.Errorf("%w: %T", model.ErrUnknownAnalysis, in.Tracker.Analysis)
	}
}
