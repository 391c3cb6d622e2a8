// Package analysis turns a run's change events and price movements into an
// analysis outcome.
package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/okian/watchtower/internal/domain/changeset"
	"github.com/okian/watchtower/internal/domain/model"
	"github.com/okian/watchtower/internal/domain/movement"
)

// Input carries everything an analyzer may look at for one run.
type Input struct {
	Tracker    model.Tracker
	Events     []model.ChangeEvent
	Movements  []movement.Summary
	Comparison *movement.Comparison
}

// Outcome is the analyzer's verdict.
type Outcome struct {
	Summary   string
	Triggered bool
	Footnote  string
}

// Analyzer produces an outcome from a run input.
type Analyzer interface {
	// Analyze honors ctx for cancellation.
	Analyze(ctx context.Context, in Input) (Outcome, error)
}

// ComputationalAnalyzer applies the thresholds of a model.Computational
// analysis without any external call.
type ComputationalAnalyzer struct{}

// NewComputational returns the threshold analyzer.
func NewComputational() *ComputationalAnalyzer {
	return &ComputationalAnalyzer{}
}

// Analyze triggers when the event count reaches MinChanges or any movement
// reaches MinAbsMove. Zero thresholds are disabled.
func (a *ComputationalAnalyzer) Analyze(ctx context.Context, in Input) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, fmt.Errorf("context cancelled: %w", err)
	}
	cfg, ok := in.Tracker.Analysis.(model.Computational)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: computational analyzer got %T", ErrWrongAnalysis, in.Tracker.Analysis)
	}

	triggered := false
	var reasons []string
	if cfg.MinChanges > 0 && len(in.Events) >= cfg.MinChanges {
		triggered = true
		reasons = append(reasons, fmt.Sprintf("%d changes >= %d", len(in.Events), cfg.MinChanges))
	}
	if cfg.MinAbsMove > 0 {
		for _, m := range in.Movements {
			if m.AbsChange >= cfg.MinAbsMove {
				triggered = true
				reasons = append(reasons, fmt.Sprintf("%s moved %.4f >= %.4f", tokenLabel(m.TokenID), m.AbsChange, cfg.MinAbsMove))
				break
			}
		}
	}

	return Outcome{
		Summary:   summarize(in),
		Triggered: triggered,
		Footnote:  strings.Join(reasons, "; "),
	}, nil
}

func summarize(in Input) string {
	counts := changeset.Count(in.Events)
	var b strings.Builder
	fmt.Fprintf(&b, "%d added, %d updated, %d removed.",
		counts[model.ChangeAdded], counts[model.ChangeUpdated], counts[model.ChangeRemoved])
	for _, m := range in.Movements {
		fmt.Fprintf(&b, " %s %.4f -> %.4f (%+.2f%%).", tokenLabel(m.TokenID), m.StartPrice, m.EndPrice, m.PercentChange*100)
	}
	if in.Comparison != nil {
		b.WriteString(" ")
		b.WriteString(in.Comparison.Rationale)
	}
	return b.String()
}

func tokenLabel(id string) string {
	if id == "" {
		return "series"
	}
	return id
}
