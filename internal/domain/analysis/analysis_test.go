package analysis_test

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/watchtower/internal/domain/analysis"
	"github.com/okian/watchtower/internal/domain/model"
	"github.com/okian/watchtower/internal/domain/movement"
	. "github.com/smartystreets/goconvey/convey"
)

type stubAnalyzer struct {
	calls int
	out   analysis.Outcome
}

func (s *stubAnalyzer) Analyze(_ context.Context, _ analysis.Input) (analysis.Outcome, error) {
	s.calls++
	return s.out, nil
}

func events(types ...model.ChangeType) []model.ChangeEvent {
	out := make([]model.ChangeEvent, 0, len(types))
	for _, t := range types {
		out = append(out, model.ChangeEvent{Type: t})
	}
	return out
}

func TestComputationalAnalyzer(t *testing.T) {
	ctx := context.Background()
	a := analysis.NewComputational()

	Convey("Given a tracker requiring two changes", t, func() {
		tr := model.Tracker{ID: "t", Analysis: model.Computational{MinChanges: 2}}

		Convey("When only one change happened", func() {
			out, err := a.Analyze(ctx, analysis.Input{Tracker: tr, Events: events(model.ChangeAdded)})

			Convey("Then it does not trigger but still summarizes", func() {
				So(err, ShouldBeNil)
				So(out.Triggered, ShouldBeFalse)
				So(out.Summary, ShouldStartWith, "1 added, 0 updated, 0 removed.")
			})
		})

		Convey("When two changes happened", func() {
			out, err := a.Analyze(ctx, analysis.Input{Tracker: tr, Events: events(model.ChangeAdded, model.ChangeRemoved)})

			Convey("Then it triggers with a footnote", func() {
				So(err, ShouldBeNil)
				So(out.Triggered, ShouldBeTrue)
				So(out.Footnote, ShouldEqual, "2 changes >= 2")
			})
		})
	})

	Convey("Given a tracker with a movement threshold", t, func() {
		tr := model.Tracker{Analysis: model.Computational{MinAbsMove: 0.05}}
		cmp := movement.Comparison{Dominant: movement.Left, Rationale: "left moved more (0.1000 vs 0.0000)."}

		Convey("When a series moved past it", func() {
			out, err := a.Analyze(ctx, analysis.Input{
				Tracker:    tr,
				Movements:  []movement.Summary{{TokenID: "yes", StartPrice: 0.4, EndPrice: 0.5, AbsChange: 0.1, PercentChange: 0.25}},
				Comparison: &cmp,
			})

			Convey("Then it triggers and carries the comparison", func() {
				So(err, ShouldBeNil)
				So(out.Triggered, ShouldBeTrue)
				So(out.Summary, ShouldContainSubstring, "yes 0.4000 -> 0.5000 (+25.00%).")
				So(out.Summary, ShouldEndWith, cmp.Rationale)
			})
		})
	})

	Convey("Given an ai analysis", t, func() {
		_, err := a.Analyze(ctx, analysis.Input{Tracker: model.Tracker{Analysis: model.AI{}}})

		Convey("Then the computational analyzer refuses it", func() {
			So(errors.Is(err, analysis.ErrWrongAnalysis), ShouldBeTrue)
		})
	})

	Convey("Given a cancelled context", t, func() {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := a.Analyze(cctx, analysis.Input{Tracker: model.Tracker{Analysis: model.Computational{}}})

		Convey("Then it returns the context error", func() {
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})
	})
}

func TestDispatcher(t *testing.T) {
	ctx := context.Background()

	Convey("Given a dispatcher with an ai analyzer", t, func() {
		ai := &stubAnalyzer{out: analysis.Outcome{Summary: "from model", Triggered: true}}
		d := analysis.NewDispatcher(analysis.WithAI(ai))

		Convey("When the tracker uses ai analysis", func() {
			out, err := d.Analyze(ctx, analysis.Input{Tracker: model.Tracker{Analysis: model.AI{Prompt: "p"}}})

			Convey("Then the ai analyzer handles it", func() {
				So(err, ShouldBeNil)
				So(ai.calls, ShouldEqual, 1)
				So(out.Summary, ShouldEqual, "from model")
			})
		})

		Convey("When the tracker uses computational analysis", func() {
			_, err := d.Analyze(ctx, analysis.Input{Tracker: model.Tracker{Analysis: model.Computational{}}})

			Convey("Then the ai analyzer is not called", func() {
				So(err, ShouldBeNil)
				So(ai.calls, ShouldEqual, 0)
			})
		})

		Convey("When the tracker has no analysis", func() {
			_, err := d.Analyze(ctx, analysis.Input{Tracker: model.Tracker{}})

			Convey("Then an unknown analysis error is returned", func() {
				So(errors.Is(err, model.ErrUnknownAnalysis), ShouldBeTrue)
			})
		})
	})

	Convey("Given a dispatcher without an ai analyzer", t, func() {
		d := analysis.NewDispatcher()
		_, err := d.Analyze(ctx, analysis.Input{Tracker: model.Tracker{Analysis: model.AI{}}})

		Convey("Then ai analyses fail as unavailable", func() {
			So(errors.Is(err, analysis.ErrAnalyzerUnavailable), ShouldBeTrue)
		})
	})
}
