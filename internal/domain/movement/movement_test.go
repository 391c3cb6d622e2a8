package movement_test

import (
	"testing"

	"github.com/okian/watchtower/internal/domain/model"
	"github.com/okian/watchtower/internal/domain/movement"
	. "github.com/smartystreets/goconvey/convey"
)

func history(token string, points ...float64) model.PriceHistory {
	h := model.PriceHistory{TokenID: token}
	for i, p := range points {
		h.History = append(h.History, model.PricePoint{Timestamp: int64(i + 1), Price: p})
	}
	return h
}

func TestSummarize(t *testing.T) {
	Convey("Given an empty history", t, func() {
		s := movement.Summarize(model.PriceHistory{TokenID: "yes"})

		Convey("Then every field is zero", func() {
			So(s, ShouldResemble, movement.Summary{})
		})
	})

	Convey("Given a falling series", t, func() {
		s := movement.Summarize(history("yes", 0.8, 0.9, 0.6))

		Convey("Then first and last points drive the summary", func() {
			So(s.TokenID, ShouldEqual, "yes")
			So(s.StartPrice, ShouldEqual, 0.8)
			So(s.EndPrice, ShouldEqual, 0.6)
			So(s.AbsChange, ShouldAlmostEqual, 0.2, 1e-12)
			So(s.PercentChange, ShouldAlmostEqual, -0.25, 1e-12)
		})
	})

	Convey("Given a series starting at zero", t, func() {
		s := movement.Summarize(history("no", 0, 0.3))

		Convey("Then percent change is zero instead of dividing by zero", func() {
			So(s.AbsChange, ShouldAlmostEqual, 0.3, 1e-12)
			So(s.PercentChange, ShouldEqual, 0)
		})
	})

	Convey("Given an out-of-order series", t, func() {
		h := model.PriceHistory{TokenID: "t", History: []model.PricePoint{{Timestamp: 5, Price: 2}, {Timestamp: 1, Price: 1}}}

		Convey("Then array order is used without re-sorting", func() {
			s := movement.Summarize(h)
			So(s.StartPrice, ShouldEqual, 2)
			So(s.EndPrice, ShouldEqual, 1)
		})
	})
}

func TestCompare(t *testing.T) {
	Convey("Given a left series that moved more", t, func() {
		_, _, cmp := movement.CompareHistories(history("", 1, 2), history("", 1, 1.1))

		Convey("Then left dominates with a 4dp rationale", func() {
			So(cmp.Dominant, ShouldEqual, movement.Left)
			So(cmp.Rationale, ShouldEqual, "left moved more (1.0000 vs 0.1000).")
		})
	})

	Convey("Given a right series that moved more", t, func() {
		cmp := movement.Compare(movement.Summarize(history("a", 0.5, 0.51)), movement.Summarize(history("b", 0.5, 0.2)))

		Convey("Then right dominates and is named by token", func() {
			So(cmp.Dominant, ShouldEqual, movement.Right)
			So(cmp.Rationale, ShouldEqual, "right (b) moved more (0.3000 vs 0.0100).")
		})
	})

	Convey("Given two series with equal absolute change", t, func() {
		_, _, cmp := movement.CompareHistories(history("", 1, 1.5), history("", 3, 3.5))

		Convey("Then the comparison is a tie", func() {
			So(cmp.Dominant, ShouldEqual, movement.Tie)
			So(cmp.Rationale, ShouldEqual, "Both moved equally (0.5000).")
		})
	})

	Convey("Given larger percent but smaller absolute change on the left", t, func() {
		cmp := movement.Compare(movement.Summarize(history("", 0.1, 0.2)), movement.Summarize(history("", 10, 11)))

		Convey("Then only absolute change decides", func() {
			So(cmp.Dominant, ShouldEqual, movement.Right)
		})
	})
}
