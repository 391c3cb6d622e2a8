// Package movement summarizes price series and compares their movement.
package movement

import (
	"fmt"
	"math"

	"github.com/okian/watchtower/internal/domain/model"
	"github.com/shopspring/decimal"
)

const rationalePlaces = 4

// Summary describes how far a series moved between its first and last point.
// PercentChange is a ratio (0.1 == 10%).
type Summary struct {
	TokenID       string  `json:"token_id"`
	StartPrice    float64 `json:"start_price"`
	EndPrice      float64 `json:"end_price"`
	AbsChange     float64 `json:"abs_change"`
	PercentChange float64 `json:"percent_change"`
}

// Side names the winner of a comparison.
type Side string

const (
	Left  Side = "left"
	Right Side = "right"
	Tie   Side = "tie"
)

// Comparison is the outcome of Compare.
type Comparison struct {
	Dominant  Side   `json:"dominant"`
	Rationale string `json:"rationale"`
}

// Summarize reduces a history to its movement. An empty history yields a
// zero summary. Points are taken in the given order.
func Summarize(h model.PriceHistory) Summary {
	if len(h.History) == 0 {
		return Summary{}
	}
	start := h.History[0].Price
	end := h.History[len(h.History)-1].Price
	s := Summary{
		TokenID:    h.TokenID,
		StartPrice: start,
		EndPrice:   end,
		AbsChange:  math.Abs(end - start),
	}
	if start != 0 {
		s.PercentChange = (end - start) / start
	}
	return s
}

// Compare declares which summary moved more by absolute change.
func Compare(left, right Summary) Comparison {
	l := decimal.NewFromFloat(left.AbsChange).Round(rationalePlaces)
	r := decimal.NewFromFloat(right.AbsChange).Round(rationalePlaces)
	switch {
	case left.AbsChange > right.AbsChange:
		return Comparison{
			Dominant:  Left,
			Rationale: fmt.Sprintf("%s moved more (%s vs %s).", label(left.TokenID, "left"), l.StringFixed(rationalePlaces), r.StringFixed(rationalePlaces)),
		}
	case right.AbsChange > left.AbsChange:
		return Comparison{
			Dominant:  Right,
			Rationale: fmt.Sprintf("%s moved more (%s vs %s).", label(right.TokenID, "right"), r.StringFixed(rationalePlaces), l.StringFixed(rationalePlaces)),
		}
	default:
		return Comparison{
			Dominant:  Tie,
			Rationale: fmt.Sprintf("Both moved equally (%s).", l.StringFixed(rationalePlaces)),
		}
	}
}

// CompareHistories summarizes both series and compares them.
func CompareHistories(left, right model.PriceHistory) (Summary, Summary, Comparison) {
	ls, rs := Summarize(left), Summarize(right)
	return ls, rs, Compare(ls, rs)
}

func label(tokenID, side string) string {
	if tokenID == "" {
		return side
	}
	return fmt.Sprintf("%s (%s)", side, tokenID)
}
