package combo

import (
	"testing"
	"time"

	"github.com/flowgrade/flowgrade/internal/models"
)

var expiry = time.Date(2026, 1, 17, 0, 0, 0, 0, time.UTC)

func leg(id string, right models.Right, strike float64, fill models.FillStyle) models.ClassifiedTrade {
	return models.ClassifiedTrade{
		NormalizedTrade: models.NormalizedTrade{
			ID:     id,
			Ticker: "XYZ",
			Right:  right,
			Strike: strike,
			Expiry: expiry,
		},
		Fill: fill,
	}
}

func TestMatches_ValidPairings(t *testing.T) {
	cases := []struct {
		name string
		a, b models.ClassifiedTrade
	}{
		{
			"call bought + put sold (bullish)",
			leg("a", models.RightCall, 105, models.FillAtAsk),
			leg("b", models.RightPut, 103, models.FillAtBid),
		},
		{
			"call sold + put bought (bearish)",
			leg("a", models.RightCall, 105, models.FillBelowBid),
			leg("b", models.RightPut, 105, models.FillAboveAsk),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			set := []models.ClassifiedTrade{tc.a, tc.b}
			if !Matches(tc.a, set) {
				t.Error("Expected a to match b")
			}
			if !Matches(tc.b, set) {
				t.Error("Expected b to match a (symmetry)")
			}
		})
	}
}

func TestMatches_InvalidPairings(t *testing.T) {
	bullishCall := leg("a", models.RightCall, 105, models.FillAtAsk)

	cases := []struct {
		name  string
		other models.ClassifiedTrade
	}{
		{"same right", leg("b", models.RightCall, 105, models.FillAtBid)},
		{"conflicting directions", leg("b", models.RightPut, 105, models.FillAtAsk)},
		{"unknown fill", leg("b", models.RightPut, 105, models.FillUnknown)},
		{"strike too far", leg("b", models.RightPut, 120, models.FillAtBid)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			set := []models.ClassifiedTrade{bullishCall, tc.other}
			if Matches(bullishCall, set) {
				t.Error("Expected no combo match")
			}
		})
	}

	t.Run("different expiry", func(t *testing.T) {
		other := leg("b", models.RightPut, 105, models.FillAtBid)
		other.Expiry = expiry.AddDate(0, 1, 0)
		set := []models.ClassifiedTrade{bullishCall, other}
		if Matches(bullishCall, set) {
			t.Error("Expected no match across expiries")
		}
	})

	t.Run("different underlying", func(t *testing.T) {
		other := leg("b", models.RightPut, 105, models.FillAtBid)
		other.Ticker = "ABC"
		set := []models.ClassifiedTrade{bullishCall, other}
		if Matches(bullishCall, set) {
			t.Error("Expected no match across underlyings")
		}
	})
}

func TestMatches_StrikeProximityBoundary(t *testing.T) {
	a := leg("a", models.RightCall, 100, models.FillAtAsk)

	t.Run("exactly 5 percent apart", func(t *testing.T) {
		b := leg("b", models.RightPut, 105, models.FillAtBid)
		set := []models.ClassifiedTrade{a, b}
		if !Matches(a, set) {
			t.Error("Expected match at the 5% boundary")
		}
	})

	t.Run("just past 5 percent", func(t *testing.T) {
		b := leg("b", models.RightPut, 105.3, models.FillAtBid)
		set := []models.ClassifiedTrade{a, b}
		if Matches(a, set) {
			t.Error("Expected no match past the 5% boundary")
		}
	})
}

func TestMatches_SelfAndUnknown(t *testing.T) {
	a := leg("a", models.RightCall, 105, models.FillAtAsk)

	t.Run("never matches itself", func(t *testing.T) {
		if Matches(a, []models.ClassifiedTrade{a}) {
			t.Error("A trade must not combo-match itself")
		}
	})

	t.Run("unknown direction never matches", func(t *testing.T) {
		u := leg("u", models.RightCall, 105, models.FillUnknown)
		other := leg("b", models.RightPut, 105, models.FillAtBid)
		if Matches(u, []models.ClassifiedTrade{u, other}) {
			t.Error("Unclassified trade must not combo-match")
		}
	})
}

// Symmetry over a brute-force grid: if A matches B then B matches A.
func TestMatches_Symmetry(t *testing.T) {
	fills := []models.FillStyle{
		models.FillAboveAsk, models.FillAtAsk, models.FillAtBid,
		models.FillBelowBid, models.FillUnknown,
	}
	strikes := []float64{95, 100, 104.9, 105}
	var set []models.ClassifiedTrade
	id := 0
	for _, r := range []models.Right{models.RightCall, models.RightPut} {
		for _, f := range fills {
			for _, s := range strikes {
				id++
				set = append(set, leg(string(rune('a'+id)), r, s, f))
			}
		}
	}
	for i := range set {
		for j := range set {
			if i == j {
				continue
			}
			ab := Matches(set[i], []models.ClassifiedTrade{set[i], set[j]})
			ba := Matches(set[j], []models.ClassifiedTrade{set[i], set[j]})
			if ab != ba {
				t.Fatalf("Asymmetric match between %+v and %+v", set[i].NormalizedTrade, set[j].NormalizedTrade)
			}
		}
	}
}
