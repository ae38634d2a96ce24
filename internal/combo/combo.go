// Package combo detects offsetting option legs that corroborate a single
// directional thesis, e.g. aggressive call buying paired with aggressive put
// selling on the same name and expiry.
package combo

import (
	"math"

	"github.com/flowgrade/flowgrade/internal/models"
)

// StrikeProximity is the maximum strike distance between two legs of a
// combo, as a fraction of the larger strike. Using the larger strike keeps
// the predicate symmetric: if A matches B then B matches A.
const StrikeProximity = 0.05

// Matches reports whether any other trade in the visible set forms a combo
// with t: same underlying and expiry, strike within StrikeProximity,
// opposite right, and fill styles implying the same market view. The
// predicate is recomputed against the current set on every call; nothing is
// cached across set changes.
func Matches(t models.ClassifiedTrade, set []models.ClassifiedTrade) bool {
	dir := t.Direction()
	if dir == models.DirectionUnknown {
		return false
	}
	for i := range set {
		u := &set[i]
		if u.ID == t.ID {
			continue
		}
		if !pairs(&t, u, dir) {
			continue
		}
		return true
	}
	return false
}

func pairs(t *models.ClassifiedTrade, u *models.ClassifiedTrade, dir models.Direction) bool {
	if u.Ticker != t.Ticker || !u.Expiry.Equal(t.Expiry) {
		return false
	}
	if u.Right != t.Right.Opposite() {
		return false
	}
	limit := StrikeProximity * math.Max(t.Strike, u.Strike)
	if math.Abs(u.Strike-t.Strike) > limit {
		return false
	}
	return u.Direction() == dir
}
