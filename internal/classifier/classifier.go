// Package classifier labels a trade's fill style relative to the quote
// prevailing at or just before the trade's timestamp.
package classifier

import (
	"math"

	"github.com/flowgrade/flowgrade/internal/models"
)

// QuoteTolerance is the distance beyond the quoted ask (or under the bid)
// at which a fill counts as printing through the quote.
const QuoteTolerance = 0.01

// priceEpsilon handles floating rounding when comparing a fill to the exact
// bid or ask.
const priceEpsilon = 1e-9

// Classify returns the fill-style tag for a trade given the contemporaneous
// quote. The decision tree is ordered: the through-the-quote checks run
// first, then exact bid/ask equality, then the midpoint rule, so trades
// printed exactly on the quote are never miscategorized by rounding.
// A missing or non-positive quote or fill yields FillUnknown.
func Classify(t models.NormalizedTrade, q models.Quote) models.FillStyle {
	fill := t.Premium
	if fill <= 0 || q.Bid <= 0 || q.Ask <= 0 {
		return models.FillUnknown
	}

	switch {
	// The tolerance comparisons go through the epsilon as well: for penny
	// quotes q.Ask+QuoteTolerance can round above the exact cent, which
	// would misfile a fill exactly one cent through the quote.
	case fill-q.Ask >= QuoteTolerance-priceEpsilon:
		return models.FillAboveAsk
	case q.Bid-fill >= QuoteTolerance-priceEpsilon:
		return models.FillBelowBid
	case math.Abs(fill-q.Ask) <= priceEpsilon:
		return models.FillAtAsk
	case math.Abs(fill-q.Bid) <= priceEpsilon:
		return models.FillAtBid
	case fill >= q.Mid():
		// Between the quote but leaning toward the ask: buy-side pressure.
		return models.FillAtAsk
	default:
		return models.FillAtBid
	}
}
