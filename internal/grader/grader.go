// Package grader produces the 0-100 positioning grade for a classified
// trade: a weighted composite of expiration proximity, contract P&L, combo
// corroboration, price action, and stock reaction.
package grader

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/flowgrade/flowgrade/internal/marketstate"
	"github.com/flowgrade/flowgrade/internal/models"
)

// Sub-score caps. The total is always the plain sum, bounded by 100.
const (
	MaxExpirationScore    = 25.0
	MaxContractPnLScore   = 25.0
	MaxComboScore         = 10.0
	MaxPriceActionScore   = 25.0
	MaxStockReactionScore = 15.0
)

// tradingDayHours converts elapsed wall-clock hours into trading days.
const tradingDayHours = 6.5

// sidewaysBandPct is the absolute move, in percent, below which the stock
// reaction counts as sideways.
const sidewaysBandPct = 1.0

// Breakdown carries the five sub-scores of a grade.
type Breakdown struct {
	Expiration    float64 `json:"expiration"`
	ContractPnL   float64 `json:"contract_pnl"`
	Combo         float64 `json:"combo"`
	PriceAction   float64 `json:"price_action"`
	StockReaction float64 `json:"stock_reaction"`
}

// Total returns the sum of the sub-scores.
func (b Breakdown) Total() float64 {
	return b.Expiration + b.ContractPnL + b.Combo + b.PriceAction + b.StockReaction
}

// Tier is a presentation band for the score. It is a display hint, not part
// of the scoring contract.
type Tier string

const (
	// TierStrongest covers scores of 85 and above
	TierStrongest Tier = "strongest"
	// TierStrong covers scores of 70 and above
	TierStrong Tier = "strong"
	// TierNeutral covers scores of 50 and above
	TierNeutral Tier = "neutral"
	// TierWeak covers scores of 33 and above
	TierWeak Tier = "weak"
	// TierWeakest covers everything below 33
	TierWeakest Tier = "weakest"
)

// Grade is the composite positioning grade for one trade.
type Grade struct {
	Score     float64   `json:"score"`
	Letter    string    `json:"letter"`
	Tier      Tier      `json:"tier"`
	Breakdown Breakdown `json:"breakdown"`
	// Degraded marks a partial result: the option mark was not available,
	// so only the expiration sub-score is populated. Callers surface this
	// as "loading", not as a real assessment.
	Degraded bool `json:"degraded"`
}

// InsufficientDataError signals that the price-action or stock-reaction
// prerequisites (current price, historical volatility) are missing. It is a
// hard failure distinct from a zero score: without these inputs the grade
// would be misleadingly optimistic.
type InsufficientDataError struct {
	Missing []string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient market data: missing %s", strings.Join(e.Missing, ", "))
}

// Grader computes positioning grades. The clock is injectable so checkpoint
// logic is testable without real time passing.
type Grader struct {
	now func() time.Time
}

// New creates a Grader using the wall clock.
func New() *Grader {
	return &Grader{now: time.Now}
}

// NewWithClock creates a Grader with a custom clock for tests.
func NewWithClock(now func() time.Time) *Grader {
	if now == nil {
		now = time.Now
	}
	return &Grader{now: now}
}

// Grade computes the positioning grade for a trade against one immutable
// market-state snapshot, so all sub-scores observe the same instant even
// while the poller keeps writing.
//
// If the option mark is missing the result is a degraded partial grade (nil
// error). If the current price or volatility is missing the call fails with
// *InsufficientDataError.
func (g *Grader) Grade(t models.ClassifiedTrade, snap marketstate.Snapshot, comboMatch bool) (*Grade, error) {
	now := g.now()
	breakdown := Breakdown{
		Expiration: expirationScore(t.Expiry, now),
	}

	mark, ok := snap.OptionMark(t.OptionKey().Symbol()).Value()
	if !ok {
		// No mark yet: return the partial result the caller must surface
		// as "loading", not as a real grade.
		score := breakdown.Total()
		return &Grade{
			Score:     score,
			Letter:    Letter(score),
			Tier:      TierFor(score),
			Breakdown: breakdown,
			Degraded:  true,
		}, nil
	}
	breakdown.ContractPnL = contractPnLScore(t.Premium, mark)

	if comboMatch {
		breakdown.Combo = MaxComboScore
	}

	price, priceOK := snap.Price(t.Ticker).Value()
	vol, volOK := snap.Volatility(t.Ticker).Value()
	if !priceOK || !volOK {
		missing := make([]string, 0, 2)
		if !priceOK {
			missing = append(missing, "current price")
		}
		if !volOK {
			missing = append(missing, "historical volatility")
		}
		return nil, &InsufficientDataError{Missing: missing}
	}

	breakdown.PriceAction = priceActionScore(t.Spot, price, vol, t.ExecutedAt, now)
	breakdown.StockReaction = stockReactionScore(t.Direction(), t.Spot, price, t.ExecutedAt, now)

	// The caps sum to exactly 100, so the total never needs clamping and
	// always equals the breakdown sum.
	score := breakdown.Total()
	return &Grade{
		Score:     score,
		Letter:    Letter(score),
		Tier:      TierFor(score),
		Breakdown: breakdown,
	}, nil
}

// expirationScore rewards near-dated trades: conviction decays with time to
// expiry. Buckets count calendar days, so grading intraday against a
// date-valued expiry does not undercount by one.
func expirationScore(expiry time.Time, now time.Time) float64 {
	days := calendarDays(now, expiry)
	if days < 0 {
		days = 0
	}
	switch {
	case days <= 7:
		return 25
	case days <= 14:
		return 20
	case days <= 21:
		return 15
	case days <= 28:
		return 10
	case days <= 42:
		return 5
	default:
		return 0
	}
}

// calendarDays returns the number of calendar dates between from and to,
// ignoring the time of day of either.
func calendarDays(from, to time.Time) int {
	f := from.UTC()
	t := to.UTC()
	fd := time.Date(f.Year(), f.Month(), f.Day(), 0, 0, 0, 0, time.UTC)
	td := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return int(td.Sub(fd).Hours() / 24)
}

// contractPnLScore scores the percent change of the mark against the entry
// premium. A losing position from the original entry cost scores higher: the
// market has moved against the position, so it is now cheap to add and the
// thesis is being tested, a contrarian-cost heuristic.
func contractPnLScore(entry, mark float64) float64 {
	if entry <= 0 {
		return 0
	}
	pct := (mark - entry) / entry * 100
	switch {
	case pct <= -40:
		return 25
	case pct <= -20:
		return 20
	case math.Abs(pct) <= 10:
		return 15
	case pct >= 20:
		return 5
	default:
		return 10
	}
}

// priceActionScore rewards an underlying that has stayed within one
// historical standard deviation since entry; the longer it holds, the
// stronger the thesis looks. A move beyond one deviation zeroes the score.
func priceActionScore(entrySpot, current, vol float64, executedAt, now time.Time) float64 {
	if entrySpot <= 0 {
		return 0
	}
	elapsedDays := int(now.Sub(executedAt).Hours() / tradingDayHours)
	movePct := (current - entrySpot) / entrySpot * 100
	if math.Abs(movePct) > vol {
		return 0
	}
	switch {
	case elapsedDays >= 3:
		return 25
	case elapsedDays >= 2:
		return 20
	case elapsedDays >= 1:
		return 15
	default:
		return 10
	}
}

// stockReactionScore evaluates the underlying's move at the 1-hour and
// 3-hour checkpoints after the trade. Reversal against the implied
// direction scores highest (the position got a better price), sideways
// scores the middle, continuation the least. Only elapsed checkpoints
// contribute.
func stockReactionScore(dir models.Direction, entrySpot, current float64, executedAt, now time.Time) float64 {
	if entrySpot <= 0 || dir == models.DirectionUnknown {
		return 0
	}
	movePct := (current - entrySpot) / entrySpot * 100

	score := 0.0
	for _, checkpoint := range []time.Duration{time.Hour, 3 * time.Hour} {
		if now.Sub(executedAt) < checkpoint {
			continue
		}
		score += checkpointScore(dir, movePct)
	}
	return score
}

func checkpointScore(dir models.Direction, movePct float64) float64 {
	if math.Abs(movePct) < sidewaysBandPct {
		return 5
	}
	withDirection := (dir == models.DirectionBullish && movePct > 0) ||
		(dir == models.DirectionBearish && movePct < 0)
	if withDirection {
		return 2.5
	}
	return 7.5
}

// Letter maps a score to its letter grade. The thresholds are deliberately
// non-linear.
func Letter(score float64) string {
	switch {
	case score >= 85:
		return "A+"
	case score >= 80:
		return "A"
	case score >= 75:
		return "A-"
	case score >= 70:
		return "B+"
	case score >= 65:
		return "B"
	case score >= 60:
		return "B-"
	case score >= 55:
		return "C+"
	case score >= 50:
		return "C"
	case score >= 48:
		return "C-"
	case score >= 43:
		return "D+"
	case score >= 38:
		return "D"
	case score >= 33:
		return "D-"
	default:
		return "F"
	}
}

// TierFor maps a score to its display band.
func TierFor(score float64) Tier {
	switch {
	case score >= 85:
		return TierStrongest
	case score >= 70:
		return TierStrong
	case score >= 50:
		return TierNeutral
	case score >= 33:
		return TierWeak
	default:
		return TierWeakest
	}
}
