package models

import "time"

// NormalizedTrade is either a single pass-through print or a synthetic
// bundle of small same-contract, same-minute prints. It is created once per
// ingestion pass and never mutated afterward; identity does not survive
// across ingestion passes.
type NormalizedTrade struct {
	ID           string    `json:"id"`
	Ticker       string    `json:"ticker"`
	Right        Right     `json:"right"`
	Strike       float64   `json:"strike"`
	Expiry       time.Time `json:"expiry"`
	Size         int       `json:"size"`
	Premium      float64   `json:"premium"` // per contract, size-weighted for bundles
	TotalPremium float64   `json:"total_premium"`
	Spot         float64   `json:"spot"`
	ExecutedAt   time.Time `json:"executed_at"`
	Tag          TradeTag  `json:"tag"`
	Exchange     string    `json:"exchange"`
	// BundledCount is the number of raw prints merged into this record.
	// 1 for a pass-through print.
	BundledCount int `json:"bundled_count"`
}

// OptionKey returns the fully-qualified contract this trade is on.
func (t *NormalizedTrade) OptionKey() OptionKey {
	return OptionKey{
		Underlying: t.Ticker,
		Expiry:     t.Expiry,
		Right:      t.Right,
		Strike:     t.Strike,
	}
}

// FillStyle tags where an execution printed relative to the prevailing quote.
type FillStyle string

const (
	// FillAboveAsk means the trade printed at least a cent through the ask.
	FillAboveAsk FillStyle = "above_ask"
	// FillAtAsk means the trade printed at the ask (or at/above the midpoint).
	FillAtAsk FillStyle = "at_ask"
	// FillAtBid means the trade printed at the bid (or below the midpoint).
	FillAtBid FillStyle = "at_bid"
	// FillBelowBid means the trade printed at least a cent under the bid.
	FillBelowBid FillStyle = "below_bid"
	// FillUnknown means no usable quote existed at classification time.
	FillUnknown FillStyle = "unknown"
)

// BuySide reports whether the fill style implies aggressive buying.
func (f FillStyle) BuySide() bool {
	return f == FillAtAsk || f == FillAboveAsk
}

// SellSide reports whether the fill style implies aggressive selling.
func (f FillStyle) SellSide() bool {
	return f == FillAtBid || f == FillBelowBid
}

// Direction is the market view implied by a trade's right and fill style.
type Direction string

const (
	// DirectionBullish indicates an implied upward view on the underlying
	DirectionBullish Direction = "bullish"
	// DirectionBearish indicates an implied downward view on the underlying
	DirectionBearish Direction = "bearish"
	// DirectionUnknown indicates the fill style gave no usable signal
	DirectionUnknown Direction = "unknown"
)

// ImpliedDirection maps (right, fill style) to the directional thesis:
// bought calls and sold puts are bullish, sold calls and bought puts bearish.
func ImpliedDirection(r Right, f FillStyle) Direction {
	switch {
	case f.BuySide() && r == RightCall, f.SellSide() && r == RightPut:
		return DirectionBullish
	case f.BuySide() && r == RightPut, f.SellSide() && r == RightCall:
		return DirectionBearish
	default:
		return DirectionUnknown
	}
}

// Quote is a bid/ask pair observed at or just before a trade's timestamp.
type Quote struct {
	Bid float64
	Ask float64
}

// Mid returns the quote midpoint.
func (q Quote) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}

// ClassifiedTrade is a NormalizedTrade plus its fill-style tag. The tag is
// computed once from the quote at ingestion and is immutable afterward.
type ClassifiedTrade struct {
	NormalizedTrade
	Fill FillStyle `json:"fill"`
}

// Direction returns the market view implied by this trade.
func (t *ClassifiedTrade) Direction() Direction {
	return ImpliedDirection(t.Right, t.Fill)
}
