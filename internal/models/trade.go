// Package models defines the core data types for the options flow pipeline:
// raw trade prints, normalized/classified trades, and option contract keys.
package models

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Right represents the option right of a contract.
type Right string

const (
	// RightCall represents a call option contract
	RightCall Right = "call"
	// RightPut represents a put option contract
	RightPut Right = "put"
)

// Valid returns true if the Right is one of the defined constants
func (r Right) Valid() bool {
	return r == RightCall || r == RightPut
}

// Opposite returns the opposing right (call <-> put).
func (r Right) Opposite() Right {
	if r == RightCall {
		return RightPut
	}
	return RightCall
}

// TradeTag classifies how a print hit the tape.
type TradeTag string

const (
	// TagSweep marks an intermarket sweep
	TagSweep TradeTag = "sweep"
	// TagBlock marks a block trade
	TagBlock TradeTag = "block"
	// TagMultiLeg marks a print that is part of a multi-leg order
	TagMultiLeg TradeTag = "multi-leg"
	// TagMini marks a mini-options print
	TagMini TradeTag = "mini"
)

// TradePrint is a raw execution record from the upstream feed.
// It is immutable: the pipeline never modifies a print after ingestion.
type TradePrint struct {
	Ticker       string    `json:"ticker"`
	Right        Right     `json:"right"`
	Strike       float64   `json:"strike"`
	Expiry       time.Time `json:"expiry"`
	Size         int       `json:"size"`
	Premium      float64   `json:"premium"` // per contract
	TotalPremium float64   `json:"total_premium"`
	Spot         float64   `json:"spot"`
	ExecutedAt   time.Time `json:"executed_at"`
	Tag          TradeTag  `json:"tag"`
	Exchange     string    `json:"exchange"`
}

// Validate checks the print for fields the feed should never send malformed.
// The feed is trusted, so a failure here means the record is skipped, not
// that the batch aborts.
func (p *TradePrint) Validate() error {
	if p.Ticker == "" {
		return fmt.Errorf("ticker is required")
	}
	if !p.Right.Valid() {
		return fmt.Errorf("right must be 'call' or 'put', got %q", p.Right)
	}
	if p.Strike <= 0 || math.IsNaN(p.Strike) || math.IsInf(p.Strike, 0) {
		return fmt.Errorf("strike must be > 0, got %v", p.Strike)
	}
	if p.Expiry.IsZero() {
		return fmt.Errorf("expiry is required")
	}
	if p.Size <= 0 {
		return fmt.Errorf("size must be > 0, got %d", p.Size)
	}
	if p.Premium < 0 || p.TotalPremium < 0 {
		return fmt.Errorf("premium must be >= 0")
	}
	if p.ExecutedAt.IsZero() {
		return fmt.Errorf("executed_at is required")
	}
	return nil
}

// IdentityKey uniquely identifies a print for deduplication.
func (p *TradePrint) IdentityKey() string {
	return fmt.Sprintf("%s|%s|%.4f|%s|%d|%.2f|%.4f|%d|%s",
		p.Ticker, p.Right, p.Strike, p.Expiry.Format("2006-01-02"),
		p.Size, p.TotalPremium, p.Spot, p.ExecutedAt.UnixNano(), p.Exchange)
}

// BundleKey groups prints of the same contract executed within the same
// minute, for small-print bundling.
func (p *TradePrint) BundleKey() string {
	return fmt.Sprintf("%s|%s|%.4f|%s|%d",
		p.Ticker, p.Right, p.Strike, p.Expiry.Format("2006-01-02"),
		p.ExecutedAt.Truncate(time.Minute).Unix())
}

// OptionKey returns the fully-qualified contract this print traded.
func (p *TradePrint) OptionKey() OptionKey {
	return OptionKey{
		Underlying: p.Ticker,
		Expiry:     p.Expiry,
		Right:      p.Right,
		Strike:     p.Strike,
	}
}

// OptionKey identifies a single option contract.
type OptionKey struct {
	Underlying string
	Expiry     time.Time
	Right      Right
	Strike     float64
}

// Symbol renders the key in OCC format, e.g. XYZ260117C00105000.
// This is the symbol used for option snapshot queries and as the
// option-mark map key.
func (k OptionKey) Symbol() string {
	right := "C"
	if k.Right == RightPut {
		right = "P"
	}
	// Strike is encoded as price x 1000, zero-padded to 8 digits.
	strike := int64(math.Round(k.Strike * 1000))
	return fmt.Sprintf("%s%s%s%08d",
		strings.ToUpper(k.Underlying), k.Expiry.Format("060102"), right, strike)
}
