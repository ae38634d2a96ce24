// Package engine owns the working trade set and exposes the pull API the
// consumers use: ingest raw prints, read the classified set, grade a trade,
// inspect current market state.
package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/flowgrade/flowgrade/internal/classifier"
	"github.com/flowgrade/flowgrade/internal/combo"
	"github.com/flowgrade/flowgrade/internal/grader"
	"github.com/flowgrade/flowgrade/internal/marketstate"
	"github.com/flowgrade/flowgrade/internal/models"
	"github.com/flowgrade/flowgrade/internal/normalizer"
	"github.com/flowgrade/flowgrade/internal/poller"
	"github.com/flowgrade/flowgrade/internal/provider"
)

// ErrTradeNotFound is returned when grading a trade id that is not in the
// current working set.
var ErrTradeNotFound = errors.New("trade not found in working set")

// Engine wires the normalizer, classifier, combo matcher, and grader around
// a wholesale-rebuilt working set. The raw print set is kept so incremental
// batches can be appended and the set rebuilt from scratch; normalized
// identity never survives across rebuilds.
type Engine struct {
	provider provider.Provider
	store    *marketstate.Store
	poller   *poller.Poller
	grader   *grader.Grader
	logger   *logrus.Logger

	mu     sync.RWMutex
	raw    []models.TradePrint
	trades []models.ClassifiedTrade
	byID   map[string]int
}

// New creates an engine. The poller may be nil when periodic refresh is
// managed elsewhere (tests).
func New(p provider.Provider, store *marketstate.Store, pol *poller.Poller, g *grader.Grader, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	if g == nil {
		g = grader.New()
	}
	return &Engine{
		provider: p,
		store:    store,
		poller:   pol,
		grader:   g,
		logger:   logger,
		byID:     make(map[string]int),
	}
}

// Ingest replaces the raw print set with the given full set and rebuilds
// the working set.
func (e *Engine) Ingest(ctx context.Context, prints []models.TradePrint) {
	e.mu.Lock()
	e.raw = append([]models.TradePrint(nil), prints...)
	e.mu.Unlock()
	e.rebuild(ctx)
}

// Append adds incremental new prints to the raw set and rebuilds the
// working set. Duplicates of already-ingested prints are dropped by the
// normalizer's identity dedup.
func (e *Engine) Append(ctx context.Context, prints []models.TradePrint) {
	e.mu.Lock()
	e.raw = append(e.raw, prints...)
	e.mu.Unlock()
	e.rebuild(ctx)
}

// rebuild normalizes the raw set and classifies each trade using a quote
// fetched once per distinct contract. Classification quotes are not
// re-polled afterward.
func (e *Engine) rebuild(ctx context.Context) {
	e.mu.RLock()
	raw := append([]models.TradePrint(nil), e.raw...)
	e.mu.RUnlock()

	normalized := normalizer.Normalize(raw, e.logger)

	quotes := make(map[string]models.Quote)
	trades := make([]models.ClassifiedTrade, 0, len(normalized))
	for _, nt := range normalized {
		symbol := nt.OptionKey().Symbol()
		q, ok := quotes[symbol]
		if !ok {
			q = e.fetchQuote(ctx, symbol)
			quotes[symbol] = q
		}
		trades = append(trades, models.ClassifiedTrade{
			NormalizedTrade: nt,
			Fill:            classifier.Classify(nt, q),
		})
	}

	byID := make(map[string]int, len(trades))
	tickerSet := make(map[string]struct{})
	var tickers []string
	var contracts []models.OptionKey
	seenContract := make(map[string]struct{})
	for i, t := range trades {
		byID[t.ID] = i
		if _, ok := tickerSet[t.Ticker]; !ok {
			tickerSet[t.Ticker] = struct{}{}
			tickers = append(tickers, t.Ticker)
		}
		sym := t.OptionKey().Symbol()
		if _, ok := seenContract[sym]; !ok {
			seenContract[sym] = struct{}{}
			contracts = append(contracts, t.OptionKey())
		}
	}

	e.mu.Lock()
	e.trades = trades
	e.byID = byID
	e.mu.Unlock()

	if e.poller != nil {
		e.poller.SetInterest(tickers, contracts)
	}
	e.logger.WithFields(logrus.Fields{
		"prints":  len(raw),
		"trades":  len(trades),
		"tickers": len(tickers),
	}).Info("Working set rebuilt")
}

// fetchQuote gets the classification quote for a contract. Best-effort: a
// failure yields a zero quote and the trade classifies as Unknown.
func (e *Engine) fetchQuote(ctx context.Context, symbol string) models.Quote {
	if e.provider == nil {
		return models.Quote{}
	}
	snap, err := e.provider.GetOptionSnapshot(ctx, symbol)
	if err != nil {
		e.logger.WithError(err).WithField("contract", symbol).
			Debug("Classification quote unavailable")
		return models.Quote{}
	}
	return models.Quote{Bid: snap.Bid, Ask: snap.Ask}
}

// WorkingSet returns a copy of the current classified working set.
func (e *Engine) WorkingSet() []models.ClassifiedTrade {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]models.ClassifiedTrade(nil), e.trades...)
}

// TradeByID looks up a trade in the current working set.
func (e *Engine) TradeByID(id string) (models.ClassifiedTrade, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	i, ok := e.byID[id]
	if !ok {
		return models.ClassifiedTrade{}, false
	}
	return e.trades[i], true
}

// Grade computes the positioning grade for a trade id against one market
// state snapshot and the currently visible working set.
func (e *Engine) Grade(id string) (*grader.Grade, error) {
	t, ok := e.TradeByID(id)
	if !ok {
		return nil, ErrTradeNotFound
	}
	return e.GradeTrade(t)
}

// GradeTrade grades a trade against the current working set. The combo
// match is recomputed here, never cached across set changes.
func (e *Engine) GradeTrade(t models.ClassifiedTrade) (*grader.Grade, error) {
	set := e.WorkingSet()
	snap := e.store.Snapshot()
	return e.grader.Grade(t, snap, combo.Matches(t, set))
}

// TickerState is the per-ticker market state exposed to consumers.
type TickerState struct {
	Price      marketstate.Result
	Volatility marketstate.Result
}

// CurrentMarketState returns the tri-state price and volatility for a
// ticker.
func (e *Engine) CurrentMarketState(ticker string) TickerState {
	snap := e.store.Snapshot()
	return TickerState{
		Price:      snap.Price(ticker),
		Volatility: snap.Volatility(ticker),
	}
}

// HasMarketData reports whether any market data has arrived at all; false
// means a total provider outage that consumers surface as degraded mode.
func (e *Engine) HasMarketData() bool {
	return e.store.HasAnyData()
}
