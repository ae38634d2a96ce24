// Package poller maintains the best-effort, eventually-consistent market
// state for every underlying and contract in the working set. It fetches in
// fixed-size batches, staggers requests inside a batch, pauses between
// batches, and swallows every single-request failure: a failed fetch just
// leaves the corresponding store entry unset for the next cycle.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/flowgrade/flowgrade/internal/marketstate"
	"github.com/flowgrade/flowgrade/internal/models"
	"github.com/flowgrade/flowgrade/internal/provider"
)

// Config holds the batching and pacing knobs. Zero fields fall back to the
// defaults below.
type Config struct {
	PriceBatchSize    int
	OptionBatchSize   int
	HistoryBatchSize  int
	Stagger           time.Duration // delay between requests inside a batch
	BatchPause        time.Duration // pause between batches
	RefreshInterval   time.Duration // periodic price refresh cadence
	RequestsPerSecond float64
	Burst             int
}

// DefaultConfig matches the pacing the remote side tolerates without
// connection resets.
var DefaultConfig = Config{
	PriceBatchSize:    10,
	OptionBatchSize:   5,
	HistoryBatchSize:  3,
	Stagger:           50 * time.Millisecond,
	BatchPause:        500 * time.Millisecond,
	RefreshInterval:   5 * time.Minute,
	RequestsPerSecond: 10,
	Burst:             10,
}

func (c Config) withDefaults() Config {
	d := DefaultConfig
	if c.PriceBatchSize <= 0 {
		c.PriceBatchSize = d.PriceBatchSize
	}
	if c.OptionBatchSize <= 0 {
		c.OptionBatchSize = d.OptionBatchSize
	}
	if c.HistoryBatchSize <= 0 {
		c.HistoryBatchSize = d.HistoryBatchSize
	}
	if c.Stagger <= 0 {
		c.Stagger = d.Stagger
	}
	if c.BatchPause <= 0 {
		c.BatchPause = d.BatchPause
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = d.RefreshInterval
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = d.RequestsPerSecond
	}
	if c.Burst <= 0 {
		c.Burst = d.Burst
	}
	return c
}

// volatilityLookback is how far back daily history is requested so the
// window covers 30 trading days despite weekends and holidays.
const volatilityLookback = 60 * 24 * time.Hour

// volatilityCloses is the number of trailing closes used: 30 trading days of
// daily percentage returns need 31 closes.
const volatilityCloses = 31

// minVolatilityCloses is the floor below which history is considered too
// thin to produce a meaningful deviation.
const minVolatilityCloses = 5

// Poller owns all writes to the market-state store.
type Poller struct {
	provider provider.Provider
	store    *marketstate.Store
	limiter  *rate.Limiter
	logger   *logrus.Logger
	cfg      Config

	mu        sync.Mutex
	inflight  map[string]struct{}
	tickers   map[string]struct{}
	contracts map[string]models.OptionKey

	cancel context.CancelFunc
	done   chan struct{}
	now    func() time.Time
}

// New creates a poller writing into store.
func New(p provider.Provider, store *marketstate.Store, cfg Config, logger *logrus.Logger) *Poller {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = logrus.New()
	}
	return &Poller{
		provider:  p,
		store:     store,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:    logger,
		cfg:       cfg,
		inflight:  make(map[string]struct{}),
		tickers:   make(map[string]struct{}),
		contracts: make(map[string]models.OptionKey),
		now:       time.Now,
	}
}

// SetInterest replaces the tracked universe. Tickers and contracts removed
// here stop being refreshed on the next periodic cycle; in-flight requests
// for them are allowed to complete.
func (p *Poller) SetInterest(tickers []string, contracts []models.OptionKey) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tickers = make(map[string]struct{}, len(tickers))
	for _, t := range tickers {
		p.tickers[t] = struct{}{}
	}
	p.contracts = make(map[string]models.OptionKey, len(contracts))
	for _, c := range contracts {
		p.contracts[c.Symbol()] = c
	}
}

// Refresh fetches the current price for each ticker not already in-flight.
func (p *Poller) Refresh(ctx context.Context, tickers []string) {
	keys := p.claim("price:", tickers)
	defer p.release("price:", keys)
	p.runBatches(ctx, keys, p.cfg.PriceBatchSize, func(ctx context.Context, ticker string) {
		q, err := p.provider.GetQuote(ctx, ticker)
		if err != nil {
			p.logger.WithError(err).WithField("ticker", ticker).Debug("Price fetch failed")
			return
		}
		if q.Last > 0 {
			p.store.SetPrice(ticker, q.Last)
		}
	})
}

// RefreshOptionMarks fetches the current mark for each contract not already
// in-flight.
func (p *Poller) RefreshOptionMarks(ctx context.Context, contracts []models.OptionKey) {
	symbols := make([]string, 0, len(contracts))
	for _, c := range contracts {
		symbols = append(symbols, c.Symbol())
	}
	keys := p.claim("mark:", symbols)
	defer p.release("mark:", keys)
	p.runBatches(ctx, keys, p.cfg.OptionBatchSize, func(ctx context.Context, symbol string) {
		snap, err := p.provider.GetOptionSnapshot(ctx, symbol)
		if err != nil {
			p.logger.WithError(err).WithField("contract", symbol).Debug("Option mark fetch failed")
			return
		}
		if mid := snap.Mid(); mid > 0 {
			p.store.SetOptionMark(symbol, mid)
		}
	})
}

// RefreshVolatility computes 30-day historical volatility for tickers that
// do not have one yet. Volatility is cached indefinitely: once a ticker is
// resolved it is never re-polled.
func (p *Poller) RefreshVolatility(ctx context.Context, tickers []string) {
	pending := make([]string, 0, len(tickers))
	for _, t := range tickers {
		if !p.store.HasVolatility(t) {
			pending = append(pending, t)
		}
	}
	end := p.now()
	start := end.Add(-volatilityLookback)

	keys := p.claim("vol:", pending)
	defer p.release("vol:", keys)
	p.runBatches(ctx, keys, p.cfg.HistoryBatchSize, func(ctx context.Context, ticker string) {
		bars, err := p.provider.GetDailyHistory(ctx, ticker, start, end)
		if err != nil {
			p.logger.WithError(err).WithField("ticker", ticker).Debug("History fetch failed")
			return
		}
		if len(bars) < minVolatilityCloses {
			// The provider answered but has no usable history for this name.
			p.store.SetVolatilityUnavailable(ticker)
			return
		}
		vol, err := historicalVolatility(bars)
		if err != nil {
			p.logger.WithError(err).WithField("ticker", ticker).Debug("Volatility computation failed")
			return
		}
		p.store.SetVolatility(ticker, vol)
	})
}

// historicalVolatility returns the sample standard deviation (n-1
// denominator) of daily percentage returns over the trailing closes.
func historicalVolatility(bars []provider.DailyBar) (float64, error) {
	if len(bars) > volatilityCloses {
		bars = bars[len(bars)-volatilityCloses:]
	}
	returns := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		if prev <= 0 {
			continue
		}
		returns = append(returns, (bars[i].Close-prev)/prev*100)
	}
	return stats.StandardDeviationSample(returns)
}

// Start launches the periodic refresh loop for the tracked universe. The
// loop stops when ctx is cancelled or Stop is called.
func (p *Poller) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.done = make(chan struct{})
	done := p.done
	p.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(p.cfg.RefreshInterval)
		defer ticker.Stop()

		p.refreshTracked(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.refreshTracked(ctx)
			}
		}
	}()
}

// Stop cancels the periodic refresh loop and waits for it to exit.
// In-flight requests are allowed to complete.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	done := p.done
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (p *Poller) refreshTracked(ctx context.Context) {
	p.mu.Lock()
	tickers := make([]string, 0, len(p.tickers))
	for t := range p.tickers {
		tickers = append(tickers, t)
	}
	contracts := make([]models.OptionKey, 0, len(p.contracts))
	for _, c := range p.contracts {
		contracts = append(contracts, c)
	}
	p.mu.Unlock()

	p.Refresh(ctx, tickers)
	p.RefreshOptionMarks(ctx, contracts)
	p.RefreshVolatility(ctx, tickers)
}

// claim filters out keys already in-flight and marks the rest. The caller
// must release the returned keys once the batch run finishes.
func (p *Poller) claim(prefix string, keys []string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		id := prefix + k
		if _, busy := p.inflight[id]; busy {
			continue
		}
		p.inflight[id] = struct{}{}
		out = append(out, k)
	}
	return out
}

// release clears in-flight markers after a batch run.
func (p *Poller) release(prefix string, keys []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, k := range keys {
		delete(p.inflight, prefix+k)
	}
}

// runBatches processes keys in fixed-size batches. Within a batch requests
// run concurrently, each staggered by Stagger from the previous one; batches
// run sequentially with a BatchPause between them. Every fetch error is
// swallowed by the per-key closure, so one failed member never aborts a
// batch.
func (p *Poller) runBatches(ctx context.Context, keys []string, batchSize int, fetch func(context.Context, string)) {
	for start := 0; start < len(keys); start += batchSize {
		end := start + batchSize
		if end > len(keys) {
			end = len(keys)
		}
		batch := keys[start:end]

		g, gctx := errgroup.WithContext(ctx)
		for i, key := range batch {
			key := key
			delay := time.Duration(i) * p.cfg.Stagger
			g.Go(func() error {
				if delay > 0 {
					select {
					case <-time.After(delay):
					case <-gctx.Done():
						return nil
					}
				}
				if err := p.limiter.Wait(gctx); err != nil {
					return nil
				}
				fetch(gctx, key)
				return nil
			})
		}
		_ = g.Wait()

		if end < len(keys) {
			select {
			case <-time.After(p.cfg.BatchPause):
			case <-ctx.Done():
				return
			}
		}
	}
}
