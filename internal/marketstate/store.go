// Package marketstate holds the live per-ticker and per-contract view of
// market data maintained by the poller: current underlying price, current
// option mark, and 30-day historical volatility.
//
// The Store is the only shared mutable resource in the pipeline. It is
// written only by the poller and read through immutable snapshots, so all
// methods are goroutine-safe behind a sync.RWMutex.
package marketstate

import "sync"

// Status is the tri-state outcome of a market-state query. Absent entries
// mean "not yet polled", which is distinct from a known-unavailable value
// and from zero.
type Status int

const (
	// Pending means the entry has not been polled yet.
	Pending Status = iota
	// Unavailable means the provider answered but no usable value exists.
	Unavailable
	// Ready means a value is present.
	Ready
)

// Result is a tri-state query outcome: Pending, Unavailable, or a value.
type Result struct {
	status Status
	value  float64
}

// PendingResult returns a Result for an entry that has not been polled.
func PendingResult() Result { return Result{status: Pending} }

// UnavailableResult returns a Result for a known-unavailable entry.
func UnavailableResult() Result { return Result{status: Unavailable} }

// ValueResult returns a ready Result carrying v.
func ValueResult(v float64) Result { return Result{status: Ready, value: v} }

// Status returns the tri-state status of the result.
func (r Result) Status() Status { return r.status }

// Value returns the carried value and whether one is present.
func (r Result) Value() (float64, bool) {
	return r.value, r.status == Ready
}

type entry struct {
	value       float64
	unavailable bool
}

func (e entry) result() Result {
	if e.unavailable {
		return UnavailableResult()
	}
	return ValueResult(e.value)
}

// Store is the injectable market-state cache. The zero value is not usable;
// construct with NewStore.
type Store struct {
	mu     sync.RWMutex
	prices map[string]entry // keyed by ticker
	marks  map[string]entry // keyed by OCC option symbol
	vols   map[string]entry // keyed by ticker, pct stddev of daily returns
}

// NewStore creates an empty market-state store.
func NewStore() *Store {
	return &Store{
		prices: make(map[string]entry),
		marks:  make(map[string]entry),
		vols:   make(map[string]entry),
	}
}

// SetPrice records the current underlying price for a ticker.
func (s *Store) SetPrice(ticker string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[ticker] = entry{value: price}
}

// SetOptionMark records the current mark price for an OCC option symbol.
func (s *Store) SetOptionMark(symbol string, mark float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marks[symbol] = entry{value: mark}
}

// SetVolatility records the 30-day historical volatility for a ticker.
func (s *Store) SetVolatility(ticker string, vol float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vols[ticker] = entry{value: vol}
}

// SetVolatilityUnavailable marks a ticker's volatility as known-unavailable
// (for example, too little price history to compute it), so the poller stops
// refetching it.
func (s *Store) SetVolatilityUnavailable(ticker string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vols[ticker] = entry{unavailable: true}
}

// HasVolatility reports whether a ticker's volatility is already resolved
// (ready or known-unavailable). Volatility is fetched once and never
// re-polled.
func (s *Store) HasVolatility(ticker string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.vols[ticker]
	return ok
}

// HasAnyData reports whether at least one entry of any kind holds a value.
// The health endpoint uses this to detect a total provider outage.
func (s *Store) HasAnyData() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.prices {
		if !e.unavailable {
			return true
		}
	}
	for _, e := range s.marks {
		if !e.unavailable {
			return true
		}
	}
	return false
}

// Snapshot returns an immutable copy of the current state. A grade
// computation reads one snapshot so its sub-scores are mutually consistent
// even while the poller keeps writing.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		prices: make(map[string]entry, len(s.prices)),
		marks:  make(map[string]entry, len(s.marks)),
		vols:   make(map[string]entry, len(s.vols)),
	}
	for k, v := range s.prices {
		snap.prices[k] = v
	}
	for k, v := range s.marks {
		snap.marks[k] = v
	}
	for k, v := range s.vols {
		snap.vols[k] = v
	}
	return snap
}

// Snapshot is a point-in-time, read-only view of the store.
type Snapshot struct {
	prices map[string]entry
	marks  map[string]entry
	vols   map[string]entry
}

// Price returns the current underlying price for a ticker.
func (sn Snapshot) Price(ticker string) Result {
	e, ok := sn.prices[ticker]
	if !ok {
		return PendingResult()
	}
	return e.result()
}

// OptionMark returns the current mark price for an OCC option symbol.
func (sn Snapshot) OptionMark(symbol string) Result {
	e, ok := sn.marks[symbol]
	if !ok {
		return PendingResult()
	}
	return e.result()
}

// Volatility returns the 30-day historical volatility for a ticker, as the
// sample standard deviation of daily percentage returns.
func (sn Snapshot) Volatility(ticker string) Result {
	e, ok := sn.vols[ticker]
	if !ok {
		return PendingResult()
	}
	return e.result()
}
