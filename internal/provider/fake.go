package provider

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Fake is an in-memory Provider used by poller and engine tests. Entries
// can be set per symbol; missing entries fail the way a dead endpoint would.
type Fake struct {
	mu        sync.Mutex
	quotes    map[string]Quote
	snapshots map[string]OptionSnapshot
	history   map[string][]DailyBar
	failAll   bool
	calls     map[string]int
}

// NewFake creates an empty fake provider.
func NewFake() *Fake {
	return &Fake{
		quotes:    make(map[string]Quote),
		snapshots: make(map[string]OptionSnapshot),
		history:   make(map[string][]DailyBar),
		calls:     make(map[string]int),
	}
}

// SetQuote sets the quote returned for a ticker.
func (f *Fake) SetQuote(symbol string, q Quote) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes[symbol] = q
}

// SetOptionSnapshot sets the snapshot returned for an OCC symbol.
func (f *Fake) SetOptionSnapshot(symbol string, s OptionSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots[symbol] = s
}

// SetHistory sets the daily bars returned for a ticker.
func (f *Fake) SetHistory(symbol string, bars []DailyBar) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history[symbol] = bars
}

// FailAll makes every call return an error, simulating a provider outage.
func (f *Fake) FailAll(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAll = fail
}

// Calls returns how many times the named method was invoked.
func (f *Fake) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// GetQuote implements Provider.
func (f *Fake) GetQuote(_ context.Context, symbol string) (*Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["GetQuote"]++
	if f.failAll {
		return nil, &APIError{Status: 503, Body: "unavailable"}
	}
	q, ok := f.quotes[symbol]
	if !ok {
		return nil, fmt.Errorf("no quote for %s", symbol)
	}
	return &q, nil
}

// GetOptionSnapshot implements Provider.
func (f *Fake) GetOptionSnapshot(_ context.Context, occSymbol string) (*OptionSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["GetOptionSnapshot"]++
	if f.failAll {
		return nil, &APIError{Status: 503, Body: "unavailable"}
	}
	s, ok := f.snapshots[occSymbol]
	if !ok {
		return nil, fmt.Errorf("no snapshot for %s", occSymbol)
	}
	return &s, nil
}

// GetDailyHistory implements Provider.
func (f *Fake) GetDailyHistory(_ context.Context, symbol string, _, _ time.Time) ([]DailyBar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["GetDailyHistory"]++
	if f.failAll {
		return nil, &APIError{Status: 503, Body: "unavailable"}
	}
	bars, ok := f.history[symbol]
	if !ok {
		return nil, fmt.Errorf("no history for %s", symbol)
	}
	return bars, nil
}

// Ensure Fake implements Provider at compile time.
var _ Provider = (*Fake)(nil)
