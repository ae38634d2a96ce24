package poller

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowgrade/flowgrade/internal/marketstate"
	"github.com/flowgrade/flowgrade/internal/models"
	"github.com/flowgrade/flowgrade/internal/provider"
)

// fastConfig keeps the pacing knobs tiny so tests run in milliseconds.
var fastConfig = Config{
	PriceBatchSize:    2,
	OptionBatchSize:   2,
	HistoryBatchSize:  2,
	Stagger:           time.Microsecond,
	BatchPause:        time.Microsecond,
	RefreshInterval:   10 * time.Millisecond,
	RequestsPerSecond: 100000,
	Burst:             1000,
}

func newTestPoller(fake *provider.Fake) (*Poller, *marketstate.Store) {
	store := marketstate.NewStore()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return New(fake, store, fastConfig, logger), store
}

func growthBars(start float64, pct float64, n int) []provider.DailyBar {
	bars := make([]provider.DailyBar, n)
	price := start
	for i := range bars {
		bars[i] = provider.DailyBar{Close: price}
		price *= 1 + pct/100
	}
	return bars
}

func TestRefresh_SetsPrices(t *testing.T) {
	fake := provider.NewFake()
	fake.SetQuote("XYZ", provider.Quote{Symbol: "XYZ", Last: 101.5})
	fake.SetQuote("ABC", provider.Quote{Symbol: "ABC", Last: 42})
	p, store := newTestPoller(fake)

	p.Refresh(context.Background(), []string{"XYZ", "ABC", "MISSING"})

	snap := store.Snapshot()
	v, ok := snap.Price("XYZ").Value()
	require.True(t, ok)
	assert.Equal(t, 101.5, v)

	v, ok = snap.Price("ABC").Value()
	require.True(t, ok)
	assert.Equal(t, 42.0, v)

	// The missing ticker's failure is swallowed and its entry stays pending.
	assert.Equal(t, marketstate.Pending, snap.Price("MISSING").Status())
}

func TestRefresh_ZeroPriceNotStored(t *testing.T) {
	fake := provider.NewFake()
	fake.SetQuote("HALTED", provider.Quote{Symbol: "HALTED", Last: 0})
	p, store := newTestPoller(fake)

	p.Refresh(context.Background(), []string{"HALTED"})

	assert.Equal(t, marketstate.Pending, store.Snapshot().Price("HALTED").Status())
}

func TestRefresh_ProviderOutageSwallowed(t *testing.T) {
	fake := provider.NewFake()
	fake.FailAll(true)
	p, store := newTestPoller(fake)

	p.Refresh(context.Background(), []string{"XYZ", "ABC"})

	assert.False(t, store.HasAnyData())
	assert.Equal(t, 2, fake.Calls("GetQuote"))

	// Recovery: the next cycle retries and succeeds.
	fake.FailAll(false)
	fake.SetQuote("XYZ", provider.Quote{Symbol: "XYZ", Last: 100})
	p.Refresh(context.Background(), []string{"XYZ"})

	v, ok := store.Snapshot().Price("XYZ").Value()
	require.True(t, ok)
	assert.Equal(t, 100.0, v)
}

func TestRefreshOptionMarks(t *testing.T) {
	key := models.OptionKey{
		Underlying: "XYZ",
		Expiry:     time.Date(2026, 1, 17, 0, 0, 0, 0, time.UTC),
		Right:      models.RightCall,
		Strike:     105,
	}
	fake := provider.NewFake()
	fake.SetOptionSnapshot(key.Symbol(), provider.OptionSnapshot{Bid: 1.00, Ask: 1.10})
	p, store := newTestPoller(fake)

	p.RefreshOptionMarks(context.Background(), []models.OptionKey{key})

	v, ok := store.Snapshot().OptionMark(key.Symbol()).Value()
	require.True(t, ok)
	assert.InDelta(t, 1.05, v, 1e-9)
}

func TestRefreshOptionMarks_EmptyQuoteNotStored(t *testing.T) {
	key := models.OptionKey{
		Underlying: "XYZ",
		Expiry:     time.Date(2026, 1, 17, 0, 0, 0, 0, time.UTC),
		Right:      models.RightPut,
		Strike:     95,
	}
	fake := provider.NewFake()
	fake.SetOptionSnapshot(key.Symbol(), provider.OptionSnapshot{})
	p, store := newTestPoller(fake)

	p.RefreshOptionMarks(context.Background(), []models.OptionKey{key})

	assert.Equal(t, marketstate.Pending, store.Snapshot().OptionMark(key.Symbol()).Status())
}

func TestRefreshVolatility(t *testing.T) {
	// Alternating +10% / -10% daily returns over six closes: the five
	// returns are [10, -10, 10, -10, 10], whose sample deviation is
	// sqrt(480/4) ~= 10.954.
	closes := []float64{100, 110, 99, 108.9, 98.01, 107.811}
	bars := make([]provider.DailyBar, len(closes))
	for i, c := range closes {
		bars[i] = provider.DailyBar{Close: c}
	}
	fake := provider.NewFake()
	fake.SetHistory("XYZ", bars)
	p, store := newTestPoller(fake)

	p.RefreshVolatility(context.Background(), []string{"XYZ"})

	v, ok := store.Snapshot().Volatility("XYZ").Value()
	require.True(t, ok)
	assert.InDelta(t, 10.9545, v, 0.001)
}

func TestRefreshVolatility_CachedForever(t *testing.T) {
	fake := provider.NewFake()
	fake.SetHistory("XYZ", growthBars(100, 1, 10))
	p, store := newTestPoller(fake)

	p.RefreshVolatility(context.Background(), []string{"XYZ"})
	p.RefreshVolatility(context.Background(), []string{"XYZ"})
	p.RefreshVolatility(context.Background(), []string{"XYZ"})

	assert.Equal(t, 1, fake.Calls("GetDailyHistory"))
	assert.True(t, store.HasVolatility("XYZ"))
}

func TestRefreshVolatility_ThinHistory(t *testing.T) {
	fake := provider.NewFake()
	fake.SetHistory("IPO", growthBars(100, 1, 3))
	p, store := newTestPoller(fake)

	p.RefreshVolatility(context.Background(), []string{"IPO"})

	// Too few closes: resolved as unavailable and never re-polled.
	assert.Equal(t, marketstate.Unavailable, store.Snapshot().Volatility("IPO").Status())

	p.RefreshVolatility(context.Background(), []string{"IPO"})
	assert.Equal(t, 1, fake.Calls("GetDailyHistory"))
}

func TestRefreshVolatility_FailureRetriedNextCycle(t *testing.T) {
	fake := provider.NewFake()
	fake.FailAll(true)
	p, store := newTestPoller(fake)

	p.RefreshVolatility(context.Background(), []string{"XYZ"})
	assert.Equal(t, marketstate.Pending, store.Snapshot().Volatility("XYZ").Status())

	// A transient failure leaves the entry pending, so the next cycle
	// fetches again.
	p.RefreshVolatility(context.Background(), []string{"XYZ"})
	assert.Equal(t, 2, fake.Calls("GetDailyHistory"))
}

func TestHistoricalVolatility(t *testing.T) {
	t.Run("constant growth has zero deviation", func(t *testing.T) {
		v, err := historicalVolatility(growthBars(100, 2, 10))
		require.NoError(t, err)
		assert.InDelta(t, 0, v, 1e-9)
	})

	t.Run("uses only the trailing closes", func(t *testing.T) {
		// Wild early bars followed by 31 closes of steady growth: the
		// window must exclude the early noise entirely.
		bars := []provider.DailyBar{{Close: 10}, {Close: 500}, {Close: 3}, {Close: 250}}
		bars = append(bars, growthBars(100, 2, 31)...)
		v, err := historicalVolatility(bars)
		require.NoError(t, err)
		assert.InDelta(t, 0, v, 1e-9)
	})

	t.Run("zero closes are skipped", func(t *testing.T) {
		bars := []provider.DailyBar{{Close: 100}, {Close: 0}, {Close: 102}, {Close: 104.04}, {Close: 106.1208}}
		_, err := historicalVolatility(bars)
		require.NoError(t, err)
	})
}

func TestStartStop(t *testing.T) {
	fake := provider.NewFake()
	fake.SetQuote("XYZ", provider.Quote{Symbol: "XYZ", Last: 100})
	fake.SetHistory("XYZ", growthBars(100, 1, 10))
	p, store := newTestPoller(fake)
	p.SetInterest([]string{"XYZ"}, nil)

	p.Start(context.Background())
	defer p.Stop()

	deadline := time.After(2 * time.Second)
	for {
		if _, ok := store.Snapshot().Price("XYZ").Value(); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("Price never appeared after Start")
		case <-time.After(5 * time.Millisecond):
		}
	}

	p.Stop()
	calls := fake.Calls("GetQuote")
	time.Sleep(3 * fastConfig.RefreshInterval)
	assert.Equal(t, calls, fake.Calls("GetQuote"), "refresh loop kept running after Stop")
}
