package candle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/raykavin/quantcore/pkg/core"
	"github.com/raykavin/quantcore/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	candles []core.Candle
	err     error
	saved   [][]core.Candle
}

func (f *fakeRepo) Candles(_ context.Context, _, _ string, _ core.Period,
	since, until time.Time) ([]core.Candle, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]core.Candle, 0)
	for _, c := range f.candles {
		if !c.Time.Before(since) && !c.Time.After(until) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeRepo) SaveCandles(_ context.Context, candles []core.Candle) error {
	f.saved = append(f.saved, candles)
	return nil
}

type fakeSource struct {
	batches [][]core.Candle
	errAt   int
	calls   int
}

func (f *fakeSource) FetchOHLCV(_ context.Context, _ string, _ core.Period,
	_ time.Time, _ int) ([]core.Candle, error) {
	idx := f.calls
	f.calls++
	if idx == f.errAt {
		return nil, errors.New("rate limited")
	}
	if idx >= len(f.batches) {
		return nil, nil
	}
	return f.batches[idx], nil
}

func (f *fakeSource) LastQuote(context.Context, string) (core.Quote, error) {
	return core.Quote{Bid: 100, Ask: 100.1}, nil
}

func minuteCandles(start time.Time, n int) []core.Candle {
	candles := make([]core.Candle, n)
	for i := 0; i < n; i++ {
		candles[i] = core.Candle{
			Symbol: "BTCUSDT",
			Time:   start.Add(time.Duration(i) * time.Minute),
			Open:   100, High: 101, Low: 99, Close: 100, Volume: 1,
		}
	}
	return candles
}

func noSleep(context.Context, time.Duration) error { return nil }

func newTestService(repo core.CandleRepository, source core.MarketDataSource) *Service {
	return NewService(repo, source, logger.Nop(), WithSleep(noSleep))
}

func TestEnsureRangeServedFromRepository(t *testing.T) {
	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	until := since.Add(100 * time.Minute)

	repo := &fakeRepo{candles: minuteCandles(since, 95)}
	source := &fakeSource{errAt: -1}
	service := newTestService(repo, source)

	candles, err := service.EnsureRange(context.Background(), "binance", "BTCUSDT",
		core.Period1m, since, until)
	require.NoError(t, err)
	assert.Len(t, candles, 95)
	assert.Zero(t, source.calls, "coverage above threshold must not hit the source")
}

func TestEnsureRangePaginatesAndDropsFormingBar(t *testing.T) {
	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	until := since.Add(600 * time.Minute)

	source := &fakeSource{
		errAt: -1,
		batches: [][]core.Candle{
			minuteCandles(since, 500),
			minuteCandles(since.Add(500*time.Minute), 101),
		},
	}
	repo := &fakeRepo{}
	service := newTestService(repo, source)

	candles, err := service.EnsureRange(context.Background(), "binance", "BTCUSDT",
		core.Period1m, since, until)
	require.NoError(t, err)

	// Each batch loses its final, possibly-forming bar.
	assert.Len(t, candles, 599)
	assert.Equal(t, 2, source.calls)
	require.Len(t, repo.saved, 2)

	for _, c := range candles {
		assert.True(t, c.Complete)
		assert.Equal(t, "binance", c.Exchange)
		assert.Equal(t, core.Period1m, c.Period)
	}
	for i := 1; i < len(candles); i++ {
		assert.True(t, candles[i].Time.After(candles[i-1].Time))
	}
}

func TestEnsureRangeReturnsPartialOnLaterFailure(t *testing.T) {
	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	until := since.Add(1000 * time.Minute)

	source := &fakeSource{
		errAt:   1,
		batches: [][]core.Candle{minuteCandles(since, 500)},
	}
	service := newTestService(&fakeRepo{}, source)

	candles, err := service.EnsureRange(context.Background(), "binance", "BTCUSDT",
		core.Period1m, since, until)
	require.NoError(t, err)
	assert.Len(t, candles, 499)
}

func TestEnsureRangeFailsWhenNothingAvailable(t *testing.T) {
	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	until := since.Add(time.Hour)

	source := &fakeSource{errAt: 0}
	service := newTestService(&fakeRepo{}, source)

	_, err := service.EnsureRange(context.Background(), "binance", "BTCUSDT",
		core.Period1m, since, until)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrMarketDataUnavailable))
}

func TestEnsureRangeRejectsEmptyWindow(t *testing.T) {
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	service := newTestService(&fakeRepo{}, &fakeSource{errAt: -1})

	_, err := service.EnsureRange(context.Background(), "binance", "BTCUSDT",
		core.Period1m, at, at)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrValidation))
}

func TestEnsureRangeToleratesRepositoryFailure(t *testing.T) {
	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	until := since.Add(10 * time.Minute)

	repo := &fakeRepo{err: errors.New("disk gone")}
	source := &fakeSource{errAt: -1, batches: [][]core.Candle{minuteCandles(since, 11)}}
	service := newTestService(repo, source)

	candles, err := service.EnsureRange(context.Background(), "binance", "BTCUSDT",
		core.Period1m, since, until)
	require.NoError(t, err)
	assert.NotEmpty(t, candles)
}

func TestEnsureRangeDeduplicatesMergedBars(t *testing.T) {
	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	until := since.Add(20 * time.Minute)

	// Repository holds half the window; the source returns overlapping
	// bars. The merge keeps one candle per timestamp.
	repo := &fakeRepo{candles: minuteCandles(since, 10)}
	source := &fakeSource{errAt: -1, batches: [][]core.Candle{minuteCandles(since, 21)}}
	service := newTestService(repo, source)

	candles, err := service.EnsureRange(context.Background(), "binance", "BTCUSDT",
		core.Period1m, since, until)
	require.NoError(t, err)

	seen := make(map[int64]bool)
	for _, c := range candles {
		assert.False(t, seen[c.Time.Unix()], "duplicate bar at %s", c.Time)
		seen[c.Time.Unix()] = true
	}
	assert.Len(t, candles, 20)
}

func TestFetchRecentDropsFormingBar(t *testing.T) {
	start := time.Now().Add(-10 * time.Minute).Truncate(time.Minute)
	source := &fakeSource{errAt: -1, batches: [][]core.Candle{minuteCandles(start, 10)}}
	service := newTestService(&fakeRepo{}, source)

	candles, err := service.FetchRecent(context.Background(), "binance", "BTCUSDT", core.Period1m)
	require.NoError(t, err)
	assert.Len(t, candles, 9)
	for _, c := range candles {
		assert.True(t, c.Complete)
	}
}

func TestFetchRecentPrefersRepositoryForWatchedPairs(t *testing.T) {
	start := time.Now().Add(-30 * time.Minute).Truncate(time.Minute)
	repo := &fakeRepo{candles: minuteCandles(start, 20)}
	source := &fakeSource{errAt: 0}

	service := newTestService(repo, source)
	service.Watch("binance", "BTCUSDT", core.Period1m)

	candles, err := service.FetchRecent(context.Background(), "binance", "BTCUSDT", core.Period1m)
	require.NoError(t, err)
	assert.NotEmpty(t, candles)
	assert.Zero(t, source.calls)

	service.Unwatch("binance", "BTCUSDT", core.Period1m)
	_, err = service.FetchRecent(context.Background(), "binance", "BTCUSDT", core.Period1m)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrMarketDataUnavailable))
}
