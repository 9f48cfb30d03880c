package storage

import (
	"context"
	"testing"
	"time"

	"github.com/raykavin/quantcore/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storedCandles(start time.Time, n int) []core.Candle {
	candles := make([]core.Candle, n)
	for i := 0; i < n; i++ {
		candles[i] = core.Candle{
			Exchange: "binance",
			Symbol:   "BTCUSDT",
			Period:   core.Period1h,
			Time:     start.Add(time.Duration(i) * time.Hour),
			Open:     100, High: 101, Low: 99, Close: 100 + float64(i), Volume: 10,
			Complete: true,
		}
	}
	return candles
}

func TestCandleRoundTrip(t *testing.T) {
	store, err := CandlesFromMemory()
	require.NoError(t, err)
	defer store.Close()

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveCandles(context.Background(), storedCandles(start, 5)))

	got, err := store.Candles(context.Background(), "binance", "BTCUSDT", core.Period1h,
		start, start.Add(4*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 5)

	for i, c := range got {
		assert.Equal(t, "binance", c.Exchange)
		assert.Equal(t, 100+float64(i), c.Close)
		assert.True(t, c.Complete)
	}
}

func TestCandleRangeBounds(t *testing.T) {
	store, err := CandlesFromMemory()
	require.NoError(t, err)
	defer store.Close()

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveCandles(context.Background(), storedCandles(start, 10)))

	got, err := store.Candles(context.Background(), "binance", "BTCUSDT", core.Period1h,
		start.Add(2*time.Hour), start.Add(5*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, start.Add(2*time.Hour).Unix(), got[0].Time.Unix())
	assert.Equal(t, start.Add(5*time.Hour).Unix(), got[3].Time.Unix())
}

func TestCandleWritesAreIdempotent(t *testing.T) {
	store, err := CandlesFromMemory()
	require.NoError(t, err)
	defer store.Close()

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	candles := storedCandles(start, 3)
	require.NoError(t, store.SaveCandles(context.Background(), candles))

	// Rewriting the same bars with new values replaces, never duplicates.
	candles[1].Close = 999
	require.NoError(t, store.SaveCandles(context.Background(), candles))

	got, err := store.Candles(context.Background(), "binance", "BTCUSDT", core.Period1h,
		start, start.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 999.0, got[1].Close)
}

func TestCandleStreamsAreIsolated(t *testing.T) {
	store, err := CandlesFromMemory()
	require.NoError(t, err)
	defer store.Close()

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	btc := storedCandles(start, 3)
	eth := storedCandles(start, 3)
	for i := range eth {
		eth[i].Symbol = "ETHUSDT"
	}
	require.NoError(t, store.SaveCandles(context.Background(), btc))
	require.NoError(t, store.SaveCandles(context.Background(), eth))

	got, err := store.Candles(context.Background(), "binance", "ETHUSDT", core.Period1h,
		start, start.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 3)
	for _, c := range got {
		assert.Equal(t, "ETHUSDT", c.Symbol)
	}
}
