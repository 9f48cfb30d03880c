package indicator

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/raykavin/quantcore/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testCandles builds an ascending hourly history with a gentle sine
// walk so oscillators get both up and down moves.
func testCandles(n int) []core.Candle {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]core.Candle, n)
	for i := 0; i < n; i++ {
		price := 100 + 10*math.Sin(float64(i)/5) + float64(i)/10
		candles[i] = core.Candle{
			Exchange: "binance",
			Symbol:   "BTCUSDT",
			Period:   core.Period1h,
			Time:     start.Add(time.Duration(i) * time.Hour),
			Open:     price - 0.5,
			High:     price + 1,
			Low:      price - 1,
			Close:    price,
			Volume:   1000 + float64(i),
			Complete: true,
		}
	}
	return candles
}

func TestBuildUnknownKind(t *testing.T) {
	_, err := Build(Definition{Kind: "vwap"}, testCandles(10))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrValidation))
}

func TestBuildEmptyHistory(t *testing.T) {
	series, err := Build(Definition{Kind: KindRSI}, nil)
	require.NoError(t, err)
	assert.Empty(t, series)
}

func TestBuildAlignsOutputLength(t *testing.T) {
	candles := testCandles(60)
	for _, kind := range Kinds() {
		series, err := Build(Definition{Kind: kind}, candles)
		require.NoError(t, err, "kind %s", kind)
		assert.Len(t, series, len(candles), "kind %s", kind)
	}
}

func TestRSIWarmupAndRange(t *testing.T) {
	candles := testCandles(60)
	series, err := Build(Definition{Kind: KindRSI}, candles)
	require.NoError(t, err)

	for i := 0; i < 14; i++ {
		assert.False(t, series.ValidAt(i), "index %d should be warm-up", i)
	}
	for i := 14; i < len(series); i++ {
		require.True(t, series.ValidAt(i), "index %d should be defined", i)
		v := series.NumAt(i)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 100.0)
	}
}

func TestRSICustomLength(t *testing.T) {
	candles := testCandles(30)
	series, err := Build(Definition{
		Kind:    KindRSI,
		Options: core.StrategyOptions{"length": 7},
	}, candles)
	require.NoError(t, err)

	assert.False(t, series.ValidAt(6))
	assert.True(t, series.ValidAt(7))
}

func TestShortHistoryIsAllUndefined(t *testing.T) {
	candles := testCandles(5)
	series, err := Build(Definition{Kind: KindSMA}, candles) // default length 20
	require.NoError(t, err)

	require.Len(t, series, 5)
	for i := range series {
		assert.False(t, series.ValidAt(i))
	}
}

func TestMACDFields(t *testing.T) {
	candles := testCandles(80)
	series, err := Build(Definition{Kind: KindMACD}, candles)
	require.NoError(t, err)

	last := len(series) - 1
	require.True(t, series.ValidAt(last))

	macd, ok := series.FieldAt(last, "macd")
	require.True(t, ok)
	signal, ok := series.FieldAt(last, "signal")
	require.True(t, ok)
	histogram, ok := series.FieldAt(last, "histogram")
	require.True(t, ok)
	assert.InDelta(t, macd-signal, histogram, 1e-9)
}

func TestBollingerOrdering(t *testing.T) {
	candles := testCandles(60)
	series, err := Build(Definition{Kind: KindBollinger}, candles)
	require.NoError(t, err)

	last := len(series) - 1
	require.True(t, series.ValidAt(last))

	upper, _ := series.FieldAt(last, "upper")
	middle, _ := series.FieldAt(last, "middle")
	lower, _ := series.FieldAt(last, "lower")
	assert.GreaterOrEqual(t, upper, middle)
	assert.GreaterOrEqual(t, middle, lower)
}

func TestCandlesPassthrough(t *testing.T) {
	candles := testCandles(3)
	series, err := Build(Definition{Kind: KindCandles}, candles)
	require.NoError(t, err)

	closeVal, ok := series.FieldAt(1, "close")
	require.True(t, ok)
	assert.Equal(t, candles[1].Close, closeVal)
}

func TestBuildIsDeterministic(t *testing.T) {
	candles := testCandles(60)
	first, err := Build(Definition{Kind: KindStoch}, candles)
	require.NoError(t, err)
	second, err := Build(Definition{Kind: KindStoch}, candles)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestScalarRejectsNonFinite(t *testing.T) {
	assert.False(t, Scalar(math.NaN()).Valid)
	assert.False(t, Scalar(math.Inf(1)).Valid)
	assert.True(t, Scalar(1.5).Valid)
}

func TestRecordDropsNonFiniteFields(t *testing.T) {
	v := Record(map[string]float64{"a": 1, "b": math.NaN()})
	require.True(t, v.Valid)
	_, ok := v.Field("b")
	assert.False(t, ok)

	empty := Record(map[string]float64{"a": math.NaN()})
	assert.False(t, empty.Valid)
}
