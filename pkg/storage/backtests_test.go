package storage

import (
	"context"
	"testing"
	"time"

	"github.com/raykavin/quantcore/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testBacktestStore(t *testing.T) *BacktestStorage {
	t.Helper()

	store, err := NewBacktestStorage(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleRecord(strategyName string, profit float64) *core.BacktestRecord {
	return &core.BacktestRecord{
		RunGroupID:     "group-1",
		RunType:        core.RunTypeSingle,
		Exchange:       "binance",
		Symbol:         "BTCUSDT",
		Period:         core.Period1h,
		Hours:          168,
		Strategy:       strategyName,
		InitialCapital: 1000,
		StartTime:      time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		EndTime:        time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC),
		TotalTrades:    12,
		WinRatePct:     66.6,
		TotalProfitPct: profit,
		SharpeRatio:    1.2,
		CreatedAt:      time.Now(),
	}
}

func TestBacktestCreateAndFind(t *testing.T) {
	store := testBacktestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, sampleRecord("rsi_reversal", 4.2)))

	records, err := store.FindWithFilters(ctx, core.BacktestQuery{Strategy: "rsi_reversal"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.NotZero(t, records[0].ID)
	assert.Equal(t, 4.2, records[0].TotalProfitPct)

	none, err := store.FindWithFilters(ctx, core.BacktestQuery{Strategy: "other"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestBacktestCreateMany(t *testing.T) {
	store := testBacktestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateMany(ctx, []*core.BacktestRecord{
		sampleRecord("a", 1),
		sampleRecord("b", 2),
	}))
	require.NoError(t, store.CreateMany(ctx, nil))

	count, err := store.CountWithFilters(ctx, core.BacktestQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestBacktestSortByROI(t *testing.T) {
	store := testBacktestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateMany(ctx, []*core.BacktestRecord{
		sampleRecord("low", 1),
		sampleRecord("high", 9),
		sampleRecord("mid", 5),
	}))

	records, err := store.FindWithFilters(ctx, core.BacktestQuery{SortBy: "roi", SortDir: "desc"})
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "high", records[0].Strategy)
	assert.Equal(t, "low", records[2].Strategy)

	ascending, err := store.FindWithFilters(ctx, core.BacktestQuery{SortBy: "roi", SortDir: "asc"})
	require.NoError(t, err)
	assert.Equal(t, "low", ascending[0].Strategy)
}

func TestBacktestPaging(t *testing.T) {
	store := testBacktestStore(t)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		require.NoError(t, store.Create(ctx, sampleRecord("s", float64(i))))
	}

	page1, err := store.FindWithFilters(ctx, core.BacktestQuery{
		SortBy: "roi", SortDir: "asc", Page: 1, Limit: 3,
	})
	require.NoError(t, err)
	require.Len(t, page1, 3)
	assert.Equal(t, 0.0, page1[0].TotalProfitPct)

	page3, err := store.FindWithFilters(ctx, core.BacktestQuery{
		SortBy: "roi", SortDir: "asc", Page: 3, Limit: 3,
	})
	require.NoError(t, err)
	require.Len(t, page3, 1)
	assert.Equal(t, 6.0, page3[0].TotalProfitPct)
}

func TestBacktestFreeTextFilter(t *testing.T) {
	store := testBacktestStore(t)
	ctx := context.Background()

	eth := sampleRecord("ema_cross", 2)
	eth.Symbol = "ETHUSDT"
	require.NoError(t, store.CreateMany(ctx, []*core.BacktestRecord{
		sampleRecord("rsi_reversal", 1),
		eth,
	}))

	records, err := store.FindWithFilters(ctx, core.BacktestQuery{Q: "ETH"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "ETHUSDT", records[0].Symbol)

	count, err := store.CountWithFilters(ctx, core.BacktestQuery{Q: "rsi"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestBacktestUseAIFilter(t *testing.T) {
	store := testBacktestStore(t)
	ctx := context.Background()

	withAI := sampleRecord("s", 1)
	withAI.UseAI = 1
	require.NoError(t, store.CreateMany(ctx, []*core.BacktestRecord{
		withAI,
		sampleRecord("s", 2),
	}))

	yes := true
	records, err := store.FindWithFilters(ctx, core.BacktestQuery{UseAI: &yes})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].UseAI)
}
