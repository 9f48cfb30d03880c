package backtest

import (
	"testing"

	"github.com/raykavin/quantcore/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tradesWithReturns(returns ...float64) []core.Trade {
	trades := make([]core.Trade, len(returns))
	for i, r := range returns {
		trades[i] = core.Trade{ProfitPercent: r, ProfitAbsolute: r * 10}
	}
	return trades
}

func TestComputeSummaryEmpty(t *testing.T) {
	s := ComputeSummary(nil)
	assert.Zero(t, s.TotalTrades)
	assert.Zero(t, s.WinRatePct)
	assert.Zero(t, s.SharpeRatio)
}

func TestComputeSummaryCounts(t *testing.T) {
	s := ComputeSummary(tradesWithReturns(1, -2, 3))

	assert.Equal(t, 3, s.TotalTrades)
	assert.Equal(t, 2, s.ProfitableTrades)
	assert.Equal(t, 1, s.LosingTrades)
	assert.InDelta(t, 66.666, s.WinRatePct, 0.01)
	assert.InDelta(t, 2.0, s.TotalProfitPct, 1e-9)
	assert.InDelta(t, 2.0/3.0, s.AverageProfitPct, 1e-9)
}

func TestComputeSummaryZeroReturnIsLoss(t *testing.T) {
	s := ComputeSummary(tradesWithReturns(0, 1))
	assert.Equal(t, 1, s.ProfitableTrades)
	assert.Equal(t, 1, s.LosingTrades)
	assert.Equal(t, 50.0, s.WinRatePct)
}

func TestComputeSummaryMaxDrawdown(t *testing.T) {
	// Equity walks 1, -1, 2; the peak of 1 falls to -1 before
	// recovering, a drawdown of 2 points.
	s := ComputeSummary(tradesWithReturns(1, -2, 3))
	assert.InDelta(t, 2.0, s.MaxDrawdownPct, 1e-9)

	// Monotonic gains never draw down.
	up := ComputeSummary(tradesWithReturns(1, 2, 3))
	assert.Zero(t, up.MaxDrawdownPct)
}

func TestComputeSummarySharpe(t *testing.T) {
	s := ComputeSummary(tradesWithReturns(1, 2, 3))
	assert.Greater(t, s.SharpeRatio, 0.0)

	// Identical returns have zero spread; Sharpe stays zero rather
	// than dividing by zero.
	flat := ComputeSummary(tradesWithReturns(2, 2, 2))
	assert.Zero(t, flat.SharpeRatio)
}

func TestRenderSummaryContainsHeadlineNumbers(t *testing.T) {
	result := &core.BacktestResult{
		Exchange:     "binance",
		Symbol:       "BTCUSDT",
		Period:       core.Period1h,
		StrategyName: "rsi_reversal",
		Summary:      ComputeSummary(tradesWithReturns(1, -2, 3)),
	}

	rendered := RenderSummary(result)
	require.NotEmpty(t, rendered)
	assert.Contains(t, rendered, "binance.BTCUSDT")
	assert.Contains(t, rendered, "rsi_reversal")
	assert.Contains(t, rendered, "66.7")
}
