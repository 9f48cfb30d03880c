package backtest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/raykavin/quantcore/pkg/core"
	"gonum.org/v1/gonum/stat"
)

// ComputeSummary aggregates closed trades into run statistics. Profit
// percentages are additive across trades; capital is not compounded.
func ComputeSummary(trades []core.Trade) core.Summary {
	s := core.Summary{TotalTrades: len(trades)}
	if len(trades) == 0 {
		return s
	}

	returns := make([]float64, len(trades))
	for i, t := range trades {
		returns[i] = t.ProfitPercent
		if t.ProfitPercent > 0 {
			s.ProfitableTrades++
		} else {
			s.LosingTrades++
		}
		s.TotalProfitPct += t.ProfitPercent
	}

	s.WinRatePct = float64(s.ProfitableTrades) / float64(s.TotalTrades) * 100
	s.AverageProfitPct = s.TotalProfitPct / float64(s.TotalTrades)
	s.MaxDrawdownPct = maxDrawdown(returns)

	mean, stdDev := stat.MeanStdDev(returns, nil)
	if stdDev > 0 {
		s.SharpeRatio = mean / stdDev
	}

	return s
}

// maxDrawdown is the largest peak-to-trough decline of the cumulative
// equity curve built from per-trade returns. Always non-negative.
func maxDrawdown(returns []float64) float64 {
	var equity, peak, maxDD float64
	for _, r := range returns {
		equity += r
		if equity > peak {
			peak = equity
		}
		if dd := peak - equity; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// RenderSummary formats a result's summary as a text table.
func RenderSummary(result *core.BacktestResult) string {
	builder := &strings.Builder{}
	table := tablewriter.NewWriter(builder)

	data := [][]string{
		{"Pair", fmt.Sprintf("%s.%s", result.Exchange, result.Symbol)},
		{"Strategy", result.StrategyName},
		{"Period", result.Period.String()},
		{"Trades", strconv.Itoa(result.Summary.TotalTrades)},
		{"Win", strconv.Itoa(result.Summary.ProfitableTrades)},
		{"Loss", strconv.Itoa(result.Summary.LosingTrades)},
		{"% Win", fmt.Sprintf("%.1f", result.Summary.WinRatePct)},
		{"Profit %", fmt.Sprintf("%.4f", result.Summary.TotalProfitPct)},
		{"Avg Profit %", fmt.Sprintf("%.4f", result.Summary.AverageProfitPct)},
		{"Max Drawdown %", fmt.Sprintf("%.4f", result.Summary.MaxDrawdownPct)},
		{"Sharpe", fmt.Sprintf("%.4f", result.Summary.SharpeRatio)},
	}

	table.AppendBulk(data)
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT})
	table.Render()

	return builder.String()
}
