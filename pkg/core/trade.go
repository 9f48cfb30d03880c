package core

import "time"

// Position is the single open trade a back-test simulation may hold.
// Peak and trough track price extremes between entry and exit.
type Position struct {
	Side        Direction
	EntryPrice  float64
	EntryTime   time.Time
	PeakPrice   float64
	TroughPrice float64
}

// Update folds a new price into the peak/trough extremes.
func (p *Position) Update(price float64) {
	if price > p.PeakPrice {
		p.PeakPrice = price
	}
	if price < p.TroughPrice {
		p.TroughPrice = price
	}
}

// Trade is a closed position with its realised profit.
type Trade struct {
	EntryTime      time.Time `json:"entry_time"`
	ExitTime       time.Time `json:"exit_time"`
	EntryPrice     float64   `json:"entry_price"`
	ExitPrice      float64   `json:"exit_price"`
	Side           Direction `json:"side"`
	ProfitPercent  float64   `json:"profit_percent"`
	ProfitAbsolute float64   `json:"profit_absolute"`
	Forced         bool      `json:"forced,omitempty"`
	AIConfirmation string    `json:"ai_confirmation,omitempty"`
}

// Summary aggregates the performance of one back-test run.
type Summary struct {
	TotalTrades      int     `json:"total_trades"`
	ProfitableTrades int     `json:"profitable_trades"`
	LosingTrades     int     `json:"losing_trades"`
	WinRatePct       float64 `json:"win_rate_pct"`
	TotalProfitPct   float64 `json:"total_profit_pct"`
	AverageProfitPct float64 `json:"average_profit_pct"`
	MaxDrawdownPct   float64 `json:"max_drawdown_pct"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
}

// BacktestResult is the full outcome of a single back-test run.
type BacktestResult struct {
	Exchange        string          `json:"exchange"`
	Symbol          string          `json:"symbol"`
	Period          Period          `json:"period"`
	StartTime       time.Time       `json:"start_time"`
	EndTime         time.Time       `json:"end_time"`
	StrategyName    string          `json:"strategy_name"`
	StrategyOptions StrategyOptions `json:"strategy_options"`
	Candles         []Candle        `json:"candles_asc"`
	Rows            []SignalRow     `json:"rows"`
	Trades          []Trade         `json:"trades"`
	IndicatorKeys   []string        `json:"indicator_keys"`
	Summary         Summary         `json:"summary"`
}
