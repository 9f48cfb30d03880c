package backtest

import (
	"context"
	"time"

	"github.com/raykavin/quantcore/pkg/core"
	"github.com/raykavin/quantcore/pkg/logger"
	"github.com/raykavin/quantcore/pkg/strategy"
)

// CandleProvider delivers a contiguous window of completed candles.
// Implemented by the candle availability service.
type CandleProvider interface {
	EnsureRange(ctx context.Context, exchange, symbol string, period core.Period,
		since, until time.Time) ([]core.Candle, error)
}

// Params describes one back-test run.
type Params struct {
	Exchange       string
	Symbol         string
	Period         core.Period
	Hours          float64
	Strategy       string
	Options        core.StrategyOptions
	InitialCapital float64
	UseAI          bool
}

// minBars is the smallest candle window a run accepts.
const minBars = 10

// Engine replays history through a strategy and simulates a
// single-position ledger over the emitted signals.
type Engine struct {
	registry  *strategy.Registry
	executor  *strategy.Executor
	candles   CandleProvider
	validator core.SignalValidator
	log       logger.Logger
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithValidator plugs in the external signal validator used when a run
// requests AI confirmation.
func WithValidator(v core.SignalValidator) Option {
	return func(e *Engine) { e.validator = v }
}

// WithClock overrides the wall clock. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a back-test engine.
func NewEngine(registry *strategy.Registry, executor *strategy.Executor,
	candles CandleProvider, log logger.Logger, opts ...Option) *Engine {

	e := &Engine{
		registry: registry,
		executor: executor,
		candles:  candles,
		log:      log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes one back-test. Only insufficient data and market-data
// unavailability fail the run; strategy errors are recovered per candle.
func (e *Engine) Run(ctx context.Context, params Params) (*core.BacktestResult, error) {
	endTime := e.now()
	startTime := endTime.Add(-time.Duration(params.Hours * float64(time.Hour)))

	strat, err := e.registry.New(params.Strategy, params.Options)
	if err != nil {
		return nil, err
	}

	candles, err := e.candles.EnsureRange(ctx, params.Exchange, params.Symbol,
		params.Period, startTime, endTime)
	if err != nil {
		return nil, err
	}
	if len(candles) < minBars || candles[len(candles)-1].Time.Before(startTime) {
		return nil, core.ErrInsufficientData
	}

	rows, keys, err := e.executor.Run(ctx, strat, params.Period, candles)
	if err != nil {
		return nil, err
	}

	trades := e.simulate(ctx, params, candles, rows)

	return &core.BacktestResult{
		Exchange:        params.Exchange,
		Symbol:          params.Symbol,
		Period:          params.Period,
		StartTime:       startTime,
		EndTime:         endTime,
		StrategyName:    params.Strategy,
		StrategyOptions: params.Options,
		Candles:         candles,
		Rows:            rows,
		Trades:          trades,
		IndicatorKeys:   keys,
		Summary:         ComputeSummary(trades),
	}, nil
}

// simulate walks the signal rows in order and maintains the
// single-position ledger. Rows are annotated in place with the
// validator's verdicts.
func (e *Engine) simulate(ctx context.Context, params Params,
	candles []core.Candle, rows []core.SignalRow) []core.Trade {

	trades := make([]core.Trade, 0)
	var position *core.Position
	var positionConfirmation string

	closeAt := func(row core.SignalRow, forced bool) {
		trades = append(trades, e.closedTrade(params, position, row, forced, positionConfirmation))
		position = nil
		positionConfirmation = ""
	}

	for i := range rows {
		row := rows[i]
		if position != nil {
			position.Update(row.Price)
		}
		if !row.HasSignal() {
			continue
		}

		if row.Direction == core.DirectionClose {
			if position != nil {
				closeAt(row, false)
			}
			continue
		}

		// Entry signal. Ignore a duplicate entry on the open side; the
		// signal layer already suppresses these, this is a guard.
		if position != nil && position.Side == row.Direction {
			continue
		}

		confirmation := ""
		if params.UseAI {
			if !e.confirm(ctx, params, candles, rows, i) {
				rows[i].AIConfirmation = core.ConfirmationRejected
				continue
			}
			confirmation = core.ConfirmationApproved
			rows[i].AIConfirmation = core.ConfirmationApproved
		}

		// Opposite entry while open closes first, then reopens.
		if position != nil {
			closeAt(row, false)
		}
		position = &core.Position{
			Side:        row.Direction,
			EntryPrice:  row.Price,
			EntryTime:   row.Time,
			PeakPrice:   row.Price,
			TroughPrice: row.Price,
		}
		positionConfirmation = confirmation
	}

	// A run ending with an open position forces a close at the last
	// close price.
	if position != nil && len(rows) > 0 {
		closeAt(rows[len(rows)-1], true)
	}

	return trades
}

func (e *Engine) closedTrade(params Params, position *core.Position,
	row core.SignalRow, forced bool, confirmation string) core.Trade {

	profitPct := (row.Price - position.EntryPrice) / position.EntryPrice * 100
	if position.Side == core.DirectionShort {
		profitPct = -profitPct
	}

	return core.Trade{
		EntryTime:      position.EntryTime,
		ExitTime:       row.Time,
		EntryPrice:     position.EntryPrice,
		ExitPrice:      row.Price,
		Side:           position.Side,
		ProfitPercent:  profitPct,
		ProfitAbsolute: params.InitialCapital * profitPct / 100,
		Forced:         forced,
		AIConfirmation: confirmation,
	}
}

// confirm consults the validator for an entry at row index i. Any
// validator failure counts as not confirmed and never fails the run.
func (e *Engine) confirm(ctx context.Context, params Params,
	candles []core.Candle, rows []core.SignalRow, i int) bool {

	if e.validator == nil {
		return true
	}

	const recentWindow = 50
	start := i + 1 - recentWindow
	if start < 0 {
		start = 0
	}

	snapshot := make(map[string]float64)
	for k, v := range rows[i].Debug {
		if f, ok := v.(float64); ok {
			snapshot[k] = f
		}
	}

	verdict, err := e.validator.Validate(ctx, core.FeaturePacket{
		Symbol:     params.Symbol,
		Side:       rows[i].Direction,
		Candles:    candles[start : i+1],
		Indicators: snapshot,
	})
	if err != nil {
		e.log.WithError(err).Warn("signal validator unavailable, entry not confirmed")
		return false
	}
	if !verdict.Confirmed {
		e.log.WithField("rationale", verdict.Rationale).
			Debugf("validator rejected %s entry on %s", rows[i].Direction, params.Symbol)
	}
	return verdict.Confirmed
}
