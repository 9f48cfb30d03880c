package strategy

import (
	"context"

	"github.com/raykavin/quantcore/pkg/core"
	"github.com/raykavin/quantcore/pkg/indicator"
)

// Strategy is the contract every trading strategy implements. A
// strategy instance lives for exactly one run; private state it keeps
// between candles is discarded when the run ends.
type Strategy interface {
	// Description returns a human-readable summary.
	Description() string
	// DefaultOptions returns the option defaults the registry merges
	// under the caller-supplied options.
	DefaultOptions() core.StrategyOptions
	// DefineIndicators declares the named indicator set for a run over
	// the given candle period. Called once, before the replay starts.
	DefineIndicators(period core.Period) map[string]indicator.Definition
	// Execute evaluates one candle. It may block on the signal
	// validator; it must not mutate the evaluation view.
	Execute(ctx context.Context, eval *Eval, sig *core.Signal) error
}

// Eval is the per-candle evaluation view handed to Execute. It exposes
// only data at indices up to and including the current candle.
type Eval struct {
	index      int
	candles    []core.Candle
	closes     []float64
	highs      []float64
	lows       []float64
	volumes    []float64
	indicators map[string]indicator.Series
	lastSignal core.Direction
}

// Index returns the current candle index within the run.
func (e *Eval) Index() int { return e.index }

// Candle returns the candle under evaluation.
func (e *Eval) Candle() core.Candle { return e.candles[e.index] }

// Candles returns the history up to the current candle inclusive.
func (e *Eval) Candles() []core.Candle { return e.candles[:e.index+1] }

// Closes returns the close series up to the current candle.
func (e *Eval) Closes() core.Series[float64] { return e.closes[:e.index+1] }

// Highs returns the high series up to the current candle.
func (e *Eval) Highs() core.Series[float64] { return e.highs[:e.index+1] }

// Lows returns the low series up to the current candle.
func (e *Eval) Lows() core.Series[float64] { return e.lows[:e.index+1] }

// Volumes returns the volume series up to the current candle.
func (e *Eval) Volumes() core.Series[float64] { return e.volumes[:e.index+1] }

// Value returns the named indicator's output at the current candle.
func (e *Eval) Value(name string) indicator.Value {
	s, ok := e.indicators[name]
	if !ok || e.index >= len(s) {
		return indicator.Undefined()
	}
	return s[e.index]
}

// Series returns the named indicator series up to the current candle.
func (e *Eval) Series(name string) indicator.Series {
	s, ok := e.indicators[name]
	if !ok {
		return nil
	}
	if e.index+1 < len(s) {
		return s[:e.index+1]
	}
	return s
}

// LastSignal returns the most recent entry direction since the last
// close, or empty when flat.
func (e *Eval) LastSignal() core.Direction { return e.lastSignal }
