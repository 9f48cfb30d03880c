package strategy

import (
	"context"
	"fmt"
	"sort"

	"github.com/raykavin/quantcore/pkg/core"
	"github.com/raykavin/quantcore/pkg/indicator"
	"github.com/raykavin/quantcore/pkg/logger"
)

// Executor replays an ascending candle sequence through a strategy,
// candle by candle, and collects the per-candle signal rows. A single
// run is strictly sequential; separate runs may execute concurrently
// with fresh strategy instances.
type Executor struct {
	log logger.Logger
}

// NewExecutor creates an executor.
func NewExecutor(log logger.Logger) *Executor {
	return &Executor{log: log}
}

// Run produces one SignalRow per candle plus the sorted names of the
// indicators the strategy declared. An empty candle set yields zero
// rows and no error. Candles must be strictly ascending in time.
func (ex *Executor) Run(ctx context.Context, strat Strategy, period core.Period,
	candles []core.Candle) ([]core.SignalRow, []string, error) {

	if len(candles) == 0 {
		return []core.SignalRow{}, nil, nil
	}
	for i := 1; i < len(candles); i++ {
		if !candles[i].Time.After(candles[i-1].Time) {
			return nil, nil, core.Validationf("candles out of order at index %d", i)
		}
	}

	defs := strat.DefineIndicators(period)
	series := make(map[string]indicator.Series, len(defs))
	keys := make([]string, 0, len(defs))
	for name, def := range defs {
		s, err := indicator.Build(def, candles)
		if err != nil {
			return nil, nil, fmt.Errorf("build indicator %q: %w", name, err)
		}
		series[name] = s
		keys = append(keys, name)
	}
	sort.Strings(keys)

	eval := &Eval{
		candles:    candles,
		closes:     make([]float64, len(candles)),
		highs:      make([]float64, len(candles)),
		lows:       make([]float64, len(candles)),
		volumes:    make([]float64, len(candles)),
		indicators: series,
	}
	for i, c := range candles {
		eval.closes[i] = c.Close
		eval.highs[i] = c.High
		eval.lows[i] = c.Low
		eval.volumes[i] = c.Volume
	}

	rows := make([]core.SignalRow, 0, len(candles))
	var lastSignal core.Direction

	for i := range candles {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		eval.index = i
		eval.lastSignal = lastSignal
		sig := core.NewSignal(lastSignal)

		err := ex.executeSafely(ctx, strat, eval, sig)

		row := core.SignalRow{
			Time:  candles[i].Time,
			Price: candles[i].Close,
			Debug: sig.Debug(),
		}

		if err != nil {
			// Strategy failures are non-fatal: the candle yields no
			// signal and the replay continues.
			if row.Debug == nil {
				row.Debug = make(map[string]any)
			}
			row.Debug["error"] = err.Error()
			ex.log.WithError(err).Warnf("strategy error at candle %d", i)
		} else if dir, ok := sig.Direction(); ok {
			row.Direction = dir
			if dir.IsEntry() {
				lastSignal = dir
			} else {
				lastSignal = ""
			}
		}

		rows = append(rows, row)
	}

	return rows, keys, nil
}

// executeSafely converts a panic inside Execute into an error so one
// bad candle never kills the run.
func (ex *Executor) executeSafely(ctx context.Context, strat Strategy,
	eval *Eval, sig *core.Signal) (err error) {

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy panic: %v", r)
		}
	}()
	return strat.Execute(ctx, eval, sig)
}
