package indicator

import (
	"fmt"

	"github.com/raykavin/quantcore/pkg/core"
)

// Kind identifies an indicator in the catalog.
type Kind string

const (
	KindRSI       Kind = "rsi"
	KindMACD      Kind = "macd"
	KindEMA       Kind = "ema"
	KindSMA       Kind = "sma"
	KindBollinger Kind = "bbands"
	KindOBV       Kind = "obv"
	KindADX       Kind = "adx"
	KindCCI       Kind = "cci"
	KindMFI       Kind = "mfi"
	KindStoch     Kind = "stoch"
	KindATR       Kind = "atr"
	KindROC       Kind = "roc"
	KindIchimoku  Kind = "ichimoku"
	KindSAR       Kind = "sar"
	KindPivot     Kind = "pivot"
	KindAwesome   Kind = "ao"
	// KindCandles passes the raw bar through as a structured value.
	KindCandles Kind = "candles"
)

// Definition declares one indicator a strategy requires: a kind plus an
// option bag merged over the kind's defaults. Unknown keys are ignored.
type Definition struct {
	Kind    Kind                 `json:"kind"`
	Options core.StrategyOptions `json:"options,omitempty"`
}

var defaults = map[Kind]core.StrategyOptions{
	KindRSI:       {"length": 14},
	KindMACD:      {"fast_length": 12, "slow_length": 26, "signal_length": 9},
	KindEMA:       {"length": 9},
	KindSMA:       {"length": 20},
	KindBollinger: {"length": 20, "stddev": 2.0},
	KindOBV:       {},
	KindADX:       {"length": 14},
	KindCCI:       {"length": 20},
	KindMFI:       {"length": 14},
	KindStoch:     {"k": 14, "d": 3, "smooth": 3},
	KindATR:       {"length": 14},
	KindROC:       {"length": 9},
	KindIchimoku:  {"conversionPeriod": 9, "basePeriod": 26, "spanPeriod": 52, "displacement": 26},
	KindSAR:       {"step": 0.02, "max": 0.2},
	KindPivot:     {"left": 5, "right": 5},
	KindAwesome:   {"fast_length": 5, "slow_length": 34},
	KindCandles:   {},
}

// Kinds lists every indicator in the catalog.
func Kinds() []Kind {
	out := make([]Kind, 0, len(defaults))
	for k := range defaults {
		out = append(out, k)
	}
	return out
}

// IsValid reports whether kind names a catalog entry.
func IsValid(kind Kind) bool {
	_, ok := defaults[kind]
	return ok
}

// Build resolves a definition into an aligned series over the given
// ascending candle history. The output length always equals the candle
// count; the warm-up prefix and any non-finite formula output are
// undefined values. Building is deterministic.
func Build(def Definition, candles []core.Candle) (Series, error) {
	defs, ok := defaults[def.Kind]
	if !ok {
		return nil, core.Validationf("unknown indicator kind %q", def.Kind)
	}
	opts := def.Options.Merge(defs)

	if len(candles) == 0 {
		return Series{}, nil
	}

	in := newInputs(candles)
	switch def.Kind {
	case KindRSI:
		return computeRSI(in, opts), nil
	case KindMACD:
		return computeMACD(in, opts), nil
	case KindEMA:
		return computeEMA(in, opts), nil
	case KindSMA:
		return computeSMA(in, opts), nil
	case KindBollinger:
		return computeBollinger(in, opts), nil
	case KindOBV:
		return computeOBV(in), nil
	case KindADX:
		return computeADX(in, opts), nil
	case KindCCI:
		return computeCCI(in, opts), nil
	case KindMFI:
		return computeMFI(in, opts), nil
	case KindStoch:
		return computeStoch(in, opts), nil
	case KindATR:
		return computeATR(in, opts), nil
	case KindROC:
		return computeROC(in, opts), nil
	case KindIchimoku:
		return computeIchimoku(in, opts), nil
	case KindSAR:
		return computeSAR(in, opts), nil
	case KindPivot:
		return computePivot(in, opts), nil
	case KindAwesome:
		return computeAwesome(in, opts), nil
	case KindCandles:
		return computeCandles(in), nil
	}
	return nil, fmt.Errorf("indicator kind %q not wired", def.Kind)
}

// inputs is the column-major view of the candle history every compute
// function consumes. Missing volume is treated as zero.
type inputs struct {
	open, high, low, close, volume []float64
}

func newInputs(candles []core.Candle) inputs {
	in := inputs{
		open:   make([]float64, len(candles)),
		high:   make([]float64, len(candles)),
		low:    make([]float64, len(candles)),
		close:  make([]float64, len(candles)),
		volume: make([]float64, len(candles)),
	}
	for i, c := range candles {
		in.open[i] = c.Open
		in.high[i] = c.High
		in.low[i] = c.Low
		in.close[i] = c.Close
		if c.Volume > 0 {
			in.volume[i] = c.Volume
		}
	}
	return in
}

func (in inputs) len() int { return len(in.close) }

// undefinedSeries is the all-sentinel output used when the history is
// shorter than the indicator's warm-up.
func undefinedSeries(n int) Series {
	return make(Series, n)
}

// scalarSeries masks the first warmup entries of a raw talib output and
// converts the rest through Scalar (NaN becomes undefined).
func scalarSeries(raw []float64, warmup int) Series {
	out := make(Series, len(raw))
	for i, v := range raw {
		if i < warmup {
			continue
		}
		out[i] = Scalar(v)
	}
	return out
}
