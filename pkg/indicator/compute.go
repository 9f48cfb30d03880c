package indicator

import (
	"math"

	"github.com/markcheno/go-talib"
	"github.com/raykavin/quantcore/pkg/core"
)

func computeRSI(in inputs, opts core.StrategyOptions) Series {
	length := opts.GetInt("length", 14)
	if in.len() <= length {
		return undefinedSeries(in.len())
	}
	return scalarSeries(talib.Rsi(in.close, length), length)
}

func computeEMA(in inputs, opts core.StrategyOptions) Series {
	length := opts.GetInt("length", 9)
	if in.len() < length {
		return undefinedSeries(in.len())
	}
	return scalarSeries(talib.Ema(in.close, length), length-1)
}

func computeSMA(in inputs, opts core.StrategyOptions) Series {
	length := opts.GetInt("length", 20)
	if in.len() < length {
		return undefinedSeries(in.len())
	}
	return scalarSeries(talib.Sma(in.close, length), length-1)
}

func computeMACD(in inputs, opts core.StrategyOptions) Series {
	fast := opts.GetInt("fast_length", 12)
	slow := opts.GetInt("slow_length", 26)
	signal := opts.GetInt("signal_length", 9)
	warmup := slow - 1 + signal - 1
	if in.len() <= warmup {
		return undefinedSeries(in.len())
	}

	macd, sig, hist := talib.Macd(in.close, fast, slow, signal)
	out := make(Series, in.len())
	for i := warmup; i < in.len(); i++ {
		out[i] = Record(map[string]float64{
			"macd":      macd[i],
			"signal":    sig[i],
			"histogram": hist[i],
		})
	}
	return out
}

func computeBollinger(in inputs, opts core.StrategyOptions) Series {
	length := opts.GetInt("length", 20)
	stddev := opts.GetFloat("stddev", 2.0)
	if in.len() < length {
		return undefinedSeries(in.len())
	}

	upper, middle, lower := talib.BBands(in.close, length, stddev, stddev, talib.SMA)
	out := make(Series, in.len())
	for i := length - 1; i < in.len(); i++ {
		width := math.NaN()
		if middle[i] != 0 {
			width = (upper[i] - lower[i]) / middle[i]
		}
		out[i] = Record(map[string]float64{
			"upper":  upper[i],
			"middle": middle[i],
			"lower":  lower[i],
			"width":  width,
		})
	}
	return out
}

func computeOBV(in inputs) Series {
	if in.len() == 0 {
		return Series{}
	}
	return scalarSeries(talib.Obv(in.close, in.volume), 0)
}

func computeADX(in inputs, opts core.StrategyOptions) Series {
	length := opts.GetInt("length", 14)
	warmup := 2*length - 1
	if in.len() <= warmup {
		return undefinedSeries(in.len())
	}
	return scalarSeries(talib.Adx(in.high, in.low, in.close, length), warmup)
}

func computeCCI(in inputs, opts core.StrategyOptions) Series {
	length := opts.GetInt("length", 20)
	if in.len() < length {
		return undefinedSeries(in.len())
	}
	return scalarSeries(talib.Cci(in.high, in.low, in.close, length), length-1)
}

func computeMFI(in inputs, opts core.StrategyOptions) Series {
	length := opts.GetInt("length", 14)
	if in.len() <= length {
		return undefinedSeries(in.len())
	}
	return scalarSeries(talib.Mfi(in.high, in.low, in.close, in.volume, length), length)
}

func computeStoch(in inputs, opts core.StrategyOptions) Series {
	k := opts.GetInt("k", 14)
	d := opts.GetInt("d", 3)
	smooth := opts.GetInt("smooth", 3)
	warmup := (k - 1) + (smooth - 1) + (d - 1)
	if in.len() <= warmup {
		return undefinedSeries(in.len())
	}

	slowK, slowD := talib.Stoch(in.high, in.low, in.close, k, smooth, talib.SMA, d, talib.SMA)
	out := make(Series, in.len())
	for i := warmup; i < in.len(); i++ {
		out[i] = Record(map[string]float64{
			"k": slowK[i],
			"d": slowD[i],
		})
	}
	return out
}

func computeATR(in inputs, opts core.StrategyOptions) Series {
	length := opts.GetInt("length", 14)
	if in.len() <= length {
		return undefinedSeries(in.len())
	}
	return scalarSeries(talib.Atr(in.high, in.low, in.close, length), length)
}

func computeROC(in inputs, opts core.StrategyOptions) Series {
	length := opts.GetInt("length", 9)
	if in.len() <= length {
		return undefinedSeries(in.len())
	}
	return scalarSeries(talib.Roc(in.close, length), length)
}

func computeSAR(in inputs, opts core.StrategyOptions) Series {
	step := opts.GetFloat("step", 0.02)
	max := opts.GetFloat("max", 0.2)
	if in.len() < 2 {
		return undefinedSeries(in.len())
	}
	return scalarSeries(talib.Sar(in.high, in.low, step, max), 1)
}

func computeAwesome(in inputs, opts core.StrategyOptions) Series {
	fast := opts.GetInt("fast_length", 5)
	slow := opts.GetInt("slow_length", 34)
	if in.len() < slow {
		return undefinedSeries(in.len())
	}

	median := talib.MedPrice(in.high, in.low)
	fastMA := talib.Sma(median, fast)
	slowMA := talib.Sma(median, slow)

	out := make(Series, in.len())
	for i := slow - 1; i < in.len(); i++ {
		out[i] = Scalar(fastMA[i] - slowMA[i])
	}
	return out
}

func computeIchimoku(in inputs, opts core.StrategyOptions) Series {
	conversionPeriod := opts.GetInt("conversionPeriod", 9)
	basePeriod := opts.GetInt("basePeriod", 26)
	spanPeriod := opts.GetInt("spanPeriod", 52)
	displacement := opts.GetInt("displacement", 26)

	n := in.len()
	conversion := donchianMid(in.high, in.low, conversionPeriod)
	base := donchianMid(in.high, in.low, basePeriod)
	spanRaw := donchianMid(in.high, in.low, spanPeriod)

	out := make(Series, n)
	for i := 0; i < n; i++ {
		fields := map[string]float64{
			"conversion": conversion[i],
			"base":       base[i],
		}
		// Spans are displaced forward: the values plotted at i were
		// computed displacement bars ago.
		if j := i - displacement; j >= 0 {
			fields["spanA"] = (conversion[j] + base[j]) / 2
			fields["spanB"] = spanRaw[j]
		}
		out[i] = Record(fields)
	}
	return out
}

// donchianMid is the midpoint of the highest high and lowest low over a
// trailing window, NaN while the window is incomplete.
func donchianMid(high, low []float64, period int) []float64 {
	out := make([]float64, len(high))
	for i := range out {
		if i < period-1 {
			out[i] = math.NaN()
			continue
		}
		hi, lo := math.Inf(-1), math.Inf(1)
		for j := i - period + 1; j <= i; j++ {
			if high[j] > hi {
				hi = high[j]
			}
			if low[j] < lo {
				lo = low[j]
			}
		}
		out[i] = (hi + lo) / 2
	}
	return out
}

// computePivot confirms local extremes: a bar is a pivot high when its
// high strictly exceeds the left bars and the right bars; the value is
// emitted at the confirmation index (pivot + right) so strategies never
// see into the future.
func computePivot(in inputs, opts core.StrategyOptions) Series {
	left := opts.GetInt("left", 5)
	right := opts.GetInt("right", 5)

	n := in.len()
	out := make(Series, n)
	for center := left; center+right < n; center++ {
		isHigh, isLow := true, true
		for j := center - left; j <= center+right; j++ {
			if j == center {
				continue
			}
			if in.high[j] >= in.high[center] {
				isHigh = false
			}
			if in.low[j] <= in.low[center] {
				isLow = false
			}
			if !isHigh && !isLow {
				break
			}
		}

		confirm := center + right
		if isHigh || isLow {
			fields := map[string]float64{}
			if existing := out[confirm]; existing.Valid {
				for k, v := range existing.Fields {
					fields[k] = v
				}
			}
			if isHigh {
				fields["high"] = in.high[center]
			}
			if isLow {
				fields["low"] = in.low[center]
			}
			out[confirm] = Record(fields)
		}
	}
	return out
}

func computeCandles(in inputs) Series {
	out := make(Series, in.len())
	for i := range out {
		out[i] = Record(map[string]float64{
			"open":   in.open[i],
			"high":   in.high[i],
			"low":    in.low[i],
			"close":  in.close[i],
			"volume": in.volume[i],
		})
	}
	return out
}
