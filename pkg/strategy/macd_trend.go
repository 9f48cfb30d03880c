package strategy

import (
	"context"

	"github.com/raykavin/quantcore/pkg/core"
	"github.com/raykavin/quantcore/pkg/indicator"
)

// MACDTrend follows the MACD histogram: long when it flips positive,
// short when it flips negative. The previous histogram sign is private
// run state and resets with every fresh instance.
type MACDTrend struct {
	fastLength   int
	slowLength   int
	signalLength int

	prevHistogram float64
	hasPrev       bool
}

// NewMACDTrend creates the strategy with options merged over defaults.
func NewMACDTrend(opts core.StrategyOptions) (Strategy, error) {
	s := &MACDTrend{}
	opts = opts.Merge(s.DefaultOptions())
	s.fastLength = opts.GetInt("fast_length", 12)
	s.slowLength = opts.GetInt("slow_length", 26)
	s.signalLength = opts.GetInt("signal_length", 9)

	if s.fastLength >= s.slowLength {
		return nil, core.Validationf("macd_trend: fast_length must be below slow_length")
	}
	return s, nil
}

func (s *MACDTrend) Description() string {
	return "MACD histogram sign-flip trend following"
}

func (s *MACDTrend) DefaultOptions() core.StrategyOptions {
	return core.StrategyOptions{
		"fast_length":   12,
		"slow_length":   26,
		"signal_length": 9,
	}
}

func (s *MACDTrend) DefineIndicators(_ core.Period) map[string]indicator.Definition {
	return map[string]indicator.Definition{
		"macd": {Kind: indicator.KindMACD, Options: core.StrategyOptions{
			"fast_length":   s.fastLength,
			"slow_length":   s.slowLength,
			"signal_length": s.signalLength,
		}},
	}
}

func (s *MACDTrend) Execute(_ context.Context, eval *Eval, sig *core.Signal) error {
	hist, ok := eval.Value("macd").Field("histogram")
	if !ok {
		return nil
	}

	defer func() {
		s.prevHistogram = hist
		s.hasPrev = true
	}()

	if !s.hasPrev {
		return nil
	}

	sig.SetDebug("histogram", hist)
	if hist > 0 && s.prevHistogram <= 0 {
		sig.Long()
	} else if hist < 0 && s.prevHistogram >= 0 {
		sig.Short()
	}
	return nil
}
