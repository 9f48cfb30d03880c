package strategy

import (
	"context"

	"github.com/raykavin/quantcore/pkg/core"
	"github.com/raykavin/quantcore/pkg/indicator"
)

// BollingerMeanRev buys closes below the lower Bollinger band and
// sells closes above the upper band, exiting at the middle band.
type BollingerMeanRev struct {
	length int
	stddev float64
}

// NewBollingerMeanRev creates the strategy with options merged over
// defaults.
func NewBollingerMeanRev(opts core.StrategyOptions) (Strategy, error) {
	s := &BollingerMeanRev{}
	opts = opts.Merge(s.DefaultOptions())
	s.length = opts.GetInt("length", 20)
	s.stddev = opts.GetFloat("stddev", 2.0)

	if s.stddev <= 0 {
		return nil, core.Validationf("bb_meanrev: stddev must be positive")
	}
	return s, nil
}

func (s *BollingerMeanRev) Description() string {
	return "Bollinger band mean reversion with midline exits"
}

func (s *BollingerMeanRev) DefaultOptions() core.StrategyOptions {
	return core.StrategyOptions{
		"length": 20,
		"stddev": 2.0,
	}
}

func (s *BollingerMeanRev) DefineIndicators(_ core.Period) map[string]indicator.Definition {
	return map[string]indicator.Definition{
		"bb": {Kind: indicator.KindBollinger, Options: core.StrategyOptions{
			"length": s.length,
			"stddev": s.stddev,
		}},
	}
}

func (s *BollingerMeanRev) Execute(_ context.Context, eval *Eval, sig *core.Signal) error {
	bb := eval.Value("bb")
	upper, okU := bb.Field("upper")
	middle, okM := bb.Field("middle")
	lower, okL := bb.Field("lower")
	if !okU || !okM || !okL {
		return nil
	}

	price := eval.Closes().Last(0)

	switch eval.LastSignal() {
	case core.DirectionLong:
		if price >= middle {
			sig.Close()
		}
	case core.DirectionShort:
		if price <= middle {
			sig.Close()
		}
	default:
		if price < lower {
			sig.Long()
		} else if price > upper {
			sig.Short()
		}
	}
	return nil
}
