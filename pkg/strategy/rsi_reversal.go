package strategy

import (
	"context"

	"github.com/raykavin/quantcore/pkg/core"
	"github.com/raykavin/quantcore/pkg/indicator"
)

// RSIReversal enters against short-term exhaustion: long below the
// oversold level, short above the overbought level, closing when RSI
// returns through the midline.
type RSIReversal struct {
	length     int
	oversold   float64
	overbought float64
}

// NewRSIReversal creates the strategy with options merged over defaults.
func NewRSIReversal(opts core.StrategyOptions) (Strategy, error) {
	s := &RSIReversal{}
	opts = opts.Merge(s.DefaultOptions())
	s.length = opts.GetInt("length", 14)
	s.oversold = opts.GetFloat("oversold", 30)
	s.overbought = opts.GetFloat("overbought", 70)

	if s.length < 2 {
		return nil, core.Validationf("rsi_reversal: length must be >= 2")
	}
	return s, nil
}

func (s *RSIReversal) Description() string {
	return "RSI mean reversion: long oversold, short overbought, exit at the midline"
}

func (s *RSIReversal) DefaultOptions() core.StrategyOptions {
	return core.StrategyOptions{
		"length":     14,
		"oversold":   30.0,
		"overbought": 70.0,
	}
}

func (s *RSIReversal) DefineIndicators(_ core.Period) map[string]indicator.Definition {
	return map[string]indicator.Definition{
		"rsi": {Kind: indicator.KindRSI, Options: core.StrategyOptions{"length": s.length}},
	}
}

func (s *RSIReversal) Execute(_ context.Context, eval *Eval, sig *core.Signal) error {
	v := eval.Value("rsi")
	if !v.Valid {
		return nil
	}
	sig.SetDebug("rsi", v.Num)

	switch eval.LastSignal() {
	case core.DirectionLong:
		if v.Num >= 50 {
			sig.Close()
		}
	case core.DirectionShort:
		if v.Num <= 50 {
			sig.Close()
		}
	default:
		if v.Num < s.oversold {
			sig.Long()
		} else if v.Num > s.overbought {
			sig.Short()
		}
	}
	return nil
}
