package strategy

import (
	"context"

	"github.com/raykavin/quantcore/pkg/core"
	"github.com/raykavin/quantcore/pkg/indicator"
)

// EMACross trades fast/slow moving average crossovers: long when the
// fast EMA crosses above the slow SMA, short on the way back down.
type EMACross struct {
	fastLength int
	slowLength int
}

// NewEMACross creates the strategy with options merged over defaults.
func NewEMACross(opts core.StrategyOptions) (Strategy, error) {
	s := &EMACross{}
	opts = opts.Merge(s.DefaultOptions())
	s.fastLength = opts.GetInt("fast_length", 9)
	s.slowLength = opts.GetInt("slow_length", 21)

	if s.fastLength >= s.slowLength {
		return nil, core.Validationf("ema_cross: fast_length must be below slow_length")
	}
	return s, nil
}

func (s *EMACross) Description() string {
	return "EMA/SMA crossover trend following"
}

func (s *EMACross) DefaultOptions() core.StrategyOptions {
	return core.StrategyOptions{
		"fast_length": 9,
		"slow_length": 21,
	}
}

func (s *EMACross) DefineIndicators(_ core.Period) map[string]indicator.Definition {
	return map[string]indicator.Definition{
		"fast": {Kind: indicator.KindEMA, Options: core.StrategyOptions{"length": s.fastLength}},
		"slow": {Kind: indicator.KindSMA, Options: core.StrategyOptions{"length": s.slowLength}},
	}
}

func (s *EMACross) Execute(_ context.Context, eval *Eval, sig *core.Signal) error {
	if eval.Index() == 0 {
		return nil
	}

	fast, slow := eval.Series("fast"), eval.Series("slow")
	i := eval.Index()
	if !fast.ValidAt(i) || !slow.ValidAt(i) || !fast.ValidAt(i-1) || !slow.ValidAt(i-1) {
		return nil
	}

	fastLine, slowLine := fast.Nums(), slow.Nums()
	if fastLine.Crossover(slowLine) {
		sig.Long()
	} else if fastLine.Crossunder(slowLine) {
		sig.Short()
	}
	return nil
}
