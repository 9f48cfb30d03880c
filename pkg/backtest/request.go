package backtest

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/raykavin/quantcore/pkg/core"
	"github.com/raykavin/quantcore/pkg/strategy"
)

// Request is a raw single back-test submission, typically decoded from
// a form or JSON body. Validate turns it into engine parameters.
type Request struct {
	// Pair is the combined "exchange.symbol" form field. When set it
	// takes precedence over Exchange/Symbol.
	Pair           string  `json:"pair,omitempty"`
	Exchange       string  `json:"exchange"`
	Symbol         string  `json:"symbol"`
	Period         string  `json:"period"`
	Hours          float64 `json:"hours"`
	Strategy       string  `json:"strategy"`
	InitialCapital float64 `json:"initialCapital"`
	OptionsJSON    string  `json:"options,omitempty"`
	UseAI          string  `json:"useAi,omitempty"`
}

// MultiRequest is a multi-period submission: the same run repeated over
// up to five periods.
type MultiRequest struct {
	Request
	Periods     []string `json:"periods"`
	Concurrency int      `json:"multi_backtest_concurrency,omitempty"`
}

// MaxMultiPeriods caps how many periods one multi submission may carry.
const MaxMultiPeriods = 5

// Validate checks the request against the registry and produces engine
// parameters. All failures are validation errors; nothing is started.
func (r Request) Validate(registry *strategy.Registry) (Params, error) {
	exchange, symbol := r.Exchange, r.Symbol
	if r.Pair != "" {
		parts := strings.SplitN(r.Pair, ".", 2)
		if len(parts) != 2 {
			return Params{}, core.Validationf("pair must be exchange.symbol, got %q", r.Pair)
		}
		exchange, symbol = parts[0], parts[1]
	}
	if exchange == "" || symbol == "" {
		return Params{}, core.Validationf("exchange and symbol are required")
	}

	period, err := core.ParsePeriod(r.Period)
	if err != nil {
		return Params{}, err
	}

	if r.Hours <= 0 || math.IsNaN(r.Hours) || math.IsInf(r.Hours, 0) {
		return Params{}, core.Validationf("hours must be finite and positive")
	}

	if !registry.IsValid(r.Strategy) {
		return Params{}, core.Validationf("unknown strategy %q", r.Strategy)
	}

	var options core.StrategyOptions
	if strings.TrimSpace(r.OptionsJSON) != "" {
		if err := json.Unmarshal([]byte(r.OptionsJSON), &options); err != nil {
			return Params{}, core.Validationf("options are not valid JSON: %v", err)
		}
	}

	capital := r.InitialCapital
	if capital <= 0 {
		capital = 1000
	}

	return Params{
		Exchange:       exchange,
		Symbol:         symbol,
		Period:         period,
		Hours:          r.Hours,
		Strategy:       r.Strategy,
		Options:        options,
		InitialCapital: capital,
		UseAI:          parseTruthy(r.UseAI),
	}, nil
}

// ValidateMulti checks a multi-period request and returns one Params
// per requested period plus the clamped sibling concurrency.
func (r MultiRequest) ValidateMulti(registry *strategy.Registry) ([]Params, int, error) {
	if len(r.Periods) == 0 {
		return nil, 0, core.Validationf("at least one period is required")
	}
	if len(r.Periods) > MaxMultiPeriods {
		return nil, 0, core.Validationf("at most %d periods per submission", MaxMultiPeriods)
	}

	all := make([]Params, 0, len(r.Periods))
	seen := make(map[core.Period]bool)
	for _, raw := range r.Periods {
		req := r.Request
		req.Period = raw
		params, err := req.Validate(registry)
		if err != nil {
			return nil, 0, err
		}
		if seen[params.Period] {
			return nil, 0, core.Validationf("duplicate period %q", raw)
		}
		seen[params.Period] = true
		all = append(all, params)
	}

	concurrency := r.Concurrency
	if concurrency <= 0 {
		concurrency = 2
	}
	if concurrency > MaxMultiPeriods {
		concurrency = MaxMultiPeriods
	}

	return all, concurrency, nil
}

func parseTruthy(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "on", "true", "1":
		return true
	}
	return false
}
