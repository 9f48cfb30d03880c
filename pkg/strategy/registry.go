package strategy

import (
	"sort"
	"sync"

	"github.com/raykavin/quantcore/pkg/core"
)

// Factory builds a fresh strategy instance for one run.
type Factory func(opts core.StrategyOptions) (Strategy, error)

// Info describes a registered strategy for discovery endpoints.
type Info struct {
	Name           string               `json:"name"`
	Description    string               `json:"description"`
	DefaultOptions core.StrategyOptions `json:"default_options"`
}

// Registry maps strategy names to constructors. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// NewDefaultRegistry returns a registry with every built-in strategy
// registered.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("rsi_reversal", NewRSIReversal)
	r.Register("ema_cross", NewEMACross)
	r.Register("macd_trend", NewMACDTrend)
	r.Register("bb_meanrev", NewBollingerMeanRev)
	return r
}

// Register adds or replaces a named constructor.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// IsValid reports whether name is registered.
func (r *Registry) IsValid(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// New constructs a fresh strategy instance with the given options
// merged over the strategy's defaults.
func (r *Registry) New(name string, opts core.StrategyOptions) (Strategy, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, core.Validationf("unknown strategy %q", name)
	}
	return factory(opts)
}

// Names lists registered strategy names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Info returns discovery metadata for every registered strategy.
func (r *Registry) Info() []Info {
	infos := make([]Info, 0)
	for _, name := range r.Names() {
		s, err := r.New(name, nil)
		if err != nil {
			continue
		}
		infos = append(infos, Info{
			Name:           name,
			Description:    s.Description(),
			DefaultOptions: s.DefaultOptions(),
		})
	}
	return infos
}
