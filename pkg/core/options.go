package core

// StrategyOptions is the schema-agnostic option bag a strategy receives.
// Strategies read it through the typed accessors and never mutate it.
type StrategyOptions map[string]any

// Merge returns a copy of defaults overlaid with the receiver's values.
// Unknown keys are carried along untouched; the strategy ignores them.
func (o StrategyOptions) Merge(defaults StrategyOptions) StrategyOptions {
	merged := make(StrategyOptions, len(defaults)+len(o))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range o {
		merged[k] = v
	}
	return merged
}

// GetInt reads an integer option, tolerating float64 values produced by
// JSON decoding. Returns fallback when absent or not numeric.
func (o StrategyOptions) GetInt(key string, fallback int) int {
	switch v := o[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}

// GetFloat reads a float option. Returns fallback when absent or not numeric.
func (o StrategyOptions) GetFloat(key string, fallback float64) float64 {
	switch v := o[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return fallback
}

// GetString reads a string option.
func (o StrategyOptions) GetString(key, fallback string) string {
	if v, ok := o[key].(string); ok {
		return v
	}
	return fallback
}

// GetBool reads a boolean option.
func (o StrategyOptions) GetBool(key string, fallback bool) bool {
	if v, ok := o[key].(bool); ok {
		return v
	}
	return fallback
}
