package indicator

import (
	"math"

	"github.com/raykavin/quantcore/pkg/core"
)

// Value is one aligned indicator output: a scalar, a structured record,
// or the undefined sentinel emitted during warm-up.
type Value struct {
	Valid  bool
	Num    float64
	Fields map[string]float64
}

// Undefined returns the sentinel for indices where the indicator has no
// output yet.
func Undefined() Value { return Value{} }

// Scalar wraps a single number. NaN and Inf collapse to undefined.
func Scalar(v float64) Value {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Undefined()
	}
	return Value{Valid: true, Num: v}
}

// Record wraps a structured output. Non-finite fields are dropped; a
// record with no remaining fields is undefined.
func Record(fields map[string]float64) Value {
	clean := make(map[string]float64, len(fields))
	for k, v := range fields {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		clean[k] = v
	}
	if len(clean) == 0 {
		return Undefined()
	}
	return Value{Valid: true, Fields: clean}
}

// Field reads a named component of a structured value.
func (v Value) Field(name string) (float64, bool) {
	if !v.Valid || v.Fields == nil {
		return 0, false
	}
	f, ok := v.Fields[name]
	return f, ok
}

// Series is a vector of values aligned one-to-one with the candle
// history it was built from.
type Series []Value

// ValidAt reports whether the value at index i is defined.
func (s Series) ValidAt(i int) bool {
	return i >= 0 && i < len(s) && s[i].Valid
}

// NumAt returns the scalar at index i, or NaN when undefined.
func (s Series) NumAt(i int) float64 {
	if !s.ValidAt(i) {
		return math.NaN()
	}
	return s[i].Num
}

// FieldAt returns a named component at index i.
func (s Series) FieldAt(i int, name string) (float64, bool) {
	if i < 0 || i >= len(s) {
		return 0, false
	}
	return s[i].Field(name)
}

// Nums extracts the scalar stream as a core.Series, NaN where
// undefined. Strategies use it for crossover checks and windowing.
func (s Series) Nums() core.Series[float64] {
	out := make(core.Series[float64], len(s))
	for i, v := range s {
		if v.Valid {
			out[i] = v.Num
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}
