package core

import (
	"golang.org/x/exp/constraints"
)

// Series is an ordered stream of values, oldest first. Price history
// and indicator lines reach strategies in this shape.
type Series[T constraints.Ordered] []T

// Values exposes the raw slice.
func (s Series[T]) Values() []T {
	return s
}

// Length returns how many values the series holds.
func (s Series[T]) Length() int {
	return len(s)
}

// Last returns the value position steps back from the end. Last(0) is
// the newest value.
func (s Series[T]) Last(position int) T {
	return s[len(s)-1-position]
}

// LastValues returns the newest size values, or the whole series when
// it holds fewer.
func (s Series[T]) LastValues(size int) Series[T] {
	if l := len(s); l > size {
		return s[l-size:]
	}
	return s
}

// Crossover reports whether the series moved above ref on the newest
// value after sitting at or below it on the previous one.
func (s Series[T]) Crossover(ref Series[T]) bool {
	return s.Last(0) > ref.Last(0) && s.Last(1) <= ref.Last(1)
}

// Crossunder reports whether the series dropped to or below ref on the
// newest value after sitting above it on the previous one.
func (s Series[T]) Crossunder(ref Series[T]) bool {
	return s.Last(0) <= ref.Last(0) && s.Last(1) > ref.Last(1)
}

// Cross reports a crossing in either direction on the newest value.
func (s Series[T]) Cross(ref Series[T]) bool {
	return s.Crossover(ref) || s.Crossunder(ref)
}
