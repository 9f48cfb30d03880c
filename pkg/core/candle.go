package core

import (
	"time"
)

// Candle represents one completed OHLCV bar, keyed by
// (Exchange, Symbol, Period, Time). Time is the start of the bar.
type Candle struct {
	Exchange string
	Symbol   string
	Period   Period
	Time     time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
	Complete bool
}

// Valid reports whether the bar satisfies the OHLC ordering invariant
// and carries a non-negative volume.
func (c Candle) Valid() bool {
	lo, hi := c.Open, c.Open
	if c.Close < lo {
		lo = c.Close
	}
	if c.Close > hi {
		hi = c.Close
	}
	return c.Low <= lo && hi <= c.High && c.Volume >= 0
}

// Quote is a snapshot of the current top-of-book for a pair.
type Quote struct {
	Bid float64
	Ask float64
}
