package core

import "time"

// Direction is a per-candle trading decision.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
	DirectionClose Direction = "close"
)

// IsEntry reports whether the direction opens a position.
func (d Direction) IsEntry() bool {
	return d == DirectionLong || d == DirectionShort
}

// Signal collects the decision a strategy takes for a single candle.
// At most one entry decision is recorded per candle; an entry matching
// the previous open direction is a no-op, and an entry after Close in
// the same candle is allowed.
type Signal struct {
	last   Direction
	entry  Direction
	closed bool
	debug  map[string]any
}

// NewSignal returns a collector primed with the last open entry
// direction, or empty when flat.
func NewSignal(last Direction) *Signal {
	return &Signal{last: last}
}

// Long records a long entry decision.
func (s *Signal) Long() {
	s.enter(DirectionLong)
}

// Short records a short entry decision.
func (s *Signal) Short() {
	s.enter(DirectionShort)
}

// Close records a close decision.
func (s *Signal) Close() {
	if s.entry == "" {
		s.closed = true
	}
}

func (s *Signal) enter(dir Direction) {
	if s.entry != "" {
		return
	}
	if !s.closed && s.last == dir {
		return
	}
	s.entry = dir
}

// Direction returns the final decision for the candle, or false when
// the strategy stayed silent.
func (s *Signal) Direction() (Direction, bool) {
	if s.entry != "" {
		return s.entry, true
	}
	if s.closed {
		return DirectionClose, true
	}
	return "", false
}

// SetDebug attaches an arbitrary debug value to the candle's row.
func (s *Signal) SetDebug(key string, value any) {
	if s.debug == nil {
		s.debug = make(map[string]any)
	}
	s.debug[key] = value
}

// Debug returns the collected debug values, possibly nil.
func (s *Signal) Debug() map[string]any { return s.debug }

// Confirmation states recorded on a row when the external validator
// was consulted for an entry.
const (
	ConfirmationApproved = "approved"
	ConfirmationRejected = "rejected"
)

// SignalRow is the executor's per-candle output.
type SignalRow struct {
	Time           time.Time      `json:"time"`
	Price          float64        `json:"price"`
	Direction      Direction      `json:"signal,omitempty"`
	Debug          map[string]any `json:"debug,omitempty"`
	AIConfirmation string         `json:"ai_confirmation,omitempty"`
}

// HasSignal reports whether the row carries a decision.
func (r SignalRow) HasSignal() bool { return r.Direction != "" }
