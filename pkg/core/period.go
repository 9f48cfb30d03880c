package core

import (
	"fmt"
	"time"
)

// Period is a candle interval identifier such as "1m", "1h" or "1d".
type Period string

// Supported candle periods.
const (
	Period1m  Period = "1m"
	Period3m  Period = "3m"
	Period5m  Period = "5m"
	Period15m Period = "15m"
	Period30m Period = "30m"
	Period1h  Period = "1h"
	Period4h  Period = "4h"
	Period1d  Period = "1d"
)

var periodMinutes = map[Period]int{
	Period1m:  1,
	Period3m:  3,
	Period5m:  5,
	Period15m: 15,
	Period30m: 30,
	Period1h:  60,
	Period4h:  240,
	Period1d:  1440,
}

// Periods lists every supported period in ascending duration order.
func Periods() []Period {
	return []Period{Period1m, Period3m, Period5m, Period15m, Period30m, Period1h, Period4h, Period1d}
}

// IsValid reports whether the period is one of the supported intervals.
func (p Period) IsValid() bool {
	_, ok := periodMinutes[p]
	return ok
}

// Minutes returns the period length in minutes.
func (p Period) Minutes() (int, error) {
	m, ok := periodMinutes[p]
	if !ok {
		return 0, Validationf("unknown period %q", p)
	}
	return m, nil
}

// Seconds returns the period length in seconds.
func (p Period) Seconds() (int64, error) {
	m, err := p.Minutes()
	if err != nil {
		return 0, err
	}
	return int64(m) * 60, nil
}

// Duration returns the period length as a time.Duration.
func (p Period) Duration() (time.Duration, error) {
	m, err := p.Minutes()
	if err != nil {
		return 0, err
	}
	return time.Duration(m) * time.Minute, nil
}

func (p Period) String() string { return string(p) }

// ParsePeriod validates a raw period string.
func ParsePeriod(raw string) (Period, error) {
	p := Period(raw)
	if !p.IsValid() {
		return "", fmt.Errorf("%w: unknown period %q", ErrValidation, raw)
	}
	return p, nil
}
