package core

import (
	"context"
	"time"
)

// SideType is the order side sent to an exchange.
type SideType string

const (
	SideTypeBuy  SideType = "BUY"
	SideTypeSell SideType = "SELL"
)

// MarketDataSource delivers raw candles and quotes from an exchange.
// Implementations live behind this interface; the core never touches an
// exchange SDK directly.
type MarketDataSource interface {
	// FetchOHLCV returns up to limit bars starting at since, ascending.
	// The last bar may still be forming; callers drop it.
	FetchOHLCV(ctx context.Context, symbol string, period Period, since time.Time, limit int) ([]Candle, error)
	LastQuote(ctx context.Context, symbol string) (Quote, error)
}

// CandleRepository persists candle history. Writes are idempotent on
// the (exchange, symbol, period, time) key.
type CandleRepository interface {
	Candles(ctx context.Context, exchange, symbol string, period Period, since, until time.Time) ([]Candle, error)
	SaveCandles(ctx context.Context, candles []Candle) error
}

// OrderExecutor is the narrow surface live signals are dispatched to.
type OrderExecutor interface {
	CreateOrderMarketQuote(ctx context.Context, side SideType, pair string, quote float64) error
	CreateOrderMarket(ctx context.Context, side SideType, pair string, size float64) error
	// CloseFuturesPosition closes the open position of a settled
	// contract pair (symbol contains ":") at market.
	CloseFuturesPosition(ctx context.Context, pair string) error
	// FreeBaseBalance returns the free base-currency balance for a pair.
	FreeBaseBalance(ctx context.Context, pair string) (float64, error)
}

// Notifier receives human-readable updates from the core.
type Notifier interface {
	Notify(message string)
	OnError(err error)
}

// FeaturePacket is the evidence handed to the external signal
// validator before an entry is committed.
type FeaturePacket struct {
	Symbol     string             `json:"symbol"`
	Side       Direction          `json:"side"`
	Candles    []Candle           `json:"candles"`
	Indicators map[string]float64 `json:"indicators"`
}

// Validation is the validator's verdict on an entry signal.
type Validation struct {
	Confirmed bool   `json:"confirmed"`
	Rationale string `json:"rationale,omitempty"`
}

// SignalValidator may reject an entry signal before it becomes a trade.
// Failures and timeouts count as not confirmed, never as run failures.
type SignalValidator interface {
	Validate(ctx context.Context, packet FeaturePacket) (Validation, error)
}

// BotStore exposes the externally-owned bot configuration to the
// scheduler.
type BotStore interface {
	RunningBots(ctx context.Context) ([]Bot, error)
}
