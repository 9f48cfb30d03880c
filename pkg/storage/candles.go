package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/raykavin/quantcore/pkg/core"
	"github.com/tidwall/buntdb"
)

// CandleStorage implements core.CandleRepository on BuntDB. Rows are
// JSON candles under zero-padded time keys, so key order is time order
// and rewrites of the same bar are idempotent.
type CandleStorage struct {
	db *buntdb.DB
}

// CandlesFromMemory creates an in-memory candle store.
func CandlesFromMemory() (*CandleStorage, error) {
	return NewCandleStorage(":memory:")
}

// CandlesFromFile creates a file-backed candle store.
func CandlesFromFile(file string) (*CandleStorage, error) {
	return NewCandleStorage(file)
}

// NewCandleStorage opens a BuntDB candle store.
func NewCandleStorage(sourceFile string) (*CandleStorage, error) {
	db, err := buntdb.Open(sourceFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open buntdb: %w", err)
	}
	return &CandleStorage{db: db}, nil
}

// Close closes the underlying database.
func (s *CandleStorage) Close() error {
	return s.db.Close()
}

// candleKey keeps lexicographic and chronological order aligned.
func candleKey(exchange, symbol string, period core.Period, at time.Time) string {
	return fmt.Sprintf("candle:%s:%s:%s:%020d", exchange, symbol, period, at.Unix())
}

// SaveCandles stores the candles, overwriting bars with the same
// identity.
func (s *CandleStorage) SaveCandles(_ context.Context, candles []core.Candle) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		for _, candle := range candles {
			content, err := json.Marshal(candle)
			if err != nil {
				return fmt.Errorf("failed to marshal candle: %w", err)
			}

			key := candleKey(candle.Exchange, candle.Symbol, candle.Period, candle.Time)
			if _, _, err := tx.Set(key, string(content), nil); err != nil {
				return fmt.Errorf("failed to store candle: %w", err)
			}
		}
		return nil
	})
}

// Candles returns the persisted bars of one stream inside
// [since, until], ascending.
func (s *CandleStorage) Candles(_ context.Context, exchange, symbol string,
	period core.Period, since, until time.Time) ([]core.Candle, error) {

	start := candleKey(exchange, symbol, period, since)
	// AscendRange excludes the end key; one second past until keeps the
	// boundary bar included.
	end := candleKey(exchange, symbol, period, until.Add(time.Second))

	candles := make([]core.Candle, 0)
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendRange("", start, end, func(_, value string) bool {
			var candle core.Candle
			if err := json.Unmarshal([]byte(value), &candle); err != nil {
				return true
			}
			candles = append(candles, candle)
			return true
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read candles: %w", err)
	}

	return candles, nil
}
