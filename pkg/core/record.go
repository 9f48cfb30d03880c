package core

import (
	"context"
	"time"
)

// RunType distinguishes single submissions from multi-period groups.
type RunType string

const (
	RunTypeSingle RunType = "single"
	RunTypeMulti  RunType = "multi"
)

// BacktestRecord is the persisted form of a qualifying back-test run.
// Fields map one-to-one from BacktestResult.Summary plus identification.
type BacktestRecord struct {
	ID                  int64     `gorm:"primaryKey;autoIncrement"`
	RunGroupID          string    `gorm:"index;size:36"`
	RunType             RunType   `gorm:"size:16"`
	Exchange            string    `gorm:"size:32"`
	Symbol              string    `gorm:"size:32"`
	Period              Period    `gorm:"size:8"`
	Hours               float64   ``
	Strategy            string    `gorm:"size:64"`
	StrategyOptionsJSON string    ``
	InitialCapital      float64   ``
	UseAI               int       ``
	StartTime           time.Time ``
	EndTime             time.Time ``
	TotalTrades         int       ``
	ProfitableTrades    int       ``
	LosingTrades        int       ``
	WinRatePct          float64   ``
	TotalProfitPct      float64   ``
	AverageProfitPct    float64   ``
	MaxDrawdownPct      float64   ``
	SharpeRatio         float64   ``
	CreatedAt           time.Time ``
}

// BacktestQuery filters and pages persisted back-test runs.
// Zero values mean "no constraint".
type BacktestQuery struct {
	Strategy string
	Exchange string
	Symbol   string // substring match
	Period   Period
	RunType  RunType
	UseAI    *bool
	Q        string // substring across strategy/symbol/exchange
	SortBy   string // roi, win_rate, sharpe, max_drawdown, trades, created_at
	SortDir  string // asc, desc
	Page     int    // 1-based
	Limit    int    // 1..200
}

// BacktestRepository stores qualifying back-test runs and answers
// filtered listing queries.
type BacktestRepository interface {
	Create(ctx context.Context, record *BacktestRecord) error
	CreateMany(ctx context.Context, records []*BacktestRecord) error
	FindWithFilters(ctx context.Context, query BacktestQuery) ([]*BacktestRecord, error)
	CountWithFilters(ctx context.Context, query BacktestQuery) (int64, error)
}
