package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/raykavin/quantcore/pkg/core"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// sortColumns maps the query sort keys onto real columns. Unknown keys
// fall back to created_at.
var sortColumns = map[string]string{
	"roi":          "total_profit_pct",
	"win_rate":     "win_rate_pct",
	"sharpe":       "sharpe_ratio",
	"max_drawdown": "max_drawdown_pct",
	"trades":       "total_trades",
	"created_at":   "created_at",
}

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// BacktestStorage implements core.BacktestRepository on a SQL database
// via GORM.
type BacktestStorage struct {
	db *gorm.DB
}

// BacktestsFromSQLite opens a SQLite-backed run store.
func BacktestsFromSQLite(file string) (*BacktestStorage, error) {
	return NewBacktestStorage(sqlite.Open(file), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
}

// NewBacktestStorage opens a run store on any GORM dialector.
func NewBacktestStorage(dialect gorm.Dialector, opts ...gorm.Option) (*BacktestStorage, error) {
	db, err := gorm.Open(dialect, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&core.BacktestRecord{}); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &BacktestStorage{db: db}, nil
}

// Close closes the database connection.
func (s *BacktestStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.Close()
}

// Create stores one run record.
func (s *BacktestStorage) Create(ctx context.Context, record *core.BacktestRecord) error {
	if result := s.db.WithContext(ctx).Create(record); result.Error != nil {
		return fmt.Errorf("%w: %v", core.ErrPersistence, result.Error)
	}
	return nil
}

// CreateMany stores a batch of run records in one transaction.
func (s *BacktestStorage) CreateMany(ctx context.Context, records []*core.BacktestRecord) error {
	if len(records) == 0 {
		return nil
	}
	if result := s.db.WithContext(ctx).Create(records); result.Error != nil {
		return fmt.Errorf("%w: %v", core.ErrPersistence, result.Error)
	}
	return nil
}

// FindWithFilters returns one page of records matching the query.
func (s *BacktestStorage) FindWithFilters(ctx context.Context,
	query core.BacktestQuery) ([]*core.BacktestRecord, error) {

	limit, offset := pageBounds(query)

	var records []*core.BacktestRecord
	result := s.filtered(ctx, query).
		Order(orderClause(query)).
		Limit(limit).
		Offset(offset).
		Find(&records)
	if result.Error != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrPersistence, result.Error)
	}

	return records, nil
}

// CountWithFilters returns how many records match the query, ignoring
// paging.
func (s *BacktestStorage) CountWithFilters(ctx context.Context,
	query core.BacktestQuery) (int64, error) {

	var count int64
	result := s.filtered(ctx, query).Model(&core.BacktestRecord{}).Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("%w: %v", core.ErrPersistence, result.Error)
	}
	return count, nil
}

func (s *BacktestStorage) filtered(ctx context.Context, query core.BacktestQuery) *gorm.DB {
	db := s.db.WithContext(ctx).Model(&core.BacktestRecord{})

	if query.Strategy != "" {
		db = db.Where("strategy = ?", query.Strategy)
	}
	if query.Exchange != "" {
		db = db.Where("exchange = ?", query.Exchange)
	}
	if query.Symbol != "" {
		db = db.Where("symbol LIKE ?", "%"+query.Symbol+"%")
	}
	if query.Period != "" {
		db = db.Where("period = ?", query.Period)
	}
	if query.RunType != "" {
		db = db.Where("run_type = ?", query.RunType)
	}
	if query.UseAI != nil {
		useAI := 0
		if *query.UseAI {
			useAI = 1
		}
		db = db.Where("use_ai = ?", useAI)
	}
	if query.Q != "" {
		like := "%" + query.Q + "%"
		db = db.Where("strategy LIKE ? OR symbol LIKE ? OR exchange LIKE ?", like, like, like)
	}

	return db
}

func orderClause(query core.BacktestQuery) string {
	column, ok := sortColumns[query.SortBy]
	if !ok {
		column = "created_at"
	}
	direction := "DESC"
	if query.SortDir == "asc" {
		direction = "ASC"
	}
	return column + " " + direction
}

func pageBounds(query core.BacktestQuery) (limit, offset int) {
	limit = query.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	page := query.Page
	if page <= 0 {
		page = 1
	}
	return limit, (page - 1) * limit
}
