package candle

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/StudioSol/set"
	"github.com/jpillora/backoff"
	"github.com/raykavin/quantcore/pkg/core"
	"github.com/raykavin/quantcore/pkg/logger"
	"github.com/samber/lo"
)

const (
	// batchSize is how many bars one pull-through fetch requests.
	batchSize = 500
	// maxBatches caps a single EnsureRange at 100k bars.
	maxBatches = 200
	// coverageThreshold is the persisted share above which no fetch
	// happens at all.
	coverageThreshold = 0.9
)

// Service guarantees a strategy sees a contiguous, time-ordered window
// of completed candles, combining the repository with pull-through
// fetches from the market-data source.
type Service struct {
	repo   core.CandleRepository
	source core.MarketDataSource
	log    logger.Logger

	// watched tracks pairs fed by a streaming subscription; their
	// recent bars come from the repository instead of a REST fetch.
	watchedMu sync.RWMutex
	watched   *set.LinkedHashSetString

	fetchTimeout time.Duration
	pacing       func() *backoff.Backoff
	sleep        func(ctx context.Context, d time.Duration) error
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithFetchTimeout overrides the per-batch market-data timeout.
func WithFetchTimeout(d time.Duration) ServiceOption {
	return func(s *Service) { s.fetchTimeout = d }
}

// WithSleep overrides the inter-batch wait. Used in tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) ServiceOption {
	return func(s *Service) { s.sleep = fn }
}

// NewService creates a candle availability service.
func NewService(repo core.CandleRepository, source core.MarketDataSource,
	log logger.Logger, opts ...ServiceOption) *Service {

	s := &Service{
		repo:         repo,
		source:       source,
		log:          log,
		watched:      set.NewLinkedHashSetString(),
		fetchTimeout: 30 * time.Second,
		pacing: func() *backoff.Backoff {
			// Rate-limit spacing between paginated fetches.
			return &backoff.Backoff{Min: 300 * time.Millisecond, Max: 2 * time.Second, Factor: 1.1}
		},
		sleep: sleepCtx,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Watch marks a pair as covered by a streaming subscription.
func (s *Service) Watch(exchange, symbol string, period core.Period) {
	s.watchedMu.Lock()
	defer s.watchedMu.Unlock()
	s.watched.Add(watchKey(exchange, symbol, period))
}

// Unwatch removes the streaming mark for a pair.
func (s *Service) Unwatch(exchange, symbol string, period core.Period) {
	s.watchedMu.Lock()
	defer s.watchedMu.Unlock()
	s.watched.Remove(watchKey(exchange, symbol, period))
}

func (s *Service) isWatched(key string) bool {
	s.watchedMu.RLock()
	defer s.watchedMu.RUnlock()
	return s.watched.InArray(key)
}

func watchKey(exchange, symbol string, period core.Period) string {
	return fmt.Sprintf("%s--%s--%s", exchange, symbol, period)
}

// EnsureRange returns ascending completed candles covering
// [since, until]. Persisted bars are preferred; missing history is
// paginated in from the market-data source and persisted idempotently.
func (s *Service) EnsureRange(ctx context.Context, exchange, symbol string,
	period core.Period, since, until time.Time) ([]core.Candle, error) {

	periodSec, err := period.Seconds()
	if err != nil {
		return nil, err
	}
	if !until.After(since) {
		return nil, core.Validationf("empty candle range requested")
	}

	persisted, err := s.repo.Candles(ctx, exchange, symbol, period, since, until)
	if err != nil {
		s.log.WithError(err).Warnf("candle lookup failed for %s.%s, fetching instead", exchange, symbol)
		persisted = nil
	}

	expected := until.Unix() - since.Unix()
	expected /= periodSec
	if expected > 0 && float64(len(persisted))/float64(expected) >= coverageThreshold {
		return sortAscending(persisted), nil
	}

	fetched, fetchErr := s.paginate(ctx, exchange, symbol, period, since, until, periodSec)
	if fetchErr != nil && len(fetched) == 0 && len(persisted) == 0 {
		return nil, fmt.Errorf("%w: %v", core.ErrMarketDataUnavailable, fetchErr)
	}

	return mergeWindow(persisted, fetched, since, until), nil
}

// paginate walks the market-data source forward from since in
// batchSize pages. Any per-batch error breaks the loop; the partial
// result is still useful.
func (s *Service) paginate(ctx context.Context, exchange, symbol string,
	period core.Period, since, until time.Time, periodSec int64) ([]core.Candle, error) {

	var fetched []core.Candle
	cursor := since
	pace := s.pacing()

	for batch := 0; batch < maxBatches; batch++ {
		if !cursor.Before(until) {
			break
		}
		if batch > 0 {
			if err := s.sleep(ctx, pace.Duration()); err != nil {
				return fetched, err
			}
		}

		bars, err := s.fetchBatch(ctx, symbol, period, cursor)
		if err != nil {
			s.log.WithError(err).Warnf("candle fetch failed for %s %s at %s", symbol, period, cursor)
			return fetched, err
		}
		if len(bars) == 0 {
			break
		}

		short := len(bars) < batchSize
		lastStart := bars[len(bars)-1].Time

		// The final bar of a batch may still be forming.
		bars = bars[:len(bars)-1]

		for i := range bars {
			bars[i].Exchange = exchange
			bars[i].Period = period
			bars[i].Complete = true
		}
		fetched = append(fetched, bars...)

		if len(bars) > 0 {
			if err := s.repo.SaveCandles(ctx, bars); err != nil {
				s.log.WithError(err).Warn("persisting fetched candles failed")
			}
		}

		if short || !lastStart.Before(until) {
			break
		}
		cursor = lastStart.Add(time.Duration(periodSec) * time.Second)
	}

	return fetched, nil
}

func (s *Service) fetchBatch(ctx context.Context, symbol string,
	period core.Period, since time.Time) ([]core.Candle, error) {

	ctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()
	return s.source.FetchOHLCV(ctx, symbol, period, since, batchSize)
}

// FetchRecent returns the most recent completed bars for a live tick.
// Pairs under a streaming subscription are served from the repository;
// everyone else goes straight to the source. Not for historical windows.
func (s *Service) FetchRecent(ctx context.Context, exchange, symbol string,
	period core.Period) ([]core.Candle, error) {

	duration, err := period.Duration()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	since := now.Add(-time.Duration(batchSize) * duration)

	if s.isWatched(watchKey(exchange, symbol, period)) {
		candles, err := s.repo.Candles(ctx, exchange, symbol, period, since, now)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrPersistence, err)
		}
		return sortAscending(candles), nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	bars, err := s.source.FetchOHLCV(ctx, symbol, period, since, batchSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrMarketDataUnavailable, err)
	}
	if len(bars) > 0 {
		bars = bars[:len(bars)-1]
	}
	for i := range bars {
		bars[i].Exchange = exchange
		bars[i].Period = period
		bars[i].Complete = true
	}
	return sortAscending(bars), nil
}

// mergeWindow combines persisted and fetched bars into one ascending,
// de-duplicated stream clipped to [since, until].
func mergeWindow(persisted, fetched []core.Candle, since, until time.Time) []core.Candle {
	all := append(append([]core.Candle{}, persisted...), fetched...)
	all = lo.UniqBy(all, func(c core.Candle) int64 { return c.Time.Unix() })
	all = lo.Filter(all, func(c core.Candle, _ int) bool {
		return !c.Time.Before(since) && !c.Time.After(until)
	})
	return sortAscending(all)
}

func sortAscending(candles []core.Candle) []core.Candle {
	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Time.Before(candles[j].Time)
	})
	return candles
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
