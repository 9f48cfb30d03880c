package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/raykavin/quantcore/pkg/core"
	"github.com/raykavin/quantcore/pkg/logger"
	"github.com/raykavin/quantcore/pkg/strategy"
)

const (
	// tickLag delays each minute tick so the exchange can finalise the
	// just-closed candle.
	tickLag = 8 * time.Second
	// notifyThrottle is the minimum gap between watch-mode
	// notifications for one bot.
	notifyThrottle = 30 * time.Minute
	// housekeepingInterval drives the throttle-map cleanup.
	housekeepingInterval = time.Hour
)

// RecentProvider delivers the fresh candle window a live tick needs.
type RecentProvider interface {
	FetchRecent(ctx context.Context, exchange, symbol string, period core.Period) ([]core.Candle, error)
}

// QuoteProvider returns the current top-of-book for a pair on an
// exchange.
type QuoteProvider interface {
	LastQuote(ctx context.Context, exchange, symbol string) (core.Quote, error)
}

// Scheduler fires every running bot once per its configured period,
// aligned to exchange candle boundaries, and routes emitted signals to
// order execution or watch-only notification.
type Scheduler struct {
	bots     core.BotStore
	registry *strategy.Registry
	executor *strategy.Executor
	candles  RecentProvider
	quotes   QuoteProvider
	orders   core.OrderExecutor
	notifier core.Notifier
	log      logger.Logger

	now func() time.Time

	throttleMu   sync.Mutex
	lastNotified map[int64]time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the wall clock. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates a scheduler.
func New(bots core.BotStore, registry *strategy.Registry, executor *strategy.Executor,
	candles RecentProvider, quotes QuoteProvider, orders core.OrderExecutor,
	notifier core.Notifier, log logger.Logger, opts ...Option) *Scheduler {

	s := &Scheduler{
		bots:         bots,
		registry:     registry,
		executor:     executor,
		candles:      candles,
		quotes:       quotes,
		orders:       orders,
		notifier:     notifier,
		log:          log,
		now:          time.Now,
		lastNotified: make(map[int64]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the tick loop and the housekeeping task. Both stop
// when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go s.loop(ctx)
	go s.housekeeping(ctx)
}

func (s *Scheduler) loop(ctx context.Context) {
	// Align to the next minute boundary plus the candle-finalisation lag.
	now := s.now()
	first := now.Truncate(time.Minute).Add(time.Minute + tickLag)

	timer := time.NewTimer(first.Sub(now))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	// Ticks run in their own goroutine: a slow tick must not shift the
	// schedule, so overlap is allowed. Per-bot work uses fresh strategy
	// instances, which keeps overlapping ticks safe.
	go s.Tick(ctx, s.now())

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			go s.Tick(ctx, s.now())
		}
	}
}

// Tick runs every eligible bot for the minute containing now. Bots are
// processed sequentially; one bot's failure never aborts the tick.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	bots, err := s.bots.RunningBots(ctx)
	if err != nil {
		s.log.WithError(err).Error("loading running bots failed, skipping tick")
		return
	}

	minute := now.Unix() / 60
	for _, bot := range bots {
		if !Eligible(bot, minute) {
			continue
		}
		s.runBot(ctx, bot)
	}
}

// Eligible reports whether the bot's period divides the given
// minute-since-epoch.
func Eligible(bot core.Bot, minute int64) bool {
	periodMin, err := bot.Period.Minutes()
	if err != nil {
		return false
	}
	return minute%int64(periodMin) == 0
}

// runBot evaluates one bot and dispatches its signal. Panics and
// errors are contained to the bot.
func (s *Scheduler) runBot(ctx context.Context, bot core.Bot) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("bot %d panicked: %v", bot.ID, r)
		}
	}()

	log := s.log.WithFields(map[string]any{
		"bot":      bot.ID,
		"pair":     bot.Pair,
		"strategy": bot.StrategyName,
	})

	quote, err := s.quotes.LastQuote(ctx, bot.Exchange, bot.Pair)
	if err != nil {
		log.WithError(err).Warn("quote fetch failed, using candle close")
	}

	candles, err := s.candles.FetchRecent(ctx, bot.Exchange, bot.Pair, bot.Period)
	if err != nil {
		log.WithError(err).Error("candle window unavailable, skipping bot")
		return
	}

	strat, err := s.registry.New(bot.StrategyName, bot.Options)
	if err != nil {
		log.WithError(err).Error("strategy construction failed")
		return
	}

	rows, _, err := s.executor.Run(ctx, strat, bot.Period, candles)
	if err != nil {
		log.WithError(err).Error("strategy run failed")
		return
	}
	if len(rows) == 0 {
		return
	}

	last := rows[len(rows)-1]
	if !last.HasSignal() {
		return
	}

	price := last.Price
	if quote.Bid > 0 {
		price = quote.Bid
	}

	log.Infof("signal %s at %.8f", last.Direction, price)
	message := fmt.Sprintf("%s %s %s @ %.8f", strings.ToUpper(string(last.Direction)),
		bot.StrategyName, bot.Pair, price)

	switch bot.Mode {
	case core.BotModeWatch:
		if s.shouldNotify(bot.ID) {
			s.notifier.Notify(message)
		}
	case core.BotModeTrade:
		s.notifier.Notify(message)
		if err := s.dispatch(ctx, bot, last.Direction); err != nil {
			log.WithError(err).Error("order dispatch failed")
			s.notifier.OnError(err)
		}
	}
}

// dispatch turns a signal into exchange orders.
func (s *Scheduler) dispatch(ctx context.Context, bot core.Bot, dir core.Direction) error {
	switch dir {
	case core.DirectionLong:
		return s.orders.CreateOrderMarketQuote(ctx, core.SideTypeBuy, bot.Pair, bot.Capital)
	case core.DirectionShort:
		return s.orders.CreateOrderMarketQuote(ctx, core.SideTypeSell, bot.Pair, bot.Capital)
	case core.DirectionClose:
		// Settled contracts close the position; spot sells the base.
		if strings.Contains(bot.Pair, ":") {
			return s.orders.CloseFuturesPosition(ctx, bot.Pair)
		}
		balance, err := s.orders.FreeBaseBalance(ctx, bot.Pair)
		if err != nil {
			return err
		}
		if balance <= 0 {
			return nil
		}
		return s.orders.CreateOrderMarket(ctx, core.SideTypeSell, bot.Pair, balance)
	}
	return nil
}

// shouldNotify applies the per-bot watch-mode throttle.
func (s *Scheduler) shouldNotify(botID int64) bool {
	s.throttleMu.Lock()
	defer s.throttleMu.Unlock()

	now := s.now()
	if last, ok := s.lastNotified[botID]; ok && now.Sub(last) < notifyThrottle {
		return false
	}
	s.lastNotified[botID] = now
	return true
}

func (s *Scheduler) housekeeping(ctx context.Context) {
	ticker := time.NewTicker(housekeepingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanupThrottle()
		}
	}
}

func (s *Scheduler) cleanupThrottle() {
	s.throttleMu.Lock()
	defer s.throttleMu.Unlock()

	cutoff := s.now().Add(-time.Hour)
	for id, at := range s.lastNotified {
		if at.Before(cutoff) {
			delete(s.lastNotified, id)
		}
	}
}
