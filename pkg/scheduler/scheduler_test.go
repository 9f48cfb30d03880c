package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/raykavin/quantcore/pkg/core"
	"github.com/raykavin/quantcore/pkg/indicator"
	"github.com/raykavin/quantcore/pkg/logger"
	"github.com/raykavin/quantcore/pkg/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticBots []core.Bot

func (s staticBots) RunningBots(context.Context) ([]core.Bot, error) { return s, nil }

type fakeCandles struct {
	candles []core.Candle
	calls   int
}

func (f *fakeCandles) FetchRecent(context.Context, string, string, core.Period) ([]core.Candle, error) {
	f.calls++
	return f.candles, nil
}

type fakeQuotes struct{ quote core.Quote }

func (f *fakeQuotes) LastQuote(context.Context, string, string) (core.Quote, error) {
	return f.quote, nil
}

type orderCall struct {
	kind string
	side core.SideType
	pair string
	size float64
}

type fakeOrders struct {
	mu      sync.Mutex
	calls   []orderCall
	balance float64
}

func (f *fakeOrders) CreateOrderMarketQuote(_ context.Context, side core.SideType, pair string, quote float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, orderCall{"market_quote", side, pair, quote})
	return nil
}

func (f *fakeOrders) CreateOrderMarket(_ context.Context, side core.SideType, pair string, size float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, orderCall{"market", side, pair, size})
	return nil
}

func (f *fakeOrders) CloseFuturesPosition(_ context.Context, pair string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, orderCall{kind: "close_futures", pair: pair})
	return nil
}

func (f *fakeOrders) FreeBaseBalance(context.Context, string) (float64, error) {
	return f.balance, nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
	errors   []error
}

func (f *fakeNotifier) Notify(message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
}

func (f *fakeNotifier) OnError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, err)
}

// lastBarStrategy emits a fixed direction on the final candle only.
type lastBarStrategy struct {
	direction core.Direction
	total     int
}

func (s *lastBarStrategy) Description() string                  { return "last bar test strategy" }
func (s *lastBarStrategy) DefaultOptions() core.StrategyOptions { return nil }
func (s *lastBarStrategy) DefineIndicators(core.Period) map[string]indicator.Definition {
	return nil
}

func (s *lastBarStrategy) Execute(_ context.Context, eval *strategy.Eval, sig *core.Signal) error {
	if eval.Index() != s.total-1 {
		return nil
	}
	switch s.direction {
	case core.DirectionLong:
		sig.Long()
	case core.DirectionShort:
		sig.Short()
	case core.DirectionClose:
		sig.Close()
	}
	return nil
}

func tickCandles(n int) []core.Candle {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]core.Candle, n)
	for i := 0; i < n; i++ {
		candles[i] = core.Candle{
			Symbol: "BTCUSDT",
			Time:   start.Add(time.Duration(i) * time.Hour),
			Open:   100, High: 101, Low: 99, Close: 100, Volume: 1,
		}
	}
	return candles
}

func testBot(mode core.BotMode, pair string) core.Bot {
	return core.Bot{
		ID:           1,
		Exchange:     "binance",
		StrategyName: "last_bar",
		Pair:         pair,
		Period:       core.Period1h,
		Capital:      500,
		Mode:         mode,
		Status:       core.BotStatusRunning,
	}
}

func newTestScheduler(bots staticBots, direction core.Direction, total int,
	orders *fakeOrders, notifier *fakeNotifier, now time.Time) (*Scheduler, *fakeCandles) {

	registry := strategy.NewRegistry()
	registry.Register("last_bar", func(core.StrategyOptions) (strategy.Strategy, error) {
		return &lastBarStrategy{direction: direction, total: total}, nil
	})

	candles := &fakeCandles{candles: tickCandles(total)}
	sched := New(bots, registry, strategy.NewExecutor(logger.Nop()), candles,
		&fakeQuotes{quote: core.Quote{Bid: 100.5, Ask: 100.6}}, orders, notifier,
		logger.Nop(), WithClock(func() time.Time { return now }))
	return sched, candles
}

func TestEligibleDivisibility(t *testing.T) {
	bot := core.Bot{Period: core.Period1h}

	onBoundary := time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)
	assert.True(t, Eligible(bot, onBoundary.Unix()/60))

	offBoundary := onBoundary.Add(17 * time.Minute)
	assert.False(t, Eligible(bot, offBoundary.Unix()/60))

	every5 := core.Bot{Period: core.Period5m}
	assert.True(t, Eligible(every5, onBoundary.Add(25*time.Minute).Unix()/60))
	assert.False(t, Eligible(every5, onBoundary.Add(26*time.Minute).Unix()/60))
}

func TestTickTradeModeDispatchesEntry(t *testing.T) {
	orders := &fakeOrders{}
	notifier := &fakeNotifier{}
	now := time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)

	bots := staticBots{testBot(core.BotModeTrade, "BTCUSDT")}
	sched, candles := newTestScheduler(bots, core.DirectionLong, 30, orders, notifier, now)

	sched.Tick(context.Background(), now)

	assert.Equal(t, 1, candles.calls)
	require.Len(t, orders.calls, 1)
	assert.Equal(t, "market_quote", orders.calls[0].kind)
	assert.Equal(t, core.SideTypeBuy, orders.calls[0].side)
	assert.Equal(t, 500.0, orders.calls[0].size)
	assert.Len(t, notifier.messages, 1)
}

func TestTickSkipsIneligibleBots(t *testing.T) {
	orders := &fakeOrders{}
	notifier := &fakeNotifier{}
	offBoundary := time.Date(2024, 3, 1, 14, 17, 0, 0, time.UTC)

	bots := staticBots{testBot(core.BotModeTrade, "BTCUSDT")}
	sched, candles := newTestScheduler(bots, core.DirectionLong, 30, orders, notifier, offBoundary)

	sched.Tick(context.Background(), offBoundary)

	assert.Zero(t, candles.calls)
	assert.Empty(t, orders.calls)
}

func TestTickCloseSellsSpotBalance(t *testing.T) {
	orders := &fakeOrders{balance: 0.25}
	notifier := &fakeNotifier{}
	now := time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)

	bots := staticBots{testBot(core.BotModeTrade, "BTCUSDT")}
	sched, _ := newTestScheduler(bots, core.DirectionClose, 30, orders, notifier, now)

	sched.Tick(context.Background(), now)

	require.Len(t, orders.calls, 1)
	assert.Equal(t, "market", orders.calls[0].kind)
	assert.Equal(t, core.SideTypeSell, orders.calls[0].side)
	assert.Equal(t, 0.25, orders.calls[0].size)
}

func TestTickCloseUsesFuturesForContractPairs(t *testing.T) {
	orders := &fakeOrders{}
	notifier := &fakeNotifier{}
	now := time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)

	bots := staticBots{testBot(core.BotModeTrade, "BTCUSDT:USDT")}
	sched, _ := newTestScheduler(bots, core.DirectionClose, 30, orders, notifier, now)

	sched.Tick(context.Background(), now)

	require.Len(t, orders.calls, 1)
	assert.Equal(t, "close_futures", orders.calls[0].kind)
	assert.Equal(t, "BTCUSDT:USDT", orders.calls[0].pair)
}

func TestWatchModeNotifiesWithoutOrders(t *testing.T) {
	orders := &fakeOrders{}
	notifier := &fakeNotifier{}
	now := time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)

	bots := staticBots{testBot(core.BotModeWatch, "BTCUSDT")}
	sched, _ := newTestScheduler(bots, core.DirectionShort, 30, orders, notifier, now)

	sched.Tick(context.Background(), now)

	assert.Empty(t, orders.calls)
	require.Len(t, notifier.messages, 1)
	assert.Contains(t, notifier.messages[0], "SHORT")
}

func TestWatchModeThrottlesRepeatNotifications(t *testing.T) {
	orders := &fakeOrders{}
	notifier := &fakeNotifier{}
	now := time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)

	bots := staticBots{testBot(core.BotModeWatch, "BTCUSDT")}
	sched, _ := newTestScheduler(bots, core.DirectionLong, 30, orders, notifier, now)

	sched.Tick(context.Background(), now)
	sched.Tick(context.Background(), now.Add(time.Hour)) // same clock, within throttle
	require.Len(t, notifier.messages, 1)
}

func TestWatchThrottleCleanup(t *testing.T) {
	now := time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)
	clock := now
	sched := New(nil, nil, nil, nil, nil, nil, nil, logger.Nop(),
		WithClock(func() time.Time { return clock }))

	require.True(t, sched.shouldNotify(7))
	require.False(t, sched.shouldNotify(7))

	clock = now.Add(2 * time.Hour)
	sched.cleanupThrottle()
	assert.True(t, sched.shouldNotify(7))
}
