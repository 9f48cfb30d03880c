package binance

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/raykavin/quantcore/pkg/core"
	"github.com/raykavin/quantcore/pkg/logger"
)

// pairInfo carries the order-size constraints of one trading pair.
type pairInfo struct {
	baseAsset  string
	quoteAsset string
	stepSize   float64
}

// Client is the Binance adapter. It serves market data for any caller
// and order execution when constructed with credentials.
type Client struct {
	spot    *binance.Client
	futures *futures.Client
	log     logger.Logger
	authed  bool

	pairs map[string]pairInfo
}

// Option configures a Client.
type Option func(*Client)

// WithCredentials enables the order-execution surface.
func WithCredentials(key, secret string) Option {
	return func(c *Client) {
		c.spot = binance.NewClient(key, secret)
		c.futures = binance.NewFuturesClient(key, secret)
		c.authed = true
	}
}

// WithTestnet points the client at the Binance testnet.
func WithTestnet() Option {
	return func(*Client) {
		binance.UseTestnet = true
		futures.UseTestnet = true
	}
}

// New creates a Binance client and loads the exchange's pair
// constraints.
func New(ctx context.Context, log logger.Logger, opts ...Option) (*Client, error) {
	c := &Client{
		spot:    binance.NewClient("", ""),
		futures: binance.NewFuturesClient("", ""),
		log:     log,
		pairs:   make(map[string]pairInfo),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.spot.NewPingService().Do(ctx); err != nil {
		return nil, fmt.Errorf("binance ping failed: %w", err)
	}

	info, err := c.spot.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance exchange info failed: %w", err)
	}
	for _, symbol := range info.Symbols {
		p := pairInfo{baseAsset: symbol.BaseAsset, quoteAsset: symbol.QuoteAsset}
		for _, filter := range symbol.Filters {
			if filter["filterType"] == string(binance.SymbolFilterTypeLotSize) {
				p.stepSize, _ = strconv.ParseFloat(filter["stepSize"].(string), 64)
			}
		}
		c.pairs[symbol.Symbol] = p
	}

	return c, nil
}

// FetchOHLCV implements core.MarketDataSource. Bars come back
// ascending; the last one may still be forming.
func (c *Client) FetchOHLCV(ctx context.Context, symbol string, period core.Period,
	since time.Time, limit int) ([]core.Candle, error) {

	data, err := c.spot.NewKlinesService().
		Symbol(spotSymbol(symbol)).
		Interval(period.String()).
		StartTime(since.UnixMilli()).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, err
	}

	candles := make([]core.Candle, 0, len(data))
	for _, k := range data {
		candles = append(candles, klineToCandle(symbol, k))
	}
	return candles, nil
}

// LastQuote implements core.MarketDataSource.
func (c *Client) LastQuote(ctx context.Context, symbol string) (core.Quote, error) {
	tickers, err := c.spot.NewListBookTickersService().
		Symbol(spotSymbol(symbol)).
		Do(ctx)
	if err != nil {
		return core.Quote{}, err
	}
	if len(tickers) == 0 {
		return core.Quote{}, fmt.Errorf("no book ticker for %s", symbol)
	}

	bid, _ := strconv.ParseFloat(tickers[0].BidPrice, 64)
	ask, _ := strconv.ParseFloat(tickers[0].AskPrice, 64)
	return core.Quote{Bid: bid, Ask: ask}, nil
}

// CreateOrderMarketQuote buys or sells at market, sized in quote
// currency.
func (c *Client) CreateOrderMarketQuote(ctx context.Context, side core.SideType,
	pair string, quote float64) error {

	if err := c.requireAuth(); err != nil {
		return err
	}

	order, err := c.spot.NewCreateOrderService().
		Symbol(spotSymbol(pair)).
		Type(binance.OrderTypeMarket).
		Side(binance.SideType(side)).
		QuoteOrderQty(strconv.FormatFloat(quote, 'f', 2, 64)).
		NewOrderRespType(binance.NewOrderRespTypeFULL).
		Do(ctx)
	if err != nil {
		return err
	}

	c.log.Infof("binance market %s %s filled, order %d", side, pair, order.OrderID)
	return nil
}

// CreateOrderMarket buys or sells at market, sized in base currency.
func (c *Client) CreateOrderMarket(ctx context.Context, side core.SideType,
	pair string, size float64) error {

	if err := c.requireAuth(); err != nil {
		return err
	}

	order, err := c.spot.NewCreateOrderService().
		Symbol(spotSymbol(pair)).
		Type(binance.OrderTypeMarket).
		Side(binance.SideType(side)).
		Quantity(c.formatQuantity(pair, size)).
		NewOrderRespType(binance.NewOrderRespTypeFULL).
		Do(ctx)
	if err != nil {
		return err
	}

	c.log.Infof("binance market %s %s filled, order %d", side, pair, order.OrderID)
	return nil
}

// CloseFuturesPosition closes the open position of a settled contract
// pair at market, reduce-only.
func (c *Client) CloseFuturesPosition(ctx context.Context, pair string) error {
	if err := c.requireAuth(); err != nil {
		return err
	}

	symbol := spotSymbol(pair)
	positions, err := c.futures.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return err
	}

	for _, position := range positions {
		amount, _ := strconv.ParseFloat(position.PositionAmt, 64)
		if amount == 0 {
			continue
		}

		side := futures.SideTypeSell
		if amount < 0 {
			side = futures.SideTypeBuy
		}

		_, err := c.futures.NewCreateOrderService().
			Symbol(symbol).
			Side(side).
			Type(futures.OrderTypeMarket).
			Quantity(strconv.FormatFloat(math.Abs(amount), 'f', -1, 64)).
			ReduceOnly(true).
			Do(ctx)
		if err != nil {
			return err
		}
		c.log.Infof("binance futures position closed for %s", pair)
	}
	return nil
}

// FreeBaseBalance returns the free base-asset balance for a pair.
func (c *Client) FreeBaseBalance(ctx context.Context, pair string) (float64, error) {
	if err := c.requireAuth(); err != nil {
		return 0, err
	}

	base := c.baseAsset(pair)
	account, err := c.spot.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, err
	}

	for _, balance := range account.Balances {
		if balance.Asset != base {
			continue
		}
		free, err := strconv.ParseFloat(balance.Free, 64)
		if err != nil {
			return 0, err
		}
		return free, nil
	}
	return 0, nil
}

func (c *Client) requireAuth() error {
	if !c.authed {
		return fmt.Errorf("binance client has no credentials")
	}
	return nil
}

// formatQuantity truncates a quantity to the pair's lot step size.
func (c *Client) formatQuantity(pair string, value float64) string {
	info, ok := c.pairs[spotSymbol(pair)]
	if !ok || info.stepSize <= 0 {
		return strconv.FormatFloat(value, 'f', 8, 64)
	}

	precision := int(math.Round(-math.Log10(info.stepSize)))
	if precision < 0 {
		precision = 0
	}
	truncated := math.Floor(value/info.stepSize) * info.stepSize
	return strconv.FormatFloat(truncated, 'f', precision, 64)
}

// baseAsset resolves the base currency of a pair, preferring exchange
// metadata over suffix guessing.
func (c *Client) baseAsset(pair string) string {
	symbol := spotSymbol(pair)
	if info, ok := c.pairs[symbol]; ok {
		return info.baseAsset
	}
	for _, quote := range []string{"USDT", "USDC", "BUSD", "BTC", "ETH", "BNB"} {
		if strings.HasSuffix(symbol, quote) && len(symbol) > len(quote) {
			return strings.TrimSuffix(symbol, quote)
		}
	}
	return symbol
}

// spotSymbol strips the settlement suffix of contract pairs
// ("BTCUSDT:USDT" becomes "BTCUSDT").
func spotSymbol(pair string) string {
	if i := strings.Index(pair, ":"); i >= 0 {
		return pair[:i]
	}
	return pair
}

func klineToCandle(symbol string, k *binance.Kline) core.Candle {
	candle := core.Candle{
		Symbol: symbol,
		Time:   time.Unix(0, k.OpenTime*int64(time.Millisecond)).UTC(),
	}
	candle.Open, _ = strconv.ParseFloat(k.Open, 64)
	candle.High, _ = strconv.ParseFloat(k.High, 64)
	candle.Low, _ = strconv.ParseFloat(k.Low, 64)
	candle.Close, _ = strconv.ParseFloat(k.Close, 64)
	candle.Volume, _ = strconv.ParseFloat(k.Volume, 64)
	return candle
}
