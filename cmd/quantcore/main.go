package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/olekukonko/tablewriter"
	"github.com/raykavin/quantcore/pkg/backtest"
	"github.com/raykavin/quantcore/pkg/candle"
	"github.com/raykavin/quantcore/pkg/core"
	"github.com/raykavin/quantcore/pkg/exchange/binance"
	"github.com/raykavin/quantcore/pkg/job"
	"github.com/raykavin/quantcore/pkg/logger"
	zerologadapter "github.com/raykavin/quantcore/pkg/logger/zerolog"
	"github.com/raykavin/quantcore/pkg/notification"
	"github.com/raykavin/quantcore/pkg/scheduler"
	"github.com/raykavin/quantcore/pkg/storage"
	"github.com/raykavin/quantcore/pkg/strategy"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

const dateTimeLayout = "2006-01-02 15:04:05"

// Command line flags
var (
	verbose    bool
	candleFile string
	dbFile     string

	// backtest command flags
	pair        string
	periods     []string
	hours       float64
	strategyArg string
	optionsJSON string
	capital     float64
	useAI       bool
	concurrency int

	// runs command flags
	runsSort  string
	runsDir   string
	runsPage  int
	runsLimit int

	// live command flags
	liveMode      string
	telegramToken string
	telegramUsers []int
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "quantcore",
		Short:   "Strategy evaluation core for market data",
		Version: "1.0.0",
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&candleFile, "candles", "candles.db", "Candle database file")
	rootCmd.PersistentFlags().StringVar(&dbFile, "db", "quantcore.db", "Back-test results database file")

	rootCmd.AddCommand(buildBacktestCmd())
	rootCmd.AddCommand(buildStrategiesCmd())
	rootCmd.AddCommand(buildRunsCmd())
	rootCmd.AddCommand(buildLiveCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() (logger.Logger, error) {
	level := "info"
	if verbose {
		level = "debug"
	}
	return zerologadapter.New(level, dateTimeLayout, true)
}

func buildBacktestCmd() *cobra.Command {
	backtestCmd := &cobra.Command{
		Use:   "backtest",
		Short: "Run a back-test over one or more periods",
		RunE:  runBacktest,
	}

	backtestCmd.Flags().StringVarP(&pair, "pair", "p", "", "Trading pair as exchange.symbol (e.g. binance.BTCUSDT)")
	backtestCmd.Flags().StringSliceVarP(&periods, "period", "t", []string{"1h"}, "Candle periods (e.g. 15m,1h,4h)")
	backtestCmd.Flags().Float64VarP(&hours, "hours", "H", 720, "History window in hours")
	backtestCmd.Flags().StringVarP(&strategyArg, "strategy", "s", "", "Strategy name")
	backtestCmd.Flags().StringVarP(&optionsJSON, "options", "o", "", "Strategy options as JSON")
	backtestCmd.Flags().Float64VarP(&capital, "capital", "c", 1000, "Initial capital in quote currency")
	backtestCmd.Flags().BoolVar(&useAI, "ai", false, "Ask the signal validator before entries")
	backtestCmd.Flags().IntVar(&concurrency, "concurrency", 2, "Sibling timeframes run at once")

	backtestCmd.MarkFlagRequired("pair")
	backtestCmd.MarkFlagRequired("strategy")

	return backtestCmd
}

func runBacktest(cmd *cobra.Command, _ []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := strategy.NewDefaultRegistry()

	request := backtest.MultiRequest{
		Request: backtest.Request{
			Pair:           pair,
			Hours:          hours,
			Strategy:       strategyArg,
			InitialCapital: capital,
			OptionsJSON:    optionsJSON,
			UseAI:          boolToTruthy(useAI),
		},
		Periods:     periods,
		Concurrency: concurrency,
	}
	params, clamped, err := request.ValidateMulti(registry)
	if err != nil {
		return err
	}

	source, err := binance.New(ctx, log)
	if err != nil {
		return err
	}

	candleRepo, err := storage.CandlesFromFile(candleFile)
	if err != nil {
		return err
	}
	defer candleRepo.Close()

	runRepo, err := storage.BacktestsFromSQLite(dbFile)
	if err != nil {
		return err
	}
	defer runRepo.Close()

	candles := candle.NewService(candleRepo, source, log)
	executor := strategy.NewExecutor(log)
	engine := backtest.NewEngine(registry, executor, candles, log)

	jobs, err := job.NewService(engine, runRepo, log, job.Config{})
	if err != nil {
		return err
	}
	jobs.Start(ctx)

	events, unsubscribe := jobs.Subscribe()
	defer unsubscribe()

	submitted, err := jobs.Submit(params, clamped)
	if err != nil {
		return err
	}

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription("backtesting"),
		progressbar.OptionSetWidth(30),
	)

	if err := waitForJob(ctx, submitted.ID, events, bar); err != nil {
		return err
	}

	final, ok := jobs.Get(submitted.ID)
	if !ok {
		return fmt.Errorf("job %s disappeared before it could be reported", submitted.ID)
	}
	reportJob(final)
	return nil
}

// waitForJob drives the progress bar from job events until the job
// reaches a terminal state.
func waitForJob(ctx context.Context, jobID string, events <-chan job.Event,
	bar *progressbar.ProgressBar) error {

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return fmt.Errorf("event stream closed before job %s finished", jobID)
			}
			if event.JobID != jobID {
				continue
			}

			bar.Set(event.Progress)

			switch event.Type {
			case job.EventJobDone:
				bar.Finish()
				fmt.Println()
				return nil
			case job.EventJobFailed:
				bar.Finish()
				fmt.Println()
				if event.Payload != nil {
					return fmt.Errorf("back-test failed: %v", event.Payload["error"])
				}
				return fmt.Errorf("back-test failed")
			}
		}
	}
}

// reportJob prints per-period summaries and, for single runs, the
// trade return histogram.
func reportJob(j job.Job) {
	for _, run := range j.Periods {
		switch run.State {
		case job.PeriodFailed:
			fmt.Printf("period %s failed: %s\n\n", run.Period, run.Error)
		case job.PeriodDone:
			if run.Detail != nil {
				fmt.Print(backtest.RenderSummary(run.Detail))
				fmt.Println()
				printHistogram(run.Detail.Trades)
			}
		}
	}
}

func printHistogram(trades []core.Trade) {
	if len(trades) < 2 {
		return
	}

	returns := make([]float64, len(trades))
	for i, t := range trades {
		returns[i] = t.ProfitPercent
	}

	fmt.Println("trade returns (%):")
	hist := histogram.Hist(9, returns)
	if err := histogram.Fprint(os.Stdout, hist, histogram.Linear(40)); err == nil {
		fmt.Println()
	}
}

func buildStrategiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "strategies",
		Short: "List the registered strategies",
		RunE: func(_ *cobra.Command, _ []string) error {
			registry := strategy.NewDefaultRegistry()

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Name", "Description", "Default Options"})
			for _, info := range registry.Info() {
				table.Append([]string{info.Name, info.Description, formatOptions(info.DefaultOptions)})
			}
			table.Render()
			return nil
		},
	}
}

func formatOptions(options core.StrategyOptions) string {
	parts := make([]string, 0, len(options))
	for key, value := range options {
		parts = append(parts, fmt.Sprintf("%s=%v", key, value))
	}
	return strings.Join(parts, " ")
}

func buildRunsCmd() *cobra.Command {
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "List persisted back-test runs",
		RunE:  runRuns,
	}

	runsCmd.Flags().StringVarP(&strategyArg, "strategy", "s", "", "Filter by strategy name")
	runsCmd.Flags().StringVarP(&pair, "pair", "p", "", "Filter by exchange.symbol")
	runsCmd.Flags().StringVar(&runsSort, "sort", "created_at", "Sort key: roi, win_rate, sharpe, max_drawdown, trades, created_at")
	runsCmd.Flags().StringVar(&runsDir, "dir", "desc", "Sort direction: asc, desc")
	runsCmd.Flags().IntVar(&runsPage, "page", 1, "Result page")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Rows per page")

	return runsCmd
}

func runRuns(cmd *cobra.Command, _ []string) error {
	repo, err := storage.BacktestsFromSQLite(dbFile)
	if err != nil {
		return err
	}
	defer repo.Close()

	query := core.BacktestQuery{
		Strategy: strategyArg,
		SortBy:   runsSort,
		SortDir:  runsDir,
		Page:     runsPage,
		Limit:    runsLimit,
	}
	if pair != "" {
		parts := strings.SplitN(pair, ".", 2)
		if len(parts) == 2 {
			query.Exchange, query.Symbol = parts[0], parts[1]
		} else {
			query.Symbol = pair
		}
	}

	records, err := repo.FindWithFilters(cmd.Context(), query)
	if err != nil {
		return err
	}
	total, err := repo.CountWithFilters(cmd.Context(), query)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Pair", "Period", "Strategy", "Trades", "Win %", "Profit %", "Sharpe", "Drawdown %", "When"})
	for _, r := range records {
		table.Append([]string{
			fmt.Sprintf("%s.%s", r.Exchange, r.Symbol),
			r.Period.String(),
			r.Strategy,
			strconv.Itoa(r.TotalTrades),
			fmt.Sprintf("%.1f", r.WinRatePct),
			fmt.Sprintf("%.4f", r.TotalProfitPct),
			fmt.Sprintf("%.4f", r.SharpeRatio),
			fmt.Sprintf("%.4f", r.MaxDrawdownPct),
			r.CreatedAt.Format(dateTimeLayout),
		})
	}
	table.Render()
	fmt.Printf("%d of %d runs\n", len(records), total)
	return nil
}

func buildLiveCmd() *cobra.Command {
	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "Evaluate one pair live on every closed candle",
		RunE:  runLive,
	}

	liveCmd.Flags().StringVarP(&pair, "pair", "p", "", "Trading pair as exchange.symbol")
	liveCmd.Flags().StringSliceVarP(&periods, "period", "t", []string{"1h"}, "Candle period")
	liveCmd.Flags().StringVarP(&strategyArg, "strategy", "s", "", "Strategy name")
	liveCmd.Flags().StringVarP(&optionsJSON, "options", "o", "", "Strategy options as JSON")
	liveCmd.Flags().Float64VarP(&capital, "capital", "c", 1000, "Order size in quote currency")
	liveCmd.Flags().StringVar(&liveMode, "mode", "watch", "watch notifies only; trade places orders")
	liveCmd.Flags().StringVar(&telegramToken, "telegram-token", "", "Telegram bot token; empty logs notifications instead")
	liveCmd.Flags().IntSliceVar(&telegramUsers, "telegram-users", nil, "Telegram chat IDs allowed to receive and send")

	liveCmd.MarkFlagRequired("pair")
	liveCmd.MarkFlagRequired("strategy")

	return liveCmd
}

func runLive(cmd *cobra.Command, _ []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := strategy.NewDefaultRegistry()

	request := backtest.Request{
		Pair:           pair,
		Period:         periods[0],
		Hours:          1, // live needs only parameter validation
		Strategy:       strategyArg,
		OptionsJSON:    optionsJSON,
		InitialCapital: capital,
	}
	params, err := request.Validate(registry)
	if err != nil {
		return err
	}

	mode := core.BotModeWatch
	if strings.EqualFold(liveMode, string(core.BotModeTrade)) {
		mode = core.BotModeTrade
	}

	var clientOpts []binance.Option
	if mode == core.BotModeTrade {
		key, secret := os.Getenv("BINANCE_API_KEY"), os.Getenv("BINANCE_API_SECRET")
		if key == "" || secret == "" {
			return fmt.Errorf("trade mode needs BINANCE_API_KEY and BINANCE_API_SECRET")
		}
		clientOpts = append(clientOpts, binance.WithCredentials(key, secret))
	}
	client, err := binance.New(ctx, log, clientOpts...)
	if err != nil {
		return err
	}

	candleRepo, err := storage.CandlesFromFile(candleFile)
	if err != nil {
		return err
	}
	defer candleRepo.Close()

	bots := staticBotStore{{
		ID:           1,
		Exchange:     params.Exchange,
		StrategyName: params.Strategy,
		Pair:         params.Symbol,
		Period:       params.Period,
		Capital:      params.InitialCapital,
		Mode:         mode,
		Status:       core.BotStatusRunning,
		Options:      params.Options,
	}}

	candles := candle.NewService(candleRepo, client, log)
	executor := strategy.NewExecutor(log)

	var notifier core.Notifier = notification.NewLog(log)
	if telegramToken != "" {
		if len(telegramUsers) == 0 {
			return fmt.Errorf("--telegram-token needs at least one --telegram-users chat ID")
		}
		telegram, err := notification.NewTelegram(telegramToken, telegramUsers, log)
		if err != nil {
			return err
		}
		go telegram.Start()
		notifier = telegram
	}

	sched := scheduler.New(bots, registry, executor, candles,
		singleExchangeQuotes{client}, client, notifier, log)
	sched.Start(ctx)

	log.Infof("live evaluation of %s started in %s mode", pair, mode)
	<-ctx.Done()
	return nil
}

// staticBotStore serves a fixed bot list, for single-pair CLI runs.
type staticBotStore []core.Bot

func (s staticBotStore) RunningBots(context.Context) ([]core.Bot, error) {
	return s, nil
}

// singleExchangeQuotes adapts one exchange client to the scheduler's
// multi-exchange quote surface.
type singleExchangeQuotes struct {
	source core.MarketDataSource
}

func (q singleExchangeQuotes) LastQuote(ctx context.Context, _, symbol string) (core.Quote, error) {
	return q.source.LastQuote(ctx, symbol)
}

func boolToTruthy(b bool) string {
	if b {
		return "on"
	}
	return ""
}
