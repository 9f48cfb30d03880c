package job

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raykavin/quantcore/pkg/backtest"
	"github.com/raykavin/quantcore/pkg/core"
	"github.com/raykavin/quantcore/pkg/logger"
	str2duration "github.com/xhit/go-str2duration/v2"
)

const (
	// persistWinRatePct gates which finished runs reach the database.
	persistWinRatePct = 60.0
	// reaperInterval is how often expired jobs are swept.
	reaperInterval = 15 * time.Minute
	// subscriberBuffer bounds each subscriber channel. Slow consumers
	// lose events instead of blocking the runner.
	subscriberBuffer = 64
)

// Runner executes one back-test. Satisfied by *backtest.Engine.
type Runner interface {
	Run(ctx context.Context, params backtest.Params) (*core.BacktestResult, error)
}

// Config tunes the job service. Zero values take defaults.
type Config struct {
	// QueueSize bounds pending submissions. Default 16.
	QueueSize int
	// MaxConcurrentJobs is how many jobs run at once. Default 1.
	MaxConcurrentJobs int
	// ResultTTL is how long finished jobs stay readable, in
	// str2duration form ("6h", "1d12h"). Default 6h.
	ResultTTL string
}

// Service runs back-test jobs asynchronously: a bounded submission
// queue, a small worker pool, an in-memory job table with TTL expiry,
// and a broadcast stream of lifecycle events.
type Service struct {
	runner Runner
	repo   core.BacktestRepository
	log    logger.Logger

	queue chan *Job
	ttl   time.Duration
	now   func() time.Time

	mu   sync.RWMutex
	jobs map[string]*Job

	subMu   sync.Mutex
	subs    map[int64]chan Event
	nextSub int64

	workers int
	wg      sync.WaitGroup
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock overrides the wall clock. Used in tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService creates a job service. repo may be nil when persistence is
// disabled; qualifying runs are then only kept in memory.
func NewService(runner Runner, repo core.BacktestRepository, log logger.Logger,
	cfg Config, opts ...ServiceOption) (*Service, error) {

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 16
	}
	workers := cfg.MaxConcurrentJobs
	if workers <= 0 {
		workers = 1
	}

	ttl := 6 * time.Hour
	if cfg.ResultTTL != "" {
		parsed, err := str2duration.ParseDuration(cfg.ResultTTL)
		if err != nil {
			return nil, core.Validationf("result TTL %q is not a duration: %v", cfg.ResultTTL, err)
		}
		ttl = parsed
	}

	s := &Service{
		runner:  runner,
		repo:    repo,
		log:     log,
		queue:   make(chan *Job, queueSize),
		ttl:     ttl,
		now:     time.Now,
		jobs:    make(map[string]*Job),
		subs:    make(map[int64]chan Event),
		workers: workers,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start launches the worker pool and the expiry reaper. Both stop when
// ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}
	go s.reaper(ctx)
}

// Wait blocks until all workers have drained after ctx cancellation.
func (s *Service) Wait() { s.wg.Wait() }

// Submit enqueues a job over the given parameter set. One Params means
// a single run; several mean a multi-period group sharing a
// run_group_id. A full queue rejects the submission.
func (s *Service) Submit(params []backtest.Params, concurrency int) (Job, error) {
	if len(params) == 0 {
		return Job{}, core.Validationf("a job needs at least one run")
	}

	runType := core.RunTypeSingle
	if len(params) > 1 {
		runType = core.RunTypeMulti
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	j := &Job{
		ID:          uuid.NewString(),
		RunGroupID:  uuid.NewString(),
		RunType:     runType,
		Status:      StatusQueued,
		Phase:       PhaseQueued,
		Params:      params,
		Concurrency: concurrency,
		CreatedAt:   s.now(),
	}
	for _, p := range params {
		j.Periods = append(j.Periods, &PeriodRun{Period: p.Period, State: PeriodPending})
	}

	s.mu.Lock()
	s.jobs[j.ID] = j
	s.mu.Unlock()

	select {
	case s.queue <- j:
		return j.snapshot(), nil
	default:
		s.mu.Lock()
		delete(s.jobs, j.ID)
		s.mu.Unlock()
		return Job{}, core.Validationf("job queue is full, try again later")
	}
}

// Get returns a snapshot of one job.
func (s *Service) Get(id string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return j.snapshot(), true
}

// Jobs lists snapshots of all known jobs, newest first.
func (s *Service) Jobs() []Job {
	s.mu.RLock()
	all := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		all = append(all, j.snapshot())
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, k int) bool { return all[i].CreatedAt.After(all[k].CreatedAt) })
	return all
}

// Subscribe registers an event listener. The returned cancel func must
// be called to release the subscription.
func (s *Service) Subscribe() (<-chan Event, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan Event, subscriberBuffer)
	s.subs[id] = ch

	cancel := func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

func (s *Service) publish(event Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

func (s *Service) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			s.run(ctx, j)
		}
	}
}

// run drives one job from queued to a terminal state.
func (s *Service) run(ctx context.Context, j *Job) {
	s.update(j, func() {
		j.Status = StatusRunning
		j.StartedAt = s.now()
		j.Phase = PhaseRunning
		j.Progress = 5
	})
	s.publish(Event{JobID: j.ID, Type: EventJobStarted, Progress: 5, Phase: PhaseRunning})

	results := s.runPeriods(ctx, j)

	succeeded := 0
	for _, r := range results {
		if r != nil {
			succeeded++
		}
	}
	if succeeded == 0 {
		s.finish(j, StatusFailed, "all timeframes failed")
		return
	}

	s.update(j, func() {
		j.Phase = PhaseSaving
		j.Progress = 92
	})
	s.publish(Event{JobID: j.ID, Type: EventJobProgress, Progress: 92, Phase: PhaseSaving})

	s.persist(ctx, j, results)

	if j.RunType == core.RunTypeSingle {
		s.update(j, func() { j.Result = results[0] })
	}
	s.finish(j, StatusDone, "")
}

// runPeriods executes every timeframe of the job, up to j.Concurrency
// at a time. The returned slice is aligned with j.Params; failed
// timeframes leave a nil slot.
func (s *Service) runPeriods(ctx context.Context, j *Job) []*core.BacktestResult {
	total := len(j.Params)
	results := make([]*core.BacktestResult, total)

	sem := make(chan struct{}, j.Concurrency)
	var wg sync.WaitGroup
	var completed int64
	var countMu sync.Mutex

	for i := range j.Params {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			params := j.Params[idx]
			period := params.Period.String()

			var progressNow int
			s.update(j, func() {
				j.Periods[idx].State = PeriodRunning
				progressNow = j.Progress
			})
			s.publish(Event{JobID: j.ID, Type: EventTimeframeStarted, Period: period,
				Progress: progressNow, Phase: PhaseRunning})

			result, err := s.runner.Run(ctx, params)

			countMu.Lock()
			completed++
			progress := 5 + int(float64(completed)/float64(total)*85)
			countMu.Unlock()

			if err != nil {
				s.log.WithError(err).Warnf("timeframe %s of job %s failed", period, j.ID)
				s.update(j, func() {
					j.Periods[idx].State = PeriodFailed
					j.Periods[idx].Error = err.Error()
					j.Progress = progress
				})
				s.publish(Event{JobID: j.ID, Type: EventTimeframeFailed, Period: period,
					Progress: progress, Payload: map[string]any{"error": err.Error()}})
				return
			}

			summary := result.Summary
			results[idx] = result
			s.update(j, func() {
				j.Periods[idx].State = PeriodDone
				j.Periods[idx].Summary = &summary
				j.Periods[idx].Detail = result
				j.Progress = progress
			})
			s.publish(Event{JobID: j.ID, Type: EventTimeframeDone, Period: period,
				Progress: progress, Payload: map[string]any{"summary": summary}})
			s.publish(Event{JobID: j.ID, Type: EventJobProgress, Progress: progress})
		}(i)
	}
	wg.Wait()

	return results
}

// persist stores the runs whose win rate clears the gate. results is
// aligned with j.Params, so each record carries the exact parameters it
// ran under. Persistence problems are logged; they never fail the job.
func (s *Service) persist(ctx context.Context, j *Job, results []*core.BacktestResult) {
	if s.repo == nil {
		return
	}

	var records []*core.BacktestRecord
	for i, result := range results {
		if result == nil || result.Summary.WinRatePct < persistWinRatePct {
			continue
		}
		records = append(records, s.toRecord(j, j.Params[i], result))
	}
	if len(records) == 0 {
		return
	}

	if err := s.repo.CreateMany(ctx, records); err != nil {
		s.log.WithError(err).Errorf("persisting %d runs of job %s failed", len(records), j.ID)
	}
}

func (s *Service) toRecord(j *Job, params backtest.Params,
	result *core.BacktestResult) *core.BacktestRecord {

	optionsJSON := ""
	if len(result.StrategyOptions) > 0 {
		raw, err := json.Marshal(result.StrategyOptions)
		if err == nil {
			optionsJSON = string(raw)
		}
	}

	useAI := 0
	if params.UseAI {
		useAI = 1
	}

	return &core.BacktestRecord{
		RunGroupID:          j.RunGroupID,
		RunType:             j.RunType,
		Exchange:            result.Exchange,
		Symbol:              result.Symbol,
		Period:              result.Period,
		Hours:               params.Hours,
		Strategy:            result.StrategyName,
		StrategyOptionsJSON: optionsJSON,
		InitialCapital:      params.InitialCapital,
		UseAI:               useAI,
		StartTime:           result.StartTime,
		EndTime:             result.EndTime,
		TotalTrades:         result.Summary.TotalTrades,
		ProfitableTrades:    result.Summary.ProfitableTrades,
		LosingTrades:        result.Summary.LosingTrades,
		WinRatePct:          result.Summary.WinRatePct,
		TotalProfitPct:      result.Summary.TotalProfitPct,
		AverageProfitPct:    result.Summary.AverageProfitPct,
		MaxDrawdownPct:      result.Summary.MaxDrawdownPct,
		SharpeRatio:         result.Summary.SharpeRatio,
		CreatedAt:           s.now(),
	}
}

func (s *Service) finish(j *Job, status Status, errMsg string) {
	now := s.now()
	phase := PhaseDone
	eventType := EventJobDone
	var payload map[string]any
	if status == StatusFailed {
		phase = PhaseFailed
		eventType = EventJobFailed
		payload = map[string]any{"error": errMsg}
	}

	s.update(j, func() {
		j.Status = status
		j.Error = errMsg
		j.Progress = 100
		j.Phase = phase
		j.FinishedAt = now
		j.ExpiresAt = now.Add(s.ttl)
	})
	s.publish(Event{JobID: j.ID, Type: eventType, Progress: 100, Phase: phase, Payload: payload})
}

func (s *Service) update(j *Job, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// reaper removes finished jobs past their TTL.
func (s *Service) reaper(ctx context.Context) {
	ticker := time.NewTicker(reaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.expire()
		}
	}
}

func (s *Service) expire() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, j := range s.jobs {
		if j.Finished() && !j.ExpiresAt.IsZero() && j.ExpiresAt.Before(now) {
			delete(s.jobs, id)
			s.log.Debugf("expired job %s", id)
		}
	}
}

// String renders a job one-line, for logs and CLIs.
func (j Job) String() string {
	return fmt.Sprintf("%s [%s] %s %d%%", j.ID, j.RunType, j.Status, j.Progress)
}
