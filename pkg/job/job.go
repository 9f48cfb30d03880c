package job

import (
	"time"

	"github.com/raykavin/quantcore/pkg/backtest"
	"github.com/raykavin/quantcore/pkg/core"
)

// Status is the lifecycle state of a queued back-test job.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Phase names the coarse stage a job reports in status payloads and
// events: queued, running, saving, then done or failed.
const (
	PhaseQueued  = "queued"
	PhaseRunning = "running"
	PhaseSaving  = "saving"
	PhaseDone    = "done"
	PhaseFailed  = "failed"
)

// PeriodState tracks one timeframe inside a multi-period job.
type PeriodState string

const (
	PeriodPending PeriodState = "pending"
	PeriodRunning PeriodState = "running"
	PeriodDone    PeriodState = "done"
	PeriodFailed  PeriodState = "failed"
)

// PeriodRun is the per-timeframe slot of a job. Summary and Detail are
// filled when the timeframe finishes.
type PeriodRun struct {
	Period  core.Period          `json:"period"`
	State   PeriodState          `json:"state"`
	Summary *core.Summary        `json:"summary,omitempty"`
	Detail  *core.BacktestResult `json:"-"`
	Error   string               `json:"error,omitempty"`
}

// Job is one asynchronous back-test submission, single or multi-period.
// Snapshots returned by the service are value copies; mutation happens
// only under the service lock.
type Job struct {
	ID          string               `json:"id"`
	RunGroupID  string               `json:"run_group_id"`
	RunType     core.RunType         `json:"run_type"`
	Status      Status               `json:"status"`
	Phase       string               `json:"phase,omitempty"`
	Progress    int                  `json:"progress"`
	Error       string               `json:"error,omitempty"`
	Params      []backtest.Params    `json:"-"`
	Concurrency int                  `json:"-"`
	Periods     []*PeriodRun         `json:"periods,omitempty"`
	Result      *core.BacktestResult `json:"-"`
	CreatedAt   time.Time            `json:"created_at"`
	StartedAt   time.Time            `json:"started_at,omitempty"`
	FinishedAt  time.Time            `json:"finished_at,omitempty"`
	ExpiresAt   time.Time            `json:"expires_at,omitempty"`
}

// Finished reports whether the job reached a terminal state.
func (j *Job) Finished() bool {
	return j.Status == StatusDone || j.Status == StatusFailed
}

// snapshot returns a deep-enough copy for safe external reads.
func (j *Job) snapshot() Job {
	copied := *j
	if j.Periods != nil {
		copied.Periods = make([]*PeriodRun, len(j.Periods))
		for i, p := range j.Periods {
			run := *p
			copied.Periods[i] = &run
		}
	}
	return copied
}
