// Package scheduler fires squareoff jobs on wall-clock rules and fans each
// job's candidates out to the executor.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"squareoff-engine/internal/calendar"
	"squareoff-engine/internal/events"
	"squareoff-engine/internal/interfaces"
	"squareoff-engine/internal/logger"
	"squareoff-engine/internal/types"
)

var (
	ErrUnknownJob = errors.New("unknown job")
	ErrJobBusy    = errors.New("job already triggered or running")
)

const (
	stateIdle int32 = iota
	stateTriggered
	stateRunning
)

type Params struct {
	Calendar *calendar.Calendar
	Store    interfaces.OrderStore
	Executor interfaces.Executor
	Clock    interfaces.Clock
	Events   interfaces.EventSink

	BatchSize    int
	Concurrency  int
	StoreTimeout time.Duration
	// PublishTimeout bounds the job run event publish. Zero uses
	// events.DefaultPublishTimeout.
	PublishTimeout time.Duration
}

type entry struct {
	job   Job
	state atomic.Int32
}

type Scheduler struct {
	p Params

	mu   sync.RWMutex
	jobs map[string]*entry
}

func New(p Params) *Scheduler {
	if p.Clock == nil {
		p.Clock = interfaces.RealClock{}
	}
	if p.BatchSize <= 0 {
		p.BatchSize = 1000
	}
	if p.Concurrency <= 0 {
		p.Concurrency = 1
	}
	return &Scheduler{p: p, jobs: make(map[string]*entry)}
}

// Register adds a job. Errors here are configuration errors.
func (s *Scheduler) Register(job Job) error {
	if err := job.validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[job.Name]; dup {
		return fmt.Errorf("job %s registered twice", job.Name)
	}
	s.jobs[job.Name] = &entry{job: job}
	return nil
}

func (s *Scheduler) Jobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run starts one timer loop per job and blocks until ctx is cancelled and
// every in-flight run has finished.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.jobs))
	for _, e := range s.jobs {
		entries = append(entries, e)
	}
	s.mu.RUnlock()
	if len(entries) == 0 {
		return errors.New("no jobs registered")
	}

	var runs sync.WaitGroup
	var loops sync.WaitGroup
	for _, e := range entries {
		loops.Add(1)
		go func() {
			defer loops.Done()
			s.loop(ctx, e, &runs)
		}()
	}
	loops.Wait()
	runs.Wait()
	return nil
}

func (s *Scheduler) loop(ctx context.Context, e *entry, runs *sync.WaitGroup) {
	for {
		now := s.p.Clock.Now()
		next := e.job.Rule.Next(now)
		if next.IsZero() {
			logger.Warn(ctx, "Job has no future fire time", "job", e.job.Name)
			return
		}
		logger.Debug(ctx, "Job scheduled", "job", e.job.Name, "next", next.Format(time.RFC3339))

		select {
		case <-ctx.Done():
			return
		case <-s.p.Clock.After(next.Sub(now)):
		}

		if !e.state.CompareAndSwap(stateIdle, stateTriggered) {
			logger.Warn(ctx, "Dropping trigger, previous run still active", "job", e.job.Name, "fire_time", next.Format(time.RFC3339))
			continue
		}
		runs.Add(1)
		go func() {
			defer runs.Done()
			// In-flight runs finish even if the daemon is shutting down.
			s.execute(context.WithoutCancel(ctx), e)
		}()
	}
}

// RunJob runs a registered job once, now. It returns ErrJobBusy if the job
// is already triggered or running.
func (s *Scheduler) RunJob(ctx context.Context, name string) (types.JobRun, error) {
	s.mu.RLock()
	e, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return types.JobRun{}, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if !e.state.CompareAndSwap(stateIdle, stateTriggered) {
		return types.JobRun{}, fmt.Errorf("%s: %w", name, ErrJobBusy)
	}
	return s.execute(ctx, e), nil
}

func (s *Scheduler) execute(ctx context.Context, e *entry) types.JobRun {
	e.state.Store(stateRunning)
	defer e.state.Store(stateIdle)

	job := e.job
	op := logger.StartOperation(ctx, "scheduler.RunJob", "job", job.Name)
	ctx = op.GetContext()

	start := s.p.Clock.Now()
	run := types.JobRun{Job: job.Name, StartedAt: start}

	if job.RequireTradingDay && !s.p.Calendar.IsTradingDay(start) {
		run.Skipped = true
		run.SkipReason = "non-trading day"
		logger.Info(ctx, "Market holiday, skipping job", "job", job.Name, "date", start.In(s.p.Calendar.Location()).Format("2006-01-02"))
	} else {
		for _, sw := range job.Sweeps {
			run.Sweeps = append(run.Sweeps, s.runSweep(ctx, job, sw))
		}
	}
	run.Duration = s.p.Clock.Now().Sub(start)

	total := run.Totals()
	logger.JobRun(ctx, job.Name, total.Candidates, total.Closed, total.Skipped, total.Failed, run.Duration,
		"job_skipped", run.Skipped,
	)
	if total.Error != "" {
		op.EndWithError(errors.New(total.Error), "candidates", total.Candidates, "closed", total.Closed, "failed", total.Failed)
	} else {
		op.End("candidates", total.Candidates, "closed", total.Closed, "failed", total.Failed)
	}

	if s.p.Events != nil {
		event := types.Event{Kind: types.EventJobRun, Time: s.p.Clock.Now(), JobRun: &run}
		if err := events.Publish(ctx, s.p.Events, event, s.p.PublishTimeout); err != nil {
			logger.ErrorWithErr(ctx, "Failed to publish job run event", err, "job", job.Name)
		}
	}
	return run
}

func (s *Scheduler) runSweep(ctx context.Context, job Job, sw Sweep) (res types.SweepRun) {
	res.Name = sw.Name
	defer func() {
		if r := recover(); r != nil {
			res.Error = fmt.Sprintf("panic: %v", r)
			logger.Error(ctx, "Recovered panic in sweep", "job", job.Name, "sweep", sw.Name, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()

	orders, err := s.findCandidates(ctx, sw.Filter)
	if err != nil {
		res.Error = err.Error()
		logger.ErrorWithErr(ctx, "Candidate query failed", err, "job", job.Name, "sweep", sw.Name)
		return res
	}
	res.Candidates = len(orders)
	logger.Info(ctx, "Candidates found", "job", job.Name, "sweep", sw.Name, "count", len(orders))

	attempt := types.Attempt{
		Job:               job.Name,
		Action:            sw.Action,
		Origin:            sw.Origin,
		Expect:            sw.Filter.Statuses,
		RequireTradingDay: job.RequireTradingDay,
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.p.Concurrency)
	for _, o := range orders {
		g.Go(func() error {
			outcome := s.attemptOne(ctx, attempt, o)
			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case types.OutcomeClosed:
				res.Closed++
			case types.OutcomeSkipped:
				res.Skipped++
			default:
				res.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()
	return res
}

func (s *Scheduler) findCandidates(ctx context.Context, f types.Filter) ([]types.Order, error) {
	if s.p.StoreTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.p.StoreTimeout)
		defer cancel()
	}
	return s.p.Store.FindCandidates(ctx, f, s.p.BatchSize)
}

func (s *Scheduler) attemptOne(ctx context.Context, a types.Attempt, o types.Order) (outcome types.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "Recovered panic in executor", "job", a.Job, "order_id", o.ID, "panic", fmt.Sprint(r))
			outcome = types.OutcomeFailed
		}
	}()
	return s.p.Executor.Attempt(ctx, a, o).Outcome
}
