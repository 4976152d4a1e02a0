package scheduler

import (
	"fmt"
	"time"

	"squareoff-engine/internal/store"
	"squareoff-engine/internal/types"
)

const (
	JobIntradaySquareoff  = "intraday_squareoff"
	JobCommoditySquareoff = "commodity_squareoff"
	JobMidnightCleanup    = "midnight_cleanup"
)

// Sweep is one candidate query and what to do with each result. The filter's
// statuses double as the precondition of the closing write.
type Sweep struct {
	Name   string
	Filter types.Filter
	Action types.Action
	Origin types.Origin
}

type Job struct {
	Name              string
	Rule              Rule
	RequireTradingDay bool
	Sweeps            []Sweep
}

func (j Job) validate() error {
	if j.Name == "" {
		return fmt.Errorf("job has no name")
	}
	if j.Rule == nil {
		return fmt.Errorf("job %s has no rule", j.Name)
	}
	if len(j.Sweeps) == 0 {
		return fmt.Errorf("job %s has no sweeps", j.Name)
	}
	for _, s := range j.Sweeps {
		if s.Name == "" {
			return fmt.Errorf("job %s has an unnamed sweep", j.Name)
		}
		if len(s.Filter.Statuses) == 0 {
			return fmt.Errorf("job %s sweep %s must select by status", j.Name, s.Name)
		}
		if types.HasStatus(s.Filter.Statuses, types.StatusClosed) {
			return fmt.Errorf("job %s sweep %s selects closed orders", j.Name, s.Name)
		}
		for _, st := range s.Filter.Statuses {
			if !st.IsKnown() {
				return fmt.Errorf("job %s sweep %s selects unknown status %s", j.Name, s.Name, st)
			}
		}
	}
	return nil
}

// DefaultJobs builds the standard squareoff timetable from config. Disabled
// jobs are left out.
func DefaultJobs(cfg *store.Config, loc *time.Location) ([]Job, error) {
	prefix := cfg.Market.CommodityPrefix
	open := []types.Status{types.StatusOpen}

	specs := []struct {
		cfg store.JobConfig
		job Job
	}{
		{cfg.Jobs.IntradaySquareoff, Job{
			Name:              JobIntradaySquareoff,
			RequireTradingDay: true,
			Sweeps: []Sweep{{
				Name: "open_intraday_standard",
				Filter: types.Filter{
					Category:             types.CategoryIntraday,
					Statuses:             open,
					SegmentPrefix:        prefix,
					ExcludeSegmentPrefix: true,
				},
				Action: types.ActionSquareoff,
				Origin: types.NewOrigin(types.OriginIntradaySquareoff),
			}},
		}},
		{cfg.Jobs.CommoditySquareoff, Job{
			Name:              JobCommoditySquareoff,
			RequireTradingDay: true,
			Sweeps: []Sweep{{
				Name: "open_intraday_commodity",
				Filter: types.Filter{
					Category:      types.CategoryIntraday,
					Statuses:      open,
					SegmentPrefix: prefix,
				},
				Action: types.ActionSquareoff,
				Origin: types.NewOrigin(types.OriginCommoditySquareoff),
			}},
		}},
		{cfg.Jobs.MidnightCleanup, Job{
			Name: JobMidnightCleanup,
			Sweeps: []Sweep{
				{
					Name: "intraday_hold_cleanup",
					Filter: types.Filter{
						Category: types.CategoryIntraday,
						Statuses: []types.Status{types.StatusHold},
					},
					Action: types.ActionSquareoff,
					Origin: types.NewOrigin(types.OriginIntradayCleanup),
				},
				{
					Name: "overnight_expiry",
					Filter: types.Filter{
						Category: types.CategoryOvernight,
						Statuses: []types.Status{types.StatusUnset, types.StatusOpen, types.StatusHold},
					},
					Action: types.ActionExpire,
					Origin: types.NewOrigin(types.OriginOvernightExpiry),
				},
			},
		}},
	}

	var jobs []Job
	for _, s := range specs {
		if !s.cfg.IsEnabled() {
			continue
		}
		days, err := s.cfg.Days()
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", s.job.Name, err)
		}
		s.job.Rule = DailyRule{Hour: s.cfg.Hour, Minute: s.cfg.Minute, Weekdays: days, Location: loc}
		jobs = append(jobs, s.job)
	}
	return jobs, nil
}
