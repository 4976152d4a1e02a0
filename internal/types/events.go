package types

import "time"

type EventKind string

const (
	EventJobRun     EventKind = "JOB_RUN"
	EventSettlement EventKind = "SETTLEMENT"
)

type Event struct {
	Kind    EventKind      `json:"kind"`
	Time    time.Time      `json:"time"`
	JobRun  *JobRun        `json:"job_run,omitempty"`
	Attempt *AttemptResult `json:"attempt,omitempty"`
}

// Key groups events of one job together on partitioned transports.
func (e Event) Key() string {
	switch {
	case e.JobRun != nil:
		return e.JobRun.Job
	case e.Attempt != nil:
		return e.Attempt.Job
	}
	return string(e.Kind)
}

type SweepRun struct {
	Name       string `json:"name"`
	Candidates int    `json:"candidates"`
	Closed     int    `json:"closed"`
	Skipped    int    `json:"skipped"`
	Failed     int    `json:"failed"`
	Error      string `json:"error,omitempty"`
}

type JobRun struct {
	Job        string        `json:"job"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Skipped    bool          `json:"skipped"`
	SkipReason string        `json:"skip_reason,omitempty"`
	Sweeps     []SweepRun    `json:"sweeps"`
}

func (r JobRun) Totals() SweepRun {
	total := SweepRun{Name: r.Job}
	for _, s := range r.Sweeps {
		total.Candidates += s.Candidates
		total.Closed += s.Closed
		total.Skipped += s.Skipped
		total.Failed += s.Failed
		if s.Error != "" && total.Error == "" {
			total.Error = s.Error
		}
	}
	return total
}
