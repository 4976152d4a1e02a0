package scheduler

import "time"

// Rule decides when a job fires next.
type Rule interface {
	// Next returns the first fire time strictly after the given instant, or
	// the zero time if the rule never fires again.
	Next(after time.Time) time.Time
}

// DailyRule fires at Hour:Minute local time on the listed weekdays, or every
// day when Weekdays is empty.
type DailyRule struct {
	Hour     int
	Minute   int
	Weekdays []time.Weekday
	Location *time.Location
}

func (r DailyRule) Next(after time.Time) time.Time {
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	local := after.In(loc)
	for i := 0; i <= 7; i++ {
		day := local.AddDate(0, 0, i)
		at := time.Date(day.Year(), day.Month(), day.Day(), r.Hour, r.Minute, 0, 0, loc)
		if !at.After(after) || !r.allows(at.Weekday()) {
			continue
		}
		return at
	}
	return time.Time{}
}

func (r DailyRule) allows(d time.Weekday) bool {
	if len(r.Weekdays) == 0 {
		return true
	}
	for _, w := range r.Weekdays {
		if w == d {
			return true
		}
	}
	return false
}
