// Package calendar answers whether trading is permitted at a given instant for
// a given segment. All checks run in one fixed civil timezone.
package calendar

import (
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"squareoff-engine/internal/types"
)

const dateLayout = "2006-01-02"

// Session is a trading window expressed in minutes since local midnight.
type Session struct {
	Open            int
	Close           int
	CommodityClose  int
	CommodityPrefix string
}

// DefaultSession is the NSE/BSE cash and F&O window, with the MCX evening close.
func DefaultSession() Session {
	return Session{
		Open:            9*60 + 15,
		Close:           15*60 + 15,
		CommodityClose:  23*60 + 15,
		CommodityPrefix: "MCX",
	}
}

type holidaySet map[string]struct{}

// Calendar is safe for concurrent use. The holiday set is replaced wholesale
// by Reload and never mutated in place.
type Calendar struct {
	loc      *time.Location
	session  Session
	holidays atomic.Pointer[holidaySet]
}

func New(loc *time.Location, holidays []string, session Session) (*Calendar, error) {
	if loc == nil {
		return nil, fmt.Errorf("calendar: location is required")
	}
	if session.Open >= session.Close {
		return nil, fmt.Errorf("calendar: session open %d must be before close %d", session.Open, session.Close)
	}
	if session.CommodityClose < session.Close {
		session.CommodityClose = session.Close
	}
	c := &Calendar{loc: loc, session: session}
	if err := c.Reload(holidays); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload validates the given dates and swaps them in atomically. On error the
// previous set stays active.
func (c *Calendar) Reload(holidays []string) error {
	set := make(holidaySet, len(holidays))
	for _, h := range holidays {
		d, err := time.ParseInLocation(dateLayout, h, c.loc)
		if err != nil {
			return fmt.Errorf("calendar: invalid holiday %q: %w", h, err)
		}
		set[d.Format(dateLayout)] = struct{}{}
	}
	c.holidays.Store(&set)
	return nil
}

func (c *Calendar) Location() *time.Location {
	return c.loc
}

func (c *Calendar) Session() Session {
	return c.session
}

// Holidays returns the active holiday dates in ascending order.
func (c *Calendar) Holidays() []string {
	set := *c.holidays.Load()
	out := make([]string, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// IsTradingDay is false on weekends and configured holidays, both judged on
// the civil date in the calendar's location.
func (c *Calendar) IsTradingDay(t time.Time) bool {
	local := t.In(c.loc)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	_, holiday := (*c.holidays.Load())[local.Format(dateLayout)]
	return !holiday
}

// IsWithinSession reports whether the local time of day falls inside the
// segment's session, bounds included.
func (c *Calendar) IsWithinSession(t time.Time, segment string) bool {
	local := t.In(c.loc)
	now := local.Hour()*60 + local.Minute()
	closeAt := c.session.Close
	if c.IsCommodity(segment) {
		closeAt = c.session.CommodityClose
	}
	return now >= c.session.Open && now <= closeAt
}

func (c *Calendar) IsMarketOpen(t time.Time, segment string) bool {
	return c.IsTradingDay(t) && c.IsWithinSession(t, segment)
}

func (c *Calendar) IsCommodity(segment string) bool {
	return c.session.CommodityPrefix != "" && types.HasSegmentPrefix(segment, c.session.CommodityPrefix)
}

// CivilDate truncates t to midnight of its local date.
func (c *Calendar) CivilDate(t time.Time) time.Time {
	local := t.In(c.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc)
}

// ParseClock parses "HH:MM" into minutes since midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("calendar: invalid time of day %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
