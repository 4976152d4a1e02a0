package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var ist = time.FixedZone("IST", 19800)

var weekdays = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}

func TestDailyRuleNext(t *testing.T) {
	r := DailyRule{Hour: 15, Minute: 15, Weekdays: weekdays, Location: ist}

	fri := time.Date(2026, 10, 16, 15, 14, 0, 0, ist)
	assert.Equal(t, time.Date(2026, 10, 16, 15, 15, 0, 0, ist), r.Next(fri))

	// Exactly at the fire time moves to the next weekday.
	atFire := time.Date(2026, 10, 16, 15, 15, 0, 0, ist)
	assert.Equal(t, time.Date(2026, 10, 19, 15, 15, 0, 0, ist), r.Next(atFire))

	sat := time.Date(2026, 10, 17, 9, 0, 0, 0, ist)
	assert.Equal(t, time.Date(2026, 10, 19, 15, 15, 0, 0, ist), r.Next(sat))
}

func TestDailyRuleEveryDay(t *testing.T) {
	r := DailyRule{Hour: 0, Minute: 2, Location: ist}

	late := time.Date(2026, 10, 17, 23, 59, 0, 0, ist)
	assert.Equal(t, time.Date(2026, 10, 18, 0, 2, 0, 0, ist), r.Next(late))

	// 18:00 UTC Friday is 23:30 IST Friday.
	utc := time.Date(2026, 10, 16, 18, 0, 0, 0, time.UTC)
	assert.True(t, time.Date(2026, 10, 17, 0, 2, 0, 0, ist).Equal(r.Next(utc)))
}

func TestDailyRuleDefaultsToUTC(t *testing.T) {
	r := DailyRule{Hour: 10, Minute: 0}
	got := r.Next(time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC), got)
}
