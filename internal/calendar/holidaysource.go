package calendar

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"squareoff-engine/internal/logger"
)

// Date formats seen on exchange holiday circulars.
var holidayLayouts = []string{
	"2006-01-02",
	"02-Jan-2006",
	"2-Jan-2006",
	"02 Jan 2006",
	"2 Jan 2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"02/01/2006",
	"02-01-2006",
}

// HolidaySource describes an HTML page listing exchange holidays in a table.
type HolidaySource struct {
	URL       string
	RowSelect string // CSS selector for one holiday row, e.g. "table.holiday tbody tr"
	Timeout   time.Duration
}

// ParseHolidayDate returns the ISO date for s, trying every known layout.
func ParseHolidayDate(s string) (string, bool) {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return "", false
	}
	for _, layout := range holidayLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d.Format(dateLayout), true
		}
	}
	return "", false
}

// ParseHolidayTable takes the first parseable date cell of every selected row.
func ParseHolidayTable(rows *goquery.Selection) []string {
	seen := map[string]struct{}{}
	rows.Each(func(_ int, row *goquery.Selection) {
		row.Find("td").EachWithBreak(func(_ int, cell *goquery.Selection) bool {
			d, ok := ParseHolidayDate(cell.Text())
			if !ok {
				return true
			}
			seen[d] = struct{}{}
			return false
		})
	})
	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Fetch scrapes the holiday page. A page without any parseable row is an error
// so that a layout change never silently empties the calendar.
func (hs HolidaySource) Fetch(ctx context.Context) ([]string, error) {
	u, err := url.Parse(hs.URL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("holiday source: invalid url %q", hs.URL)
	}
	rowSelect := hs.RowSelect
	if rowSelect == "" {
		rowSelect = "table tr"
	}

	c := colly.NewCollector(
		colly.AllowedDomains(u.Hostname()),
		colly.MaxDepth(1),
	)
	if hs.Timeout > 0 {
		c.SetRequestTimeout(hs.Timeout)
	}
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) squareoff-engine")
	})

	var dates []string
	c.OnHTML("html", func(e *colly.HTMLElement) {
		dates = ParseHolidayTable(e.DOM.Find(rowSelect))
	})

	var scrapeErr error
	c.OnError(func(r *colly.Response, err error) {
		scrapeErr = err
		logger.ErrorWithErr(ctx, "Holiday page fetch failed", err, "url", hs.URL, "status", r.StatusCode)
	})

	if err := c.Visit(hs.URL); err != nil {
		return nil, fmt.Errorf("holiday source: visit %s: %w", hs.URL, err)
	}
	c.Wait()

	if scrapeErr != nil {
		return nil, fmt.Errorf("holiday source: %w", scrapeErr)
	}
	if len(dates) == 0 {
		return nil, fmt.Errorf("holiday source: no holiday rows matched %q at %s", rowSelect, hs.URL)
	}
	logger.Info(ctx, "Holiday page scraped", "url", hs.URL, "holidays", len(dates))
	return dates, nil
}

// MergeHolidays unions date lists, dropping duplicates.
func MergeHolidays(lists ...[]string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, l := range lists {
		for _, d := range l {
			if _, ok := seen[d]; ok {
				continue
			}
			seen[d] = struct{}{}
			out = append(out, d)
		}
	}
	sort.Strings(out)
	return out
}
