// Package eod writes a per-job CSV of each day's settlements from the journal.
package eod

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"squareoff-engine/internal/interfaces"
	"squareoff-engine/internal/tradelog"
	"squareoff-engine/internal/types"
)

const dayLayout = "2006-01-02"

var header = []string{"job", "closed", "skipped", "failed", "quantity", "net_pnl", "winners", "losers"}

// settlementLine is the subset of a journal SETTLEMENT line the summary reads.
type settlementLine struct {
	Event    string          `json:"event"`
	Job      string          `json:"job"`
	Outcome  string          `json:"outcome"`
	Quantity int             `json:"quantity"`
	NetPnl   decimal.Decimal `json:"net_pnl"`
}

type jobRow struct {
	Job      string
	Closed   int
	Skipped  int
	Failed   int
	Quantity int
	NetPnl   decimal.Decimal
	Winners  int
	Losers   int
}

func (r *jobRow) add(l settlementLine) {
	switch types.Outcome(l.Outcome) {
	case types.OutcomeClosed:
		r.Closed++
		r.Quantity += l.Quantity
		r.NetPnl = r.NetPnl.Add(l.NetPnl)
		switch l.NetPnl.Sign() {
		case 1:
			r.Winners++
		case -1:
			r.Losers++
		}
	case types.OutcomeSkipped:
		r.Skipped++
	default:
		r.Failed++
	}
}

func (r *jobRow) merge(o *jobRow) {
	r.Closed += o.Closed
	r.Skipped += o.Skipped
	r.Failed += o.Failed
	r.Quantity += o.Quantity
	r.NetPnl = r.NetPnl.Add(o.NetPnl)
	r.Winners += o.Winners
	r.Losers += o.Losers
}

func (r *jobRow) record() []string {
	return []string{
		r.Job,
		strconv.Itoa(r.Closed),
		strconv.Itoa(r.Skipped),
		strconv.Itoa(r.Failed),
		strconv.Itoa(r.Quantity),
		r.NetPnl.StringFixed(2),
		strconv.Itoa(r.Winners),
		strconv.Itoa(r.Losers),
	}
}

// Summarizer reads journal day files from dir and writes reports to dir/eod.
type Summarizer struct {
	dir string
	loc *time.Location
}

var _ interfaces.EodSummarizer = (*Summarizer)(nil)

func New(journalDir string, loc *time.Location) *Summarizer {
	if loc == nil {
		loc = time.FixedZone("IST", 19800)
	}
	return &Summarizer{dir: journalDir, loc: loc}
}

func (s *Summarizer) ReportPath(day time.Time) string {
	return filepath.Join(s.dir, "eod", day.In(s.loc).Format(dayLayout)+".csv")
}

// Pending reports the previous civil day when its journal exists and its
// report has not been written yet.
func (s *Summarizer) Pending(now time.Time) (time.Time, bool) {
	local := now.In(s.loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc).AddDate(0, 0, -1)
	if _, err := os.Stat(tradelog.DayPath(s.dir, day.Format(dayLayout))); err != nil {
		return day, false
	}
	if _, err := os.Stat(s.ReportPath(day)); errors.Is(err, os.ErrNotExist) {
		return day, true
	}
	return day, false
}

func (s *Summarizer) SummarizeDay(_ context.Context, day time.Time) (string, error) {
	in, err := os.Open(tradelog.DayPath(s.dir, day.In(s.loc).Format(dayLayout)))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer in.Close()

	rows := map[string]*jobRow{}
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var l settlementLine
		if err := json.Unmarshal(sc.Bytes(), &l); err != nil || l.Event != string(types.EventSettlement) {
			continue
		}
		row := rows[l.Job]
		if row == nil {
			row = &jobRow{Job: l.Job}
			rows[l.Job] = row
		}
		row.add(l)
	}
	if err := sc.Err(); err != nil {
		return "", err
	}

	jobs := make([]string, 0, len(rows))
	for j := range rows {
		jobs = append(jobs, j)
	}
	sort.Strings(jobs)

	outPath := s.ReportPath(day)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	tmp := outPath + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	w := csv.NewWriter(out)
	_ = w.Write(header)
	total := &jobRow{Job: "TOTAL"}
	for _, j := range jobs {
		_ = w.Write(rows[j].record())
		total.merge(rows[j])
	}
	_ = w.Write(total.record())
	w.Flush()
	if err := errors.Join(w.Error(), out.Close()); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	return outPath, os.Rename(tmp, outPath)
}
