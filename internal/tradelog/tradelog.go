// Package tradelog is the settlement journal: one JSON line per attempt
// outcome and per job run, in one file per civil day.
package tradelog

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"squareoff-engine/internal/interfaces"
	"squareoff-engine/internal/types"
)

const (
	dayLayout = "2006-01-02"
	fileExt   = ".log"
)

var _ interfaces.EventSink = (*Journal)(nil)

type Journal struct {
	log *zap.Logger
	out *dailyFile
}

type Option func(*dailyFile)

// WithNow overrides the clock used to pick the day file.
func WithNow(now func() time.Time) Option {
	return func(d *dailyFile) { d.now = now }
}

func Open(dir string, loc *time.Location, opts ...Option) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	if loc == nil {
		loc = time.FixedZone("IST", 19800)
	}
	out := &dailyFile{dir: dir, loc: loc, now: time.Now}
	for _, o := range opts {
		o(out)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderCfg.MessageKey = "event"

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), out, zap.InfoLevel)
	return &Journal{log: zap.New(core), out: out}, nil
}

// Publish journals settlement and job-run events. Other kinds are ignored.
func (j *Journal) Publish(_ context.Context, event types.Event) error {
	switch {
	case event.Attempt != nil:
		j.log.Info(string(types.EventSettlement), attemptFields(*event.Attempt)...)
	case event.JobRun != nil:
		j.log.Info(string(types.EventJobRun), runFields(*event.JobRun)...)
	}
	return nil
}

func (j *Journal) Close() error {
	_ = j.log.Sync()
	return j.out.Close()
}

func attemptFields(r types.AttemptResult) []zap.Field {
	fields := []zap.Field{
		zap.String("job", r.Job),
		zap.String("order_id", r.OrderID),
		zap.String("outcome", string(r.Outcome)),
	}
	if r.Reason != "" {
		fields = append(fields, zap.String("reason", r.Reason))
	}
	if r.Outcome == types.OutcomeClosed {
		fields = append(fields,
			zap.String("side", string(r.Side)),
			zap.Int("quantity", r.Quantity),
			zap.Stringer("entry_price", r.EntryPrice),
			zap.Stringer("quote_price", r.QuotePrice),
			zap.Stringer("exit_price", r.ExitPrice),
			zap.String("price_source", r.PriceSource),
			zap.Stringer("net_pnl", r.NetPnl.Round(2)),
			zap.Stringer("pct", r.Pct.Round(2)),
		)
	}
	if r.Error != "" {
		fields = append(fields, zap.String("error", r.Error))
	}
	return fields
}

func runFields(r types.JobRun) []zap.Field {
	total := r.Totals()
	fields := []zap.Field{
		zap.String("job", r.Job),
		zap.Time("started_at", r.StartedAt),
		zap.Int64("duration_ms", r.Duration.Milliseconds()),
		zap.Int("candidates", total.Candidates),
		zap.Int("closed", total.Closed),
		zap.Int("skipped", total.Skipped),
		zap.Int("failed", total.Failed),
	}
	if r.Skipped {
		fields = append(fields, zap.Bool("job_skipped", true), zap.String("skip_reason", r.SkipReason))
	}
	if total.Error != "" {
		fields = append(fields, zap.String("error", total.Error))
	}
	return fields
}

// dailyFile is a WriteSyncer that switches files when the civil day changes.
type dailyFile struct {
	dir string
	loc *time.Location
	now func() time.Time

	mu   sync.Mutex
	day  string
	file *os.File
}

func (d *dailyFile) Path(day string) string {
	return DayPath(d.dir, day)
}

// DayPath is the journal file for a YYYY-MM-DD day.
func DayPath(dir, day string) string {
	return filepath.Join(dir, day+fileExt)
}

func (d *dailyFile) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	day := d.now().In(d.loc).Format(dayLayout)
	if d.file == nil || day != d.day {
		if d.file != nil {
			_ = d.file.Close()
		}
		f, err := os.OpenFile(d.Path(day), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			d.file = nil
			return 0, err
		}
		d.file, d.day = f, day
	}
	return d.file.Write(p)
}

func (d *dailyFile) Sync() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	return d.file.Sync()
}

func (d *dailyFile) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}

// CompressOlder gzips day files older than retentionDays and removes the
// originals. Files that fail to compress are left in place.
func CompressOlder(dir string, retentionDays int, now time.Time) error {
	if retentionDays <= 0 {
		return nil
	}
	cutoff := now.AddDate(0, 0, -retentionDays).Format(dayLayout)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != fileExt {
			continue
		}
		day := strings.TrimSuffix(name, fileExt)
		if _, err := time.Parse(dayLayout, day); err != nil || day >= cutoff {
			continue
		}
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p + ".gz"); err == nil {
			_ = os.Remove(p)
			continue
		}
		if err := gzipFile(p); err != nil {
			return fmt.Errorf("compress %s: %w", name, err)
		}
	}
	return nil
}

// gzipFile writes p.gz through a temporary file and renames it into place,
// so p.gz only ever exists complete. p is removed after the rename.
func gzipFile(p string) (err error) {
	in, err := os.Open(p)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := p + ".gz.tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = out.Close()
			_ = os.Remove(tmp)
		}
	}()

	gw := gzip.NewWriter(out)
	if _, err = io.Copy(gw, in); err != nil {
		return err
	}
	if err = gw.Close(); err != nil {
		return err
	}
	if err = out.Sync(); err != nil {
		return err
	}
	if err = out.Close(); err != nil {
		return err
	}
	if err = os.Rename(tmp, p+".gz"); err != nil {
		return err
	}
	return os.Remove(p)
}
