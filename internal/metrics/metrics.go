// Package metrics exposes settlement and job-run counters to Prometheus. It
// is fed through the event sink, so the engine does not depend on it.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"squareoff-engine/internal/interfaces"
	"squareoff-engine/internal/logger"
	"squareoff-engine/internal/types"
)

const namespace = "squareoff"

type Metrics struct {
	Attempts      *prometheus.CounterVec
	Candidates    *prometheus.CounterVec
	JobRuns       *prometheus.CounterVec
	JobDuration   *prometheus.HistogramVec
	LastRun       *prometheus.GaugeVec
	RealizedPnl   *prometheus.CounterVec
	PriceFallback *prometheus.CounterVec
}

var _ interfaces.EventSink = (*Metrics)(nil)

func New() *Metrics {
	return &Metrics{
		Attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Squareoff attempts by job and outcome",
		}, []string{"job", "outcome"}),
		Candidates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_total",
			Help:      "Candidates selected per job and sweep",
		}, []string{"job", "sweep"}),
		JobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Job runs, labelled skipped when the day was not a trading day",
		}, []string{"job", "skipped"}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Job run duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
		LastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_last_run_timestamp_seconds",
			Help:      "Unix time of the last completed run",
		}, []string{"job"}),
		RealizedPnl: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realized_pnl_abs_total",
			Help:      "Absolute net P&L settled, split by sign",
		}, []string{"job", "sign"}),
		PriceFallback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exit_price_source_total",
			Help:      "Closed orders by the source of their exit price",
		}, []string{"job", "source"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.Attempts, m.Candidates, m.JobRuns, m.JobDuration, m.LastRun, m.RealizedPnl, m.PriceFallback}
}

// Register adds all collectors to reg. Already-registered collectors are
// not an error.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

func (m *Metrics) Publish(_ context.Context, event types.Event) error {
	switch {
	case event.Attempt != nil:
		m.observeAttempt(*event.Attempt)
	case event.JobRun != nil:
		m.observeRun(*event.JobRun)
	}
	return nil
}

func (m *Metrics) observeAttempt(r types.AttemptResult) {
	m.Attempts.WithLabelValues(r.Job, string(r.Outcome)).Inc()
	if r.Outcome != types.OutcomeClosed {
		return
	}
	m.PriceFallback.WithLabelValues(r.Job, r.PriceSource).Inc()
	pnl, _ := r.NetPnl.Float64()
	switch {
	case pnl > 0:
		m.RealizedPnl.WithLabelValues(r.Job, "profit").Add(pnl)
	case pnl < 0:
		m.RealizedPnl.WithLabelValues(r.Job, "loss").Add(-pnl)
	}
}

func (m *Metrics) observeRun(r types.JobRun) {
	skipped := "false"
	if r.Skipped {
		skipped = "true"
	}
	m.JobRuns.WithLabelValues(r.Job, skipped).Inc()
	m.JobDuration.WithLabelValues(r.Job).Observe(r.Duration.Seconds())
	m.LastRun.WithLabelValues(r.Job).Set(float64(r.StartedAt.Add(r.Duration).Unix()))
	for _, s := range r.Sweeps {
		m.Candidates.WithLabelValues(r.Job, s.Name).Add(float64(s.Candidates))
	}
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info(ctx, "Metrics server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
