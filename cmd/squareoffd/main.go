// Command squareoffd runs the squareoff timetable until interrupted.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"squareoff-engine/internal/app"
	"squareoff-engine/internal/eod"
	"squareoff-engine/internal/eod/eodobs"
	"squareoff-engine/internal/logger"
	"squareoff-engine/internal/metrics"
	"squareoff-engine/internal/trace"
	"squareoff-engine/internal/tradelog"
)

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func main() {
	must(app.InitializeSystem(nil))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Bootstrap(ctx)
	must(err)
	defer func() {
		if err := a.Close(); err != nil {
			logger.ErrorWithErr(ctx, "Shutdown close failed", err)
		}
		_ = trace.Shutdown(context.Background())
	}()

	if addr := a.Config.Metrics.Addr; addr != "" {
		go func() {
			if err := metrics.Serve(ctx, addr, a.Registry); err != nil {
				logger.ErrorWithErr(ctx, "Metrics server stopped", err, "addr", addr)
			}
		}()
	}

	go reloadHolidaysOnHUP(ctx, a)
	go housekeeping(ctx, a)

	logger.Info(ctx, "Squareoff scheduler started", "jobs", a.Scheduler.Jobs(), "mode", a.Config.Mode)
	if err := a.Scheduler.Run(ctx); err != nil {
		logger.ErrorWithErr(ctx, "Scheduler exited", err)
		os.Exit(1)
	}
	logger.Info(ctx, "Squareoff scheduler stopped")
}

// reloadHolidaysOnHUP swaps in a fresh holiday list on SIGHUP.
func reloadHolidaysOnHUP(ctx context.Context, a *app.App) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			cfg, err := app.LoadConfig(ctx)
			if err != nil {
				continue
			}
			holidays := app.LoadHolidays(ctx, cfg)
			if err := a.Calendar.Reload(holidays); err != nil {
				logger.ErrorWithErr(ctx, "Holiday reload rejected", err)
				continue
			}
			logger.Info(ctx, "Holidays reloaded", "count", len(holidays))
		}
	}
}

// housekeeping writes yesterday's settlement summary once its journal is
// complete, then compresses journal files past retention.
func housekeeping(ctx context.Context, a *app.App) {
	loc := a.Calendar.Location()
	summaries := eod.New(a.Config.Journal.Dir, loc)
	summarizer := eodobs.Wrap(summaries)

	tick := time.NewTicker(time.Hour)
	defer tick.Stop()
	for {
		now := time.Now()
		if day, ok := summaries.Pending(now); ok {
			_, _ = summarizer.SummarizeDay(ctx, day)
		}
		if err := tradelog.CompressOlder(a.Config.Journal.Dir, a.Config.Journal.RetentionDays, now.In(loc)); err != nil {
			logger.Warn(ctx, "Failed to compress old journal files", "error", err.Error())
		}
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
	}
}
