// Package app wires configuration, storage, quotes, events and the scheduler
// into a runnable squareoff service.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"squareoff-engine/internal/broker/brokerobs"
	"squareoff-engine/internal/broker/zerodha"
	"squareoff-engine/internal/brokerage"
	"squareoff-engine/internal/calendar"
	"squareoff-engine/internal/engine"
	"squareoff-engine/internal/engine/engineobs"
	"squareoff-engine/internal/events"
	"squareoff-engine/internal/events/kafkasink"
	"squareoff-engine/internal/interfaces"
	"squareoff-engine/internal/logger"
	"squareoff-engine/internal/metrics"
	"squareoff-engine/internal/orderstore/bolt"
	"squareoff-engine/internal/orderstore/memory"
	"squareoff-engine/internal/orderstore/sqlstore"
	"squareoff-engine/internal/orderstore/storeobs"
	"squareoff-engine/internal/scheduler"
	"squareoff-engine/internal/store"
	"squareoff-engine/internal/trace"
	"squareoff-engine/internal/tradelog"
)

// InitializeSystem loads .env and starts logging and tracing. Diagnostics go
// to diag when it is non-nil, otherwise where LOG_OUTPUT points.
func InitializeSystem(diag io.Writer) error {
	_ = godotenv.Load()

	logCfg := logger.LoadConfigFromEnv()
	traceCfg := trace.LoadConfigFromEnv()
	if diag != nil {
		logCfg.Output = diag
		traceCfg.Output = diag
	}
	if err := logger.InitWithConfig(logCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := trace.InitWithConfig(traceCfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	return nil
}

func LoadConfig(ctx context.Context) (*store.Config, error) {
	path := store.ConfigPath()
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", path)
		return nil, err
	}
	if cfg.IsDryRun() {
		logger.Warn(ctx, "Running in DRY_RUN mode - quotes come from static_quotes and order last prices")
	}
	return cfg, nil
}

// Closers collects shutdown hooks in creation order and runs them in reverse.
// Nil entries are skipped.
type Closers []io.Closer

func (c Closers) Close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		if c[i] != nil {
			errs = append(errs, c[i].Close())
		}
	}
	return errors.Join(errs...)
}

func initializeCalendar(ctx context.Context, cfg *store.Config) (*calendar.Calendar, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	session := calendar.Session{CommodityPrefix: cfg.Market.CommodityPrefix}
	for _, f := range []struct {
		raw string
		dst *int
	}{
		{cfg.Market.Open, &session.Open},
		{cfg.Market.Close, &session.Close},
		{cfg.Market.CommodityClose, &session.CommodityClose},
	} {
		if *f.dst, err = calendar.ParseClock(f.raw); err != nil {
			return nil, err
		}
	}
	return calendar.New(loc, LoadHolidays(ctx, cfg), session)
}

// LoadHolidays returns the configured holidays, merged with the scraped
// exchange list when a holiday source is set. A failed scrape keeps the
// configured list.
func LoadHolidays(ctx context.Context, cfg *store.Config) []string {
	src := cfg.Market.HolidaySource
	if src.URL == "" {
		return cfg.Market.Holidays
	}
	fetched, err := calendar.HolidaySource{
		URL:       src.URL,
		RowSelect: src.RowSelector,
		Timeout:   time.Duration(src.TimeoutSeconds) * time.Second,
	}.Fetch(ctx)
	if err != nil {
		logger.Warn(ctx, "Holiday source unavailable, using configured holidays", "error", err.Error())
		return cfg.Market.Holidays
	}
	return calendar.MergeHolidays(cfg.Market.Holidays, fetched)
}

func initializeStore(ctx context.Context, cfg *store.Config) (interfaces.OrderStore, io.Closer, error) {
	switch cfg.Store.Driver {
	case store.DriverMemory:
		logger.Warn(ctx, "Using in-memory order store - nothing is persisted")
		return storeobs.Wrap(memory.New()), nil, nil

	case store.DriverBolt:
		s, err := bolt.Open(cfg.Store.BoltPath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info(ctx, "Using bolt order store", "path", cfg.Store.BoltPath)
		return storeobs.Wrap(s), s, nil

	case store.DriverPostgres:
		dsn := os.Getenv(cfg.Store.DSNEnv)
		if dsn == "" {
			return nil, nil, fmt.Errorf("%s is not set", cfg.Store.DSNEnv)
		}
		s, err := sqlstore.Open(dsn, cfg.Store.Table)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Store.AutoMigrate {
			if err := s.Migrate(ctx); err != nil {
				_ = s.Close()
				return nil, nil, err
			}
		}
		logger.Info(ctx, "Using postgres order store", "table", cfg.Store.Table)
		return storeobs.Wrap(s), s, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

func initializeQuotes(cfg *store.Config) (interfaces.QuoteSource, error) {
	z, err := zerodha.NewZerodha(zerodha.Params{
		Mode:         cfg.Mode,
		APIKey:       os.Getenv("KITE_API_KEY"),
		AccessToken:  os.Getenv("KITE_ACCESS_TOKEN"),
		Exchange:     cfg.Kite.Exchange,
		Timeout:      cfg.QuoteTimeout(),
		StaticQuotes: cfg.Kite.StaticQuotes,
	})
	if err != nil {
		return nil, err
	}
	return brokerobs.Wrap(z), nil
}

// initializeEvents builds the settlement fan-out: the daily journal and
// metrics always, kafka when brokers are configured, plus any extra sinks.
func initializeEvents(ctx context.Context, cfg *store.Config, reg prometheus.Registerer, extra ...interfaces.EventSink) (interfaces.EventSink, io.Closer, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, err
	}
	var cs Closers

	journal, err := tradelog.Open(cfg.Journal.Dir, loc)
	if err != nil {
		return nil, nil, err
	}
	cs = append(cs, journal)

	m := metrics.New()
	if err := m.Register(reg); err != nil {
		_ = cs.Close()
		return nil, nil, err
	}

	sinks := []interfaces.EventSink{journal, m}
	if len(cfg.Events.KafkaBrokers) > 0 {
		k := kafkasink.New(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic)
		cs = append(cs, k)
		sinks = append(sinks, k)
		logger.Info(ctx, "Publishing events to kafka", "topic", cfg.Events.KafkaTopic, "brokers", cfg.Events.KafkaBrokers)
	}
	sinks = append(sinks, extra...)
	return events.Multi(sinks...), cs, nil
}

func initializeEngine(cfg *store.Config, cal *calendar.Calendar, orders interfaces.OrderStore, quotes interfaces.QuoteSource, sink interfaces.EventSink) interfaces.Executor {
	eng := engine.New(engine.Params{
		Calendar:       cal,
		Store:          orders,
		Quotes:         quotes,
		Calculator:     brokerage.New(cfg.Rate()),
		Events:         sink,
		OrderTimeout:   cfg.OrderTimeout(),
		QuoteTimeout:   cfg.QuoteTimeout(),
		StoreTimeout:   cfg.StoreTimeout(),
		PublishTimeout: cfg.PublishTimeout(),
	})
	return engineobs.Wrap(eng)
}

func initializeScheduler(cfg *store.Config, cal *calendar.Calendar, orders interfaces.OrderStore, exec interfaces.Executor, sink interfaces.EventSink) (*scheduler.Scheduler, error) {
	s := scheduler.New(scheduler.Params{
		Calendar:       cal,
		Store:          orders,
		Executor:       exec,
		Events:         sink,
		BatchSize:      cfg.BatchSize,
		Concurrency:    cfg.Concurrency,
		StoreTimeout:   cfg.StoreTimeout(),
		PublishTimeout: cfg.PublishTimeout(),
	})
	jobs, err := scheduler.DefaultJobs(cfg, cal.Location())
	if err != nil {
		return nil, err
	}
	for _, j := range jobs {
		if err := s.Register(j); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// App is the wired service. Close releases the store and event sinks.
type App struct {
	Config    *store.Config
	Calendar  *calendar.Calendar
	Scheduler *scheduler.Scheduler
	Registry  *prometheus.Registry

	closers Closers
}

func (a *App) Close() error {
	return a.closers.Close()
}

// Bootstrap loads config from store.ConfigPath and builds the service. Extra
// sinks receive every event alongside the journal and metrics.
func Bootstrap(ctx context.Context, extra ...interfaces.EventSink) (*App, error) {
	cfg, err := LoadConfig(ctx)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Registry: prometheus.NewRegistry()}

	if a.Calendar, err = initializeCalendar(ctx, cfg); err != nil {
		return nil, err
	}
	orders, storeCloser, err := initializeStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, storeCloser)

	quotes, err := initializeQuotes(cfg)
	if err != nil {
		_ = a.closers.Close()
		return nil, err
	}
	sink, sinkCloser, err := initializeEvents(ctx, cfg, a.Registry, extra...)
	if err != nil {
		_ = a.closers.Close()
		return nil, err
	}
	a.closers = append(a.closers, sinkCloser)

	exec := initializeEngine(cfg, a.Calendar, orders, quotes, sink)
	if a.Scheduler, err = initializeScheduler(cfg, a.Calendar, orders, exec, sink); err != nil {
		_ = a.closers.Close()
		return nil, err
	}
	return a, nil
}
