package store

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	DriverMemory   = "memory"
	DriverBolt     = "bolt"
	DriverPostgres = "postgres"
)

// JobConfig is a daily trigger. An empty weekday list fires every day.
type JobConfig struct {
	Enabled  *bool    `yaml:"enabled"`
	Hour     int      `yaml:"hour"`
	Minute   int      `yaml:"minute"`
	Weekdays []string `yaml:"weekdays"`
}

func (j JobConfig) IsEnabled() bool {
	return j.Enabled == nil || *j.Enabled
}

// Days resolves Weekdays to time.Weekday values.
func (j JobConfig) Days() ([]time.Weekday, error) {
	days := make([]time.Weekday, 0, len(j.Weekdays))
	for _, w := range j.Weekdays {
		d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(w))]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", w)
		}
		days = append(days, d)
	}
	return days, nil
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

func weekdaysOnly() []string {
	return []string{"mon", "tue", "wed", "thu", "fri"}
}

type Config struct {
	Mode          string  `yaml:"mode"`
	Timezone      string  `yaml:"timezone"`
	BrokerageRate float64 `yaml:"brokerage_rate"`
	BatchSize     int     `yaml:"batch_size"`
	Concurrency   int     `yaml:"concurrency"`

	OrderTimeoutSeconds int `yaml:"order_timeout_seconds"`
	QuoteTimeoutSeconds int `yaml:"quote_timeout_seconds"`
	StoreTimeoutSeconds int `yaml:"store_timeout_seconds"`
	// PublishTimeoutSeconds bounds each event publish after an attempt finishes.
	PublishTimeoutSeconds int `yaml:"publish_timeout_seconds"`

	Market struct {
		Open            string   `yaml:"open"`
		Close           string   `yaml:"close"`
		CommodityClose  string   `yaml:"commodity_close"`
		CommodityPrefix string   `yaml:"commodity_prefix"`
		Holidays        []string `yaml:"holidays"`
		HolidaySource   struct {
			URL            string `yaml:"url"`
			RowSelector    string `yaml:"row_selector"`
			TimeoutSeconds int    `yaml:"timeout_seconds"`
		} `yaml:"holiday_source"`
	} `yaml:"market"`

	Jobs struct {
		IntradaySquareoff  JobConfig `yaml:"intraday_squareoff"`
		CommoditySquareoff JobConfig `yaml:"commodity_squareoff"`
		MidnightCleanup    JobConfig `yaml:"midnight_cleanup"`
	} `yaml:"jobs"`

	Store struct {
		Driver   string `yaml:"driver"`
		BoltPath string `yaml:"bolt_path"`
		DSNEnv   string `yaml:"dsn_env"`
		Table    string `yaml:"table"`
		// AutoMigrate creates or extends the orders table on startup.
		AutoMigrate bool `yaml:"auto_migrate"`
	} `yaml:"store"`

	Kite struct {
		Exchange     string             `yaml:"exchange"`
		StaticQuotes map[string]float64 `yaml:"static_quotes"`
	} `yaml:"kite"`

	Events struct {
		KafkaBrokers []string `yaml:"kafka_brokers"`
		KafkaTopic   string   `yaml:"kafka_topic"`
	} `yaml:"events"`

	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`

	Journal struct {
		Dir           string `yaml:"dir"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"journal"`
}

func (c *Config) Validate() error {
	if c.Mode != "DRY_RUN" && c.Mode != "LIVE" {
		return fmt.Errorf("invalid mode '%s': must be 'DRY_RUN' or 'LIVE'", c.Mode)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone '%s': %w", c.Timezone, err)
	}
	if math.IsNaN(c.BrokerageRate) || c.BrokerageRate < 0 || c.BrokerageRate >= 1 {
		return fmt.Errorf("brokerage_rate must be in [0, 1), got %v", c.BrokerageRate)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive, got %d", c.Concurrency)
	}
	if c.OrderTimeoutSeconds < 0 || c.QuoteTimeoutSeconds < 0 || c.StoreTimeoutSeconds < 0 || c.PublishTimeoutSeconds < 0 {
		return errors.New("timeouts must not be negative")
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverBolt:
		if c.Store.BoltPath == "" {
			return errors.New("store.bolt_path is required for the bolt driver")
		}
	case DriverPostgres:
		if c.Store.DSNEnv == "" {
			return errors.New("store.dsn_env is required for the postgres driver")
		}
	default:
		return fmt.Errorf("store.driver must be 'memory', 'bolt' or 'postgres', got '%s'", c.Store.Driver)
	}
	if len(c.Events.KafkaBrokers) > 0 && c.Events.KafkaTopic == "" {
		return errors.New("events.kafka_topic is required when kafka_brokers is set")
	}
	jobs := map[string]JobConfig{
		"intraday_squareoff":  c.Jobs.IntradaySquareoff,
		"commodity_squareoff": c.Jobs.CommoditySquareoff,
		"midnight_cleanup":    c.Jobs.MidnightCleanup,
	}
	for name, j := range jobs {
		if j.Hour < 0 || j.Hour > 23 || j.Minute < 0 || j.Minute > 59 {
			return fmt.Errorf("jobs.%s: invalid time %02d:%02d", name, j.Hour, j.Minute)
		}
		if _, err := j.Days(); err != nil {
			return fmt.Errorf("jobs.%s: %w", name, err)
		}
	}
	return nil
}

func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

func (c *Config) Rate() decimal.Decimal {
	return decimal.NewFromFloat(c.BrokerageRate)
}

func (c *Config) OrderTimeout() time.Duration {
	return time.Duration(c.OrderTimeoutSeconds) * time.Second
}

func (c *Config) QuoteTimeout() time.Duration {
	return time.Duration(c.QuoteTimeoutSeconds) * time.Second
}

func (c *Config) StoreTimeout() time.Duration {
	return time.Duration(c.StoreTimeoutSeconds) * time.Second
}

func (c *Config) PublishTimeout() time.Duration {
	return time.Duration(c.PublishTimeoutSeconds) * time.Second
}

func (c *Config) IsDryRun() bool {
	return c.Mode == "DRY_RUN"
}

// ConfigPath returns SQUAREOFF_CONFIG or config.yaml.
func ConfigPath() string {
	if p := os.Getenv("SQUAREOFF_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(b)
}

// ParseConfig decodes b over DefaultConfig, so keys missing from the file
// keep their defaults while explicit zero values (hour 0, rate 0) stand.
func ParseConfig(b []byte) (*Config, error) {
	c := DefaultConfig()
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}

func DefaultConfig() Config {
	var c Config
	c.Mode = "DRY_RUN"
	c.Timezone = "Asia/Kolkata"
	c.BrokerageRate = 0.0001
	c.BatchSize = 1000
	c.Concurrency = 8
	c.OrderTimeoutSeconds = 10
	c.QuoteTimeoutSeconds = 3
	c.StoreTimeoutSeconds = 5
	c.PublishTimeoutSeconds = 2

	c.Market.Open = "09:15"
	c.Market.Close = "15:15"
	c.Market.CommodityClose = "23:15"
	c.Market.CommodityPrefix = "MCX"
	c.Market.HolidaySource.RowSelector = "table tr"
	c.Market.HolidaySource.TimeoutSeconds = 15

	c.Jobs.IntradaySquareoff = JobConfig{Hour: 15, Minute: 15, Weekdays: weekdaysOnly()}
	c.Jobs.CommoditySquareoff = JobConfig{Hour: 23, Minute: 15, Weekdays: weekdaysOnly()}
	c.Jobs.MidnightCleanup = JobConfig{Hour: 0, Minute: 2}

	c.Store.Driver = DriverBolt
	c.Store.BoltPath = "data/orders.db"
	c.Store.DSNEnv = "SQUAREOFF_POSTGRES_DSN"
	c.Store.Table = "orders"
	c.Kite.Exchange = "NSE"
	c.Journal.Dir = "data/journal"
	c.Journal.RetentionDays = 7
	return c
}
