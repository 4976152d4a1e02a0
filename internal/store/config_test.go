package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigDefaults(t *testing.T) {
	c, err := ParseConfig([]byte("mode: DRY_RUN\n"))
	require.NoError(t, err)

	assert.Equal(t, "Asia/Kolkata", c.Timezone)
	assert.Equal(t, 1000, c.BatchSize)
	assert.Equal(t, "0.0001", c.Rate().String())
	assert.Equal(t, 3*time.Second, c.QuoteTimeout())
	assert.Equal(t, "09:15", c.Market.Open)
	assert.Equal(t, "23:15", c.Market.CommodityClose)
	assert.Equal(t, DriverBolt, c.Store.Driver)
	assert.Equal(t, 15, c.Jobs.IntradaySquareoff.Hour)
	assert.Equal(t, 2, c.Jobs.MidnightCleanup.Minute)
	assert.Empty(t, c.Jobs.MidnightCleanup.Weekdays)
	assert.True(t, c.IsDryRun())

	days, err := c.Jobs.CommoditySquareoff.Days()
	require.NoError(t, err)
	assert.Equal(t, []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}, days)
}

func TestParseConfigOverrides(t *testing.T) {
	raw := `
mode: LIVE
batch_size: 50
store:
  driver: postgres
jobs:
  intraday_squareoff:
    hour: 15
    minute: 20
    weekdays: [Monday, fri]
  commodity_squareoff:
    enabled: false
market:
  holidays: ["2026-10-20"]
`
	c, err := ParseConfig([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, 50, c.BatchSize)
	assert.Equal(t, "SQUAREOFF_POSTGRES_DSN", c.Store.DSNEnv)
	assert.Equal(t, 20, c.Jobs.IntradaySquareoff.Minute)
	assert.False(t, c.Jobs.CommoditySquareoff.IsEnabled())
	assert.True(t, c.Jobs.MidnightCleanup.IsEnabled())
	assert.Equal(t, []string{"2026-10-20"}, c.Market.Holidays)
}

func TestPartialJobKeepsDefaults(t *testing.T) {
	raw := `
jobs:
  intraday_squareoff:
    enabled: true
  commodity_squareoff:
    minute: 30
  midnight_cleanup:
    hour: 0
    minute: 0
`
	c, err := ParseConfig([]byte(raw))
	require.NoError(t, err)

	intraday := c.Jobs.IntradaySquareoff
	assert.True(t, intraday.IsEnabled())
	assert.Equal(t, 15, intraday.Hour)
	assert.Equal(t, 15, intraday.Minute)
	days, err := intraday.Days()
	require.NoError(t, err)
	assert.Equal(t, []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}, days)

	assert.Equal(t, 23, c.Jobs.CommoditySquareoff.Hour)
	assert.Equal(t, 30, c.Jobs.CommoditySquareoff.Minute)
	assert.Len(t, c.Jobs.CommoditySquareoff.Weekdays, 5)

	assert.Equal(t, 0, c.Jobs.MidnightCleanup.Hour)
	assert.Equal(t, 0, c.Jobs.MidnightCleanup.Minute)
}

func TestEmptyWeekdaysMeansDaily(t *testing.T) {
	c, err := ParseConfig([]byte("jobs:\n  intraday_squareoff:\n    weekdays: []\n"))
	require.NoError(t, err)
	assert.Empty(t, c.Jobs.IntradaySquareoff.Weekdays)
	assert.Equal(t, 15, c.Jobs.IntradaySquareoff.Hour)
}

func TestExplicitZeroValuesStand(t *testing.T) {
	c, err := ParseConfig([]byte("brokerage_rate: 0\nquote_timeout_seconds: 0\n"))
	require.NoError(t, err)
	assert.True(t, c.Rate().IsZero())
	assert.Equal(t, time.Duration(0), c.QuoteTimeout())
	assert.Equal(t, 2*time.Second, c.PublishTimeout())
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"mode":     "mode: PAPER\n",
		"timezone": "timezone: Mars/Olympus\n",
		"driver":   "store:\n  driver: mongo\n",
		"weekday":  "jobs:\n  intraday_squareoff:\n    hour: 15\n    weekdays: [funday]\n",
		"hour":     "jobs:\n  midnight_cleanup:\n    hour: 24\n",
		"kafka":    "events:\n  kafka_brokers: [localhost:9092]\n",
		"rate":     "brokerage_rate: -0.1\n",
		"rate nan": "brokerage_rate: .nan\n",
		"rate inf": "brokerage_rate: .inf\n",
		"timeout":  "publish_timeout_seconds: -1\n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfig([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mode: DRY_RUN\nconcurrency: 2\n"), 0o644))

	c, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Concurrency)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfigPathFromEnv(t *testing.T) {
	t.Setenv("SQUAREOFF_CONFIG", "/etc/squareoff.yaml")
	assert.Equal(t, "/etc/squareoff.yaml", ConfigPath())

	t.Setenv("SQUAREOFF_CONFIG", "")
	assert.Equal(t, "config.yaml", ConfigPath())
}

func TestExampleConfigLoads(t *testing.T) {
	c, err := LoadConfig(filepath.Join("..", "..", "config.example.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DriverBolt, c.Store.Driver)
	assert.Equal(t, ":9108", c.Metrics.Addr)
	assert.Len(t, c.Market.Holidays, 2)
}
