package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "orderexec.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := DefaultTradingConfig()
	require.NoError(t, cfg.ValidateConfig())

	h := cfg.ToHandlerConfig()
	assert.Equal(t, 10000, h.MaxOrdersToKeep)
	assert.Equal(t, 10*time.Second, h.CashSyncQuietPeriod)
	assert.Equal(t, "100000", cfg.StartingCash().String())
}

func TestLoadMergesFileAndEnvironment(t *testing.T) {
	path := writeFile(t, `
environment: staging
handler:
  live_mode: true
  max_orders_to_keep: 50
  ticket_wait_timeout: 250ms
event_journal:
  file_path: /tmp/orderexec/events.log
kafka:
  enabled: true
  brokers: ["k1:9092", "k2:9092"]
`)
	t.Setenv("ORDEREXEC_LOG_LEVEL", "debug")
	t.Setenv("ORDEREXEC_ACCOUNT_STARTING_CASH", "2500.5")

	cfg, err := Load(nil, path, filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.Handler.LiveMode)
	assert.Equal(t, 50, cfg.Handler.MaxOrdersToKeep)
	assert.Equal(t, 250*time.Millisecond, cfg.Handler.TicketWaitTimeout)
	// untouched keys keep their defaults
	assert.Equal(t, 30*time.Second, cfg.Handler.ExitTimeout)
	assert.Equal(t, "2500.5", cfg.StartingCash().String())

	k := cfg.Kafka.ToKafkaConfig()
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, k.Brokers)
	assert.Equal(t, "orderexec.order-events", k.Topic)

	j := cfg.ToJournalConfig()
	assert.Equal(t, "/tmp/orderexec/events.log", j.FilePath)
	assert.True(t, j.Enabled)
}

func TestValidationRejectsBadValues(t *testing.T) {
	cases := map[string]func(*TradingConfig){
		"environment":     func(c *TradingConfig) { c.Environment = "prod" },
		"currency":        func(c *TradingConfig) { c.Account.Currency = "DOLLARS" },
		"starting cash":   func(c *TradingConfig) { c.Account.StartingCash = "lots" },
		"orders to keep":  func(c *TradingConfig) { c.Handler.MaxOrdersToKeep = 0 },
		"kafka brokers":   func(c *TradingConfig) { c.Kafka.Enabled = true; c.Kafka.Brokers = nil },
		"audit dsn":       func(c *TradingConfig) { c.Audit.Enabled = true; c.Audit.DSN = "" },
		"compression":     func(c *TradingConfig) { c.Kafka.Compression = "brotli" },
		"sync wait":       func(c *TradingConfig) { c.Handler.SyncWaitTimeout = 0 },
		"fee is a number": func(c *TradingConfig) { c.Simulation.FeePerOrder = "one" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultTradingConfig()
			mutate(cfg)
			assert.Error(t, cfg.ValidateConfig())
		})
	}
}

func TestRedisOptions(t *testing.T) {
	r := DefaultTradingConfig().Redis
	r.DB = 2
	opts := r.RedisOptions()
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 10, opts.PoolSize)
}

func TestLoadFailsOnInvalidFile(t *testing.T) {
	path := writeFile(t, "handler:\n  max_orders_to_keep: 0\n")
	_, err := Load(nil, path)
	assert.Error(t, err)
}
