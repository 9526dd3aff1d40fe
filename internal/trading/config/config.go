// Package config loads the order-execution service configuration from YAML
// files and ORDEREXEC_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Aidin1998/orderexec/internal/trading/eventjournal"
	"github.com/Aidin1998/orderexec/internal/trading/transaction"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// EnvPrefix is prepended to every environment override, e.g.
// ORDEREXEC_HANDLER_LIVE_MODE.
const EnvPrefix = "ORDEREXEC"

// TradingConfig holds configuration for the order-execution service
type TradingConfig struct {
	Environment    string `mapstructure:"environment" validate:"required,oneof=development staging production"`
	LogLevel       string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	SecuritiesFile string `mapstructure:"securities_file"`

	HTTP         HTTPConfig         `mapstructure:"http"`
	Handler      HandlerConfig      `mapstructure:"handler"`
	Account      AccountConfig      `mapstructure:"account"`
	Simulation   SimulationConfig   `mapstructure:"simulation"`
	QueueJournal QueueJournalConfig `mapstructure:"queue_journal"`
	EventJournal EventJournalConfig `mapstructure:"event_journal"`
	Kafka        KafkaConfig        `mapstructure:"kafka"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Audit        AuditConfig        `mapstructure:"audit"`
}

type HTTPConfig struct {
	Addr         string        `mapstructure:"addr" validate:"required"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
}

// HandlerConfig mirrors transaction.Config plus the sync loop period.
type HandlerConfig struct {
	TicketWaitTimeout   time.Duration `mapstructure:"ticket_wait_timeout" validate:"gt=0"`
	ExitTimeout         time.Duration `mapstructure:"exit_timeout" validate:"gt=0"`
	SyncWaitTimeout     time.Duration `mapstructure:"sync_wait_timeout" validate:"gt=0"`
	SyncInterval        time.Duration `mapstructure:"sync_interval" validate:"gt=0"`
	LiveMode            bool          `mapstructure:"live_mode"`
	MaxOrdersToKeep     int           `mapstructure:"max_orders_to_keep" validate:"min=1"`
	CashSyncInterval    time.Duration `mapstructure:"cash_sync_interval" validate:"gt=0"`
	CashSyncQuietPeriod time.Duration `mapstructure:"cash_sync_quiet_period" validate:"gt=0"`
	MaxCashSyncAttempts int           `mapstructure:"max_cash_sync_attempts" validate:"min=1"`
}

type AccountConfig struct {
	Currency     string `mapstructure:"currency" validate:"required,len=3"`
	StartingCash string `mapstructure:"starting_cash" validate:"required,numeric"`
	// CashBuyingPower enables the cash-account buying power check.
	CashBuyingPower bool `mapstructure:"cash_buying_power"`
}

// SimulationConfig configures the simulated venue.
type SimulationConfig struct {
	StalePriceSpan time.Duration `mapstructure:"stale_price_span"`
	FeePerOrder    string        `mapstructure:"fee_per_order" validate:"omitempty,numeric"`
	FeePerUnit     string        `mapstructure:"fee_per_unit" validate:"omitempty,numeric"`
	SlippagePct    string        `mapstructure:"slippage_pct" validate:"omitempty,numeric"`
}

type QueueJournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir" validate:"required_if=Enabled true"`
}

type EventJournalConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	FilePath      string `mapstructure:"file_path" validate:"required_if=Enabled true"`
	MaxSizeBytes  int64  `mapstructure:"max_size_bytes" validate:"min=0"`
	MaxBackups    int    `mapstructure:"max_backups" validate:"min=0"`
	MaxAgeDays    int    `mapstructure:"max_age_days" validate:"min=0"`
	SyncEachWrite bool   `mapstructure:"sync_each_write"`
}

type KafkaConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Brokers     []string `mapstructure:"brokers" validate:"required_if=Enabled true"`
	Topic       string   `mapstructure:"topic"`
	Compression string   `mapstructure:"compression" validate:"omitempty,oneof=gzip snappy lz4 zstd"`
}

// DefaultTradingConfig returns a configuration for a local backtest.
func DefaultTradingConfig() *TradingConfig {
	return &TradingConfig{
		Environment: "development",
		LogLevel:    "info",
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Handler: HandlerConfig{
			TicketWaitTimeout:   time.Second,
			ExitTimeout:         30 * time.Second,
			SyncWaitTimeout:     10 * time.Second,
			SyncInterval:        time.Second,
			MaxOrdersToKeep:     10000,
			CashSyncInterval:    24 * time.Hour,
			CashSyncQuietPeriod: 10 * time.Second,
			MaxCashSyncAttempts: 5,
		},
		Account: AccountConfig{
			Currency:     "USD",
			StartingCash: "100000",
		},
		Simulation: SimulationConfig{
			StalePriceSpan: time.Hour,
		},
		QueueJournal: QueueJournalConfig{
			Dir: "data/orderexec/queue",
		},
		EventJournal: EventJournalConfig{
			Enabled:       true,
			FilePath:      "data/orderexec/events.log",
			MaxSizeBytes:  100 * 1024 * 1024, // 100MB
			MaxBackups:    10,
			MaxAgeDays:    30,
			SyncEachWrite: true,
		},
		Kafka: KafkaConfig{
			Brokers:     []string{"localhost:9092"},
			Topic:       "orderexec.order-events",
			Compression: "snappy",
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			Channel:    "orderexec:order_events",
			Expiration: 24 * time.Hour,
		},
		Audit: AuditConfig{
			DSN: "data/orderexec/audit.db",
		},
	}
}

// Load merges the defaults, every existing file in paths and the
// environment, then validates the result. Missing files are skipped.
func Load(logger *zap.Logger, paths ...string) (*TradingConfig, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultTradingConfig())

	var loaded []string
	for _, path := range paths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			logger.Debug("Config file not found, skipping", zap.String("path", path))
			continue
		}
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
		loaded = append(loaded, path)
	}
	if len(loaded) == 0 {
		logger.Warn("No configuration files found, using defaults and environment variables")
	} else {
		logger.Info("Loaded configuration files", zap.Strings("files", loaded))
	}

	var cfg TradingConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.ValidateConfig(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every key so environment overrides apply even when
// no file mentions the key.
func setDefaults(v *viper.Viper, d *TradingConfig) {
	v.SetDefault("environment", d.Environment)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("securities_file", d.SecuritiesFile)

	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("http.read_timeout", d.HTTP.ReadTimeout)
	v.SetDefault("http.write_timeout", d.HTTP.WriteTimeout)

	v.SetDefault("handler.ticket_wait_timeout", d.Handler.TicketWaitTimeout)
	v.SetDefault("handler.exit_timeout", d.Handler.ExitTimeout)
	v.SetDefault("handler.sync_wait_timeout", d.Handler.SyncWaitTimeout)
	v.SetDefault("handler.sync_interval", d.Handler.SyncInterval)
	v.SetDefault("handler.live_mode", d.Handler.LiveMode)
	v.SetDefault("handler.max_orders_to_keep", d.Handler.MaxOrdersToKeep)
	v.SetDefault("handler.cash_sync_interval", d.Handler.CashSyncInterval)
	v.SetDefault("handler.cash_sync_quiet_period", d.Handler.CashSyncQuietPeriod)
	v.SetDefault("handler.max_cash_sync_attempts", d.Handler.MaxCashSyncAttempts)

	v.SetDefault("account.currency", d.Account.Currency)
	v.SetDefault("account.starting_cash", d.Account.StartingCash)
	v.SetDefault("account.cash_buying_power", d.Account.CashBuyingPower)

	v.SetDefault("simulation.stale_price_span", d.Simulation.StalePriceSpan)
	v.SetDefault("simulation.fee_per_order", d.Simulation.FeePerOrder)
	v.SetDefault("simulation.fee_per_unit", d.Simulation.FeePerUnit)
	v.SetDefault("simulation.slippage_pct", d.Simulation.SlippagePct)

	v.SetDefault("queue_journal.enabled", d.QueueJournal.Enabled)
	v.SetDefault("queue_journal.dir", d.QueueJournal.Dir)

	v.SetDefault("event_journal.enabled", d.EventJournal.Enabled)
	v.SetDefault("event_journal.file_path", d.EventJournal.FilePath)
	v.SetDefault("event_journal.max_size_bytes", d.EventJournal.MaxSizeBytes)
	v.SetDefault("event_journal.max_backups", d.EventJournal.MaxBackups)
	v.SetDefault("event_journal.max_age_days", d.EventJournal.MaxAgeDays)
	v.SetDefault("event_journal.sync_each_write", d.EventJournal.SyncEachWrite)

	v.SetDefault("kafka.enabled", d.Kafka.Enabled)
	v.SetDefault("kafka.brokers", d.Kafka.Brokers)
	v.SetDefault("kafka.topic", d.Kafka.Topic)
	v.SetDefault("kafka.compression", d.Kafka.Compression)

	setSinkDefaults(v, d)
}

var validate = validator.New()

// ValidateConfig validates the trading configuration
func (c *TradingConfig) ValidateConfig() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	if _, err := decimal.NewFromString(c.Account.StartingCash); err != nil {
		return fmt.Errorf("account.starting_cash: %w", err)
	}
	return nil
}

// ToHandlerConfig converts to the transaction handler's settings.
func (c *TradingConfig) ToHandlerConfig() transaction.Config {
	h := c.Handler
	return transaction.Config{
		TicketWaitTimeout:   h.TicketWaitTimeout,
		ExitTimeout:         h.ExitTimeout,
		SyncWaitTimeout:     h.SyncWaitTimeout,
		LiveMode:            h.LiveMode,
		MaxOrdersToKeep:     h.MaxOrdersToKeep,
		CashSyncInterval:    h.CashSyncInterval,
		CashSyncQuietPeriod: h.CashSyncQuietPeriod,
		MaxCashSyncAttempts: h.MaxCashSyncAttempts,
	}
}

// ToJournalConfig converts to the event journal's settings.
func (c *TradingConfig) ToJournalConfig() eventjournal.Config {
	j := c.EventJournal
	return eventjournal.Config{
		FilePath:      j.FilePath,
		MaxSizeBytes:  j.MaxSizeBytes,
		MaxBackups:    j.MaxBackups,
		MaxAgeDays:    j.MaxAgeDays,
		Enabled:       j.Enabled,
		SyncEachWrite: j.SyncEachWrite,
	}
}

// StartingCash is the parsed account.starting_cash.
func (c *TradingConfig) StartingCash() decimal.Decimal {
	d, _ := decimal.NewFromString(c.Account.StartingCash)
	return d
}
