package config

import (
	"time"

	"github.com/Aidin1998/orderexec/internal/trading/messaging"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

// RedisConfig holds the Redis connection used by the order event sink
type RedisConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Addr       string        `mapstructure:"addr" validate:"required_if=Enabled true"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db" validate:"min=0"`
	PoolSize   int           `mapstructure:"pool_size" validate:"min=0"`
	Channel    string        `mapstructure:"channel"`
	Expiration time.Duration `mapstructure:"expiration"`
}

// AuditConfig points the audit trail at a SQLite database
type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn" validate:"required_if=Enabled true"`
}

// RedisOptions builds the go-redis client options.
func (c RedisConfig) RedisOptions() *redis.Options {
	return &redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
		PoolSize: c.PoolSize,
	}
}

// ToKafkaConfig applies the configured brokers and topic to the sink defaults.
func (c KafkaConfig) ToKafkaConfig() messaging.KafkaConfig {
	k := messaging.DefaultKafkaConfig()
	k.Brokers = c.Brokers
	if c.Topic != "" {
		k.Topic = c.Topic
	}
	if c.Compression != "" {
		k.Compression = c.Compression
	}
	return k
}

func setSinkDefaults(v *viper.Viper, d *TradingConfig) {
	v.SetDefault("redis.enabled", d.Redis.Enabled)
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.pool_size", d.Redis.PoolSize)
	v.SetDefault("redis.channel", d.Redis.Channel)
	v.SetDefault("redis.expiration", d.Redis.Expiration)

	v.SetDefault("audit.enabled", d.Audit.Enabled)
	v.SetDefault("audit.dsn", d.Audit.DSN)
}
