// Package config loads server configuration from defaults, an optional
// config file and REGDESK_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	liststrings "regdesk/pkg/platform/strings"
)

type Config struct {
	Server       Server       `mapstructure:"server"`
	Database     Database     `mapstructure:"database"`
	Redis        RedisConfig  `mapstructure:"redis"`
	Kafka        Kafka        `mapstructure:"kafka"`
	Registration Registration `mapstructure:"registration"`
	Logging      Logging      `mapstructure:"logging"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `mapstructure:"addr"`
	JWTSigningKey   string        `mapstructure:"jwt_signing_key"`
	JWTIssuer       string        `mapstructure:"jwt_issuer"`
	JWTAudience     string        `mapstructure:"jwt_audience"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Database configures PostgreSQL. An empty URL selects in-memory stores.
type Database struct {
	URL          string `mapstructure:"url"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// RedisConfig configures the notification client. An empty URL disables it.
type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Channel      string        `mapstructure:"channel"`
}

// Kafka configures the audit outbox relay. No brokers disables the relay;
// audit rows then stay in the outbox table.
type Kafka struct {
	Brokers        []string      `mapstructure:"brokers"`
	AuditTopic     string        `mapstructure:"audit_topic"`
	RelayInterval  time.Duration `mapstructure:"relay_interval"`
	RelayBatchSize int           `mapstructure:"relay_batch_size"`
}

type Registration struct {
	MaxListLimit int           `mapstructure:"max_list_limit"`
	TxTimeout    time.Duration `mapstructure:"tx_timeout"`
	BcryptCost   int           `mapstructure:"bcrypt_cost"`
}

type Logging struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// FromEnv builds the configuration so main stays lean.
func FromEnv() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("regdesk")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/regdesk")

	v.SetEnvPrefix("REGDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Server.CORSOrigins = liststrings.SplitList(cfg.Server.CORSOrigins)
	cfg.Kafka.Brokers = liststrings.SplitList(cfg.Kafka.Brokers)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	// development default; override in production
	v.SetDefault("server.jwt_signing_key", "dev-secret-key-change-in-production")
	v.SetDefault("server.jwt_issuer", "regdesk")
	v.SetDefault("server.jwt_audience", "regdesk-admin")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")
	v.SetDefault("redis.channel", "regdesk:registration")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.audit_topic", "regdesk.audit")
	v.SetDefault("kafka.relay_interval", "1s")
	v.SetDefault("kafka.relay_batch_size", 100)

	v.SetDefault("registration.max_list_limit", 200)
	v.SetDefault("registration.tx_timeout", "5s")
	v.SetDefault("registration.bcrypt_cost", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.json", true)
}

func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Server.JWTSigningKey == "" {
		return errors.New("server.jwt_signing_key is required")
	}
	if c.Registration.MaxListLimit < 1 {
		return errors.New("registration.max_list_limit must be positive")
	}
	if c.Registration.TxTimeout <= 0 {
		return errors.New("registration.tx_timeout must be positive")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.AuditTopic == "" {
		return errors.New("kafka.audit_topic is required when brokers are set")
	}
	return nil
}
