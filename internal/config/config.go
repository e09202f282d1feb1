package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development" validate:"required,oneof=development staging production"`

	Server     ServerConfig
	Redis      RedisConfig
	Scylla     ScyllaConfig
	Kafka      KafkaConfig
	Clickhouse ClickhouseConfig
	Provider   ProviderConfig
	Session    SessionConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Port         int           `env:"SERVER_PORT" envDefault:"8080" validate:"min=1,max=65535"`
	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"60s"`
}

type RedisConfig struct {
	URL      string `env:"REDIS_URL" envDefault:"redis://localhost:6379" validate:"required"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	PoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"50" validate:"min=1"`
}

type ScyllaConfig struct {
	Nodes    []string `env:"SCYLLA_NODES" envDefault:"localhost:9042" validate:"min=1"`
	Keyspace string   `env:"SCYLLA_KEYSPACE" envDefault:"guest_access" validate:"required"`
	Username string   `env:"SCYLLA_USERNAME"`
	Password string   `env:"SCYLLA_PASSWORD"`
}

type KafkaConfig struct {
	Brokers     []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	EventsTopic string   `env:"KAFKA_EVENTS_TOPIC" envDefault:"guest-access-events"`
}

type ClickhouseConfig struct {
	URL      string `env:"CLICKHOUSE_URL" envDefault:"localhost:9000"`
	Database string `env:"CLICKHOUSE_DATABASE" envDefault:"guest_access"`
	Username string `env:"CLICKHOUSE_USERNAME" envDefault:"default"`
	Password string `env:"CLICKHOUSE_PASSWORD"`
}

type ProviderConfig struct {
	BaseURL string        `env:"IDENTITY_PROVIDER_URL" envDefault:"http://localhost:9100"`
	APIKey  string        `env:"IDENTITY_PROVIDER_API_KEY"`
	Timeout time.Duration `env:"IDENTITY_PROVIDER_TIMEOUT" envDefault:"10s"`
}

type SessionConfig struct {
	// SigningKey protects the guest session cookie against tampering.
	SigningKey string        `env:"SESSION_SIGNING_KEY,required" validate:"required,min=32"`
	TTL        time.Duration `env:"SESSION_TTL" envDefault:"4h"`
	Secure     bool          `env:"SESSION_COOKIE_SECURE" envDefault:"true"`
}

type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error fatal"`
	Format string `env:"LOG_FORMAT" envDefault:"json" validate:"oneof=json console"`
}

// Load reads configuration from the environment, honoring a local .env file
// when present (development convenience, never required).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
