// Package config loads and validates the scheduler configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultServerAddress is the default API listen address.
	DefaultServerAddress = ":8080"

	// DefaultReadTimeout is the default HTTP read timeout.
	DefaultReadTimeout = 10 * time.Second

	// DefaultWriteTimeout is the default HTTP write timeout.
	DefaultWriteTimeout = 30 * time.Second

	// DefaultPollInterval is the dispatcher wake interval.
	DefaultPollInterval = 5 * time.Minute

	// DefaultBatchSize caps the number of entries claimed per poll.
	DefaultBatchSize = 50

	// DefaultMaxConcurrent caps concurrent entry dispatches within a batch.
	DefaultMaxConcurrent = 4

	// DefaultStaleClaimAge is how long a claim may sit in dispatching
	// before recovery releases it.
	DefaultStaleClaimAge = 10 * time.Minute

	// DefaultScheduleMaxRetries is the per-entry retry limit.
	DefaultScheduleMaxRetries = 5

	// DefaultPublishTimeout bounds one call to an external publisher.
	DefaultPublishTimeout = 15 * time.Second

	// DefaultPublishMaxConcurrent caps in-flight publishes per dispatch.
	DefaultPublishMaxConcurrent = 5

	// DefaultPublishRatePerSecond caps outbound publisher calls.
	DefaultPublishRatePerSecond = 10
)

// Config is the root configuration.
type Config struct {
	Debug    bool           `yaml:"debug"` // Controls log level and format
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Worker   WorkerConfig   `yaml:"worker"`
	Publish  PublishConfig  `yaml:"publish"`
}

// ServerConfig configures the operational HTTP server.
type ServerConfig struct {
	Address      string        `yaml:"address"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// RedisConfig configures the notification/audit sink transport.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// WorkerConfig configures the dispatch loop.
type WorkerConfig struct {
	PollInterval  time.Duration `yaml:"poll_interval"`
	BatchSize     int           `yaml:"batch_size"`
	MaxConcurrent int           `yaml:"max_concurrent"`
	StaleClaimAge time.Duration `yaml:"stale_claim_age"`
	MaxRetries    int           `yaml:"max_retries"`
}

// PublishConfig configures outbound publisher calls.
type PublishConfig struct {
	GatewayURL    string        `yaml:"gateway_url"`
	GatewayToken  string        `yaml:"gateway_token"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxConcurrent int           `yaml:"max_concurrent"`
	RatePerSecond int           `yaml:"rate_per_second"`
}

// Load reads configuration from a YAML file, applies environment overrides
// for secrets, sets defaults, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if unmarshalErr := yaml.Unmarshal(data, &cfg); unmarshalErr != nil {
		return nil, fmt.Errorf("parse config file: %w", unmarshalErr)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if validateErr := cfg.Validate(); validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return &cfg, nil
}

// applyEnvOverrides lets deployments keep secrets out of the config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SCHEDULER_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("SCHEDULER_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SCHEDULER_PUBLISHER_TOKEN"); v != "" {
		cfg.Publish.GatewayToken = v
	}
}

func setDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = DefaultServerAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Database.Port == "" {
		cfg.Database.Port = "5432"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Worker.PollInterval == 0 {
		cfg.Worker.PollInterval = DefaultPollInterval
	}
	if cfg.Worker.BatchSize == 0 {
		cfg.Worker.BatchSize = DefaultBatchSize
	}
	if cfg.Worker.MaxConcurrent == 0 {
		cfg.Worker.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.Worker.StaleClaimAge == 0 {
		cfg.Worker.StaleClaimAge = DefaultStaleClaimAge
	}
	if cfg.Worker.MaxRetries == 0 {
		cfg.Worker.MaxRetries = DefaultScheduleMaxRetries
	}
	if cfg.Publish.Timeout == 0 {
		cfg.Publish.Timeout = DefaultPublishTimeout
	}
	if cfg.Publish.MaxConcurrent == 0 {
		cfg.Publish.MaxConcurrent = DefaultPublishMaxConcurrent
	}
	if cfg.Publish.RatePerSecond == 0 {
		cfg.Publish.RatePerSecond = DefaultPublishRatePerSecond
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return errors.New("database.host is required")
	}
	if c.Database.User == "" {
		return errors.New("database.user is required")
	}
	if c.Database.DBName == "" {
		return errors.New("database.dbname is required")
	}
	if c.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if c.Publish.GatewayURL == "" {
		return errors.New("publish.gateway_url is required")
	}
	if c.Worker.PollInterval <= 0 {
		return fmt.Errorf("worker.poll_interval must be positive, got %v", c.Worker.PollInterval)
	}
	if c.Worker.BatchSize <= 0 {
		return fmt.Errorf("worker.batch_size must be positive, got %d", c.Worker.BatchSize)
	}
	if c.Worker.MaxConcurrent <= 0 {
		return fmt.Errorf("worker.max_concurrent must be positive, got %d", c.Worker.MaxConcurrent)
	}
	if c.Publish.Timeout <= 0 {
		return fmt.Errorf("publish.timeout must be positive, got %v", c.Publish.Timeout)
	}
	return nil
}
