package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const minimalConfig = `
database:
  host: localhost
  user: scheduler
  dbname: scheduler
redis:
  url: redis://localhost:6379
publish:
  gateway_url: https://gateway.example.com
`

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultServerAddress, cfg.Server.Address)
	assert.Equal(t, DefaultReadTimeout, cfg.Server.ReadTimeout)
	assert.Equal(t, DefaultWriteTimeout, cfg.Server.WriteTimeout)
	assert.Equal(t, "5432", cfg.Database.Port)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, DefaultPollInterval, cfg.Worker.PollInterval)
	assert.Equal(t, DefaultBatchSize, cfg.Worker.BatchSize)
	assert.Equal(t, DefaultMaxConcurrent, cfg.Worker.MaxConcurrent)
	assert.Equal(t, DefaultStaleClaimAge, cfg.Worker.StaleClaimAge)
	assert.Equal(t, DefaultScheduleMaxRetries, cfg.Worker.MaxRetries)
	assert.Equal(t, DefaultPublishTimeout, cfg.Publish.Timeout)
	assert.Equal(t, DefaultPublishRatePerSecond, cfg.Publish.RatePerSecond)
}

func TestLoadExplicitValues(t *testing.T) {
	path := writeConfig(t, `
debug: true
server:
  address: ":9090"
database:
  host: db.internal
  port: "5433"
  user: scheduler
  dbname: scheduler
  sslmode: require
redis:
  url: redis://redis.internal:6379
  db: 2
worker:
  poll_interval: 30s
  batch_size: 10
publish:
  gateway_url: https://gateway.example.com
  timeout: 5s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Debug)
	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "5433", cfg.Database.Port)
	assert.Equal(t, "require", cfg.Database.SSLMode)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, 30*time.Second, cfg.Worker.PollInterval)
	assert.Equal(t, 10, cfg.Worker.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.Publish.Timeout)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SCHEDULER_DB_PASSWORD", "db-secret")
	t.Setenv("SCHEDULER_REDIS_PASSWORD", "redis-secret")
	t.Setenv("SCHEDULER_PUBLISHER_TOKEN", "gateway-token")

	path := writeConfig(t, minimalConfig)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "db-secret", cfg.Database.Password)
	assert.Equal(t, "redis-secret", cfg.Redis.Password)
	assert.Equal(t, "gateway-token", cfg.Publish.GatewayToken)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeConfig(t, "database: [not a map")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing database host",
			mutate:  func(c *Config) { c.Database.Host = "" },
			wantErr: "database.host",
		},
		{
			name:    "missing database user",
			mutate:  func(c *Config) { c.Database.User = "" },
			wantErr: "database.user",
		},
		{
			name:    "missing dbname",
			mutate:  func(c *Config) { c.Database.DBName = "" },
			wantErr: "database.dbname",
		},
		{
			name:    "missing redis url",
			mutate:  func(c *Config) { c.Redis.URL = "" },
			wantErr: "redis.url",
		},
		{
			name:    "missing gateway url",
			mutate:  func(c *Config) { c.Publish.GatewayURL = "" },
			wantErr: "publish.gateway_url",
		},
		{
			name:    "negative poll interval",
			mutate:  func(c *Config) { c.Worker.PollInterval = -time.Second },
			wantErr: "worker.poll_interval",
		},
		{
			name:    "negative batch size",
			mutate:  func(c *Config) { c.Worker.BatchSize = -1 },
			wantErr: "worker.batch_size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Database: DatabaseConfig{Host: "localhost", User: "u", DBName: "d"},
				Redis:    RedisConfig{URL: "redis://localhost:6379"},
				Publish:  PublishConfig{GatewayURL: "https://g", Timeout: time.Second},
				Worker: WorkerConfig{
					PollInterval:  time.Minute,
					BatchSize:     10,
					MaxConcurrent: 2,
				},
			}
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
