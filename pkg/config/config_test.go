package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("LUMEN_TEST_STR", "custom")
	t.Setenv("LUMEN_TEST_BOOL", "1")
	t.Setenv("LUMEN_TEST_INT", "42")
	t.Setenv("LUMEN_TEST_BAD_INT", "forty-two")
	t.Setenv("LUMEN_TEST_DURATION", "250ms")
	t.Setenv("LUMEN_TEST_FLOAT", "0.25")

	assert.Equal(t, "custom", getEnv("LUMEN_TEST_STR", "default"))
	assert.Equal(t, "default", getEnv("LUMEN_TEST_UNSET", "default"))
	assert.True(t, getEnvBool("LUMEN_TEST_BOOL", false))
	assert.Equal(t, 42, getEnvInt("LUMEN_TEST_INT", 0))
	assert.Equal(t, 7, getEnvInt("LUMEN_TEST_BAD_INT", 7))
	assert.Equal(t, int64(42), getEnvInt64("LUMEN_TEST_INT", 0))
	assert.Equal(t, 250*time.Millisecond, getEnvDuration("LUMEN_TEST_DURATION", time.Second))
	assert.Equal(t, 0.25, getEnvFloat("LUMEN_TEST_FLOAT", 1))
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Webhooks.Timeout)
	assert.Equal(t, 10, cfg.Webhooks.DisableThreshold)
	assert.Equal(t, 5, cfg.Webhooks.MaxPerOrg)
	assert.Equal(t, 3, cfg.Webhooks.MaxAttempts)
	assert.Equal(t, "@every 5m", cfg.Metering.LimiterSweepSchedule)
	assert.Equal(t, "memory", cfg.ResolvedUsageBackend())
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("LUMEN_HTTP_ADDR", ":9000")
	t.Setenv("LUMEN_POSTGRES_URL", "postgres://localhost/lumen?sslmode=disable")
	t.Setenv("LUMEN_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("LUMEN_SHARED_RATE_LIMITS", "true")
	t.Setenv("LUMEN_WEBHOOK_TIMEOUT", "5s")
	t.Setenv("LUMEN_LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "postgres", cfg.ResolvedUsageBackend())
	assert.True(t, cfg.Storage.SharedRateLimits)
	assert.Equal(t, 5*time.Second, cfg.Webhooks.Timeout)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Addr: ":8080"},
			Metering: MeteringConfig{LimiterSweepSchedule: "@every 5m", MaxAPIKeysPerOrg: 10},
			Webhooks: WebhookConfig{Timeout: 10 * time.Second, MaxAttempts: 3, DisableThreshold: 10, MaxPerOrg: 5, Concurrency: 4},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing addr", mutate: func(c *Config) { c.Server.Addr = "" }, wantErr: "http address"},
		{name: "unknown usage backend", mutate: func(c *Config) { c.Storage.UsageBackend = "dynamo" }, wantErr: "invalid usage backend"},
		{name: "postgres backend without url", mutate: func(c *Config) { c.Storage.UsageBackend = "postgres" }, wantErr: "postgres URL"},
		{name: "redis backend without url", mutate: func(c *Config) { c.Storage.UsageBackend = "redis" }, wantErr: "redis URL"},
		{name: "shared limits without redis", mutate: func(c *Config) { c.Storage.SharedRateLimits = true }, wantErr: "shared rate limits"},
		{name: "zero webhook timeout", mutate: func(c *Config) { c.Webhooks.Timeout = 0 }, wantErr: "webhook timeout"},
		{name: "zero disable threshold", mutate: func(c *Config) { c.Webhooks.DisableThreshold = 0 }, wantErr: "disable threshold"},
		{name: "zero webhook cap", mutate: func(c *Config) { c.Webhooks.MaxPerOrg = 0 }, wantErr: "max per org"},
		{name: "otel without endpoint", mutate: func(c *Config) {
			c.Observability.OTelEnabled = true
			c.Observability.OTelServiceName = "lumen"
		}, wantErr: "OpenTelemetry endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
