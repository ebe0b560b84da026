package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Storage       StorageConfig
	Metering      MeteringConfig
	Webhooks      WebhookConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
}

// StorageConfig selects the stores. Empty URLs mean in-memory stores.
type StorageConfig struct {
	PostgresURL      string
	PostgresMaxConns int
	PostgresMinConns int
	PostgresTimeout  time.Duration
	AutoMigrate      bool

	RedisURL      string
	RedisPoolSize int

	// UsageBackend is "postgres", "redis" or "memory". Empty picks postgres
	// when a Postgres URL is set, then redis, then memory.
	UsageBackend string
	// SharedRateLimits moves rate-limit windows into Redis
	SharedRateLimits bool
}

// MeteringConfig holds rate limiter and quota settings
type MeteringConfig struct {
	PlansFile            string
	WatchPlansFile       bool
	RateLimitsFile       string
	LimiterSweepSchedule string
	PlanCacheTTL         time.Duration
	PlanCacheSize        int
	MaxAPIKeysPerOrg     int
}

// WebhookConfig holds delivery settings
type WebhookConfig struct {
	Timeout          time.Duration
	MaxAttempts      int
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	DisableThreshold int
	MaxPerOrg        int
	Concurrency      int
	DispatchBudget   time.Duration
	UserAgent        string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
	OTelSampleRatio    float64
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Metering:      loadMeteringConfig(),
		Webhooks:      loadWebhookConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            getEnv("LUMEN_HTTP_ADDR", ":8080"),
		ReadTimeout:     getEnvDuration("LUMEN_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("LUMEN_WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:     getEnvDuration("LUMEN_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("LUMEN_SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxBodyBytes:    getEnvInt64("LUMEN_MAX_BODY_BYTES", 1<<20),
	}
}

func loadStorageConfig() StorageConfig {
	return StorageConfig{
		PostgresURL:      getEnv("LUMEN_POSTGRES_URL", ""),
		PostgresMaxConns: getEnvInt("LUMEN_POSTGRES_MAX_CONNS", 20),
		PostgresMinConns: getEnvInt("LUMEN_POSTGRES_MIN_CONNS", 2),
		PostgresTimeout:  getEnvDuration("LUMEN_POSTGRES_TIMEOUT", 5*time.Second),
		AutoMigrate:      getEnvBool("LUMEN_POSTGRES_AUTO_MIGRATE", true),
		RedisURL:         getEnv("LUMEN_REDIS_URL", ""),
		RedisPoolSize:    getEnvInt("LUMEN_REDIS_POOL_SIZE", 10),
		UsageBackend:     strings.ToLower(getEnv("LUMEN_USAGE_BACKEND", "")),
		SharedRateLimits: getEnvBool("LUMEN_SHARED_RATE_LIMITS", false),
	}
}

func loadMeteringConfig() MeteringConfig {
	return MeteringConfig{
		PlansFile:            getEnv("LUMEN_PLANS_FILE", ""),
		WatchPlansFile:       getEnvBool("LUMEN_WATCH_PLANS_FILE", true),
		RateLimitsFile:       getEnv("LUMEN_RATE_LIMITS_FILE", ""),
		LimiterSweepSchedule: getEnv("LUMEN_LIMITER_SWEEP_SCHEDULE", "@every 5m"),
		PlanCacheTTL:         getEnvDuration("LUMEN_PLAN_CACHE_TTL", time.Minute),
		PlanCacheSize:        getEnvInt("LUMEN_PLAN_CACHE_SIZE", 10000),
		MaxAPIKeysPerOrg:     getEnvInt("LUMEN_MAX_API_KEYS_PER_ORG", 10),
	}
}

func loadWebhookConfig() WebhookConfig {
	return WebhookConfig{
		Timeout:          getEnvDuration("LUMEN_WEBHOOK_TIMEOUT", 10*time.Second),
		MaxAttempts:      getEnvInt("LUMEN_WEBHOOK_MAX_ATTEMPTS", 3),
		InitialBackoff:   getEnvDuration("LUMEN_WEBHOOK_INITIAL_BACKOFF", time.Second),
		MaxBackoff:       getEnvDuration("LUMEN_WEBHOOK_MAX_BACKOFF", 30*time.Second),
		DisableThreshold: getEnvInt("LUMEN_WEBHOOK_DISABLE_THRESHOLD", 10),
		MaxPerOrg:        getEnvInt("LUMEN_WEBHOOK_MAX_PER_ORG", 5),
		Concurrency:      getEnvInt("LUMEN_WEBHOOK_CONCURRENCY", 8),
		DispatchBudget:   getEnvDuration("LUMEN_WEBHOOK_DISPATCH_BUDGET", 2*time.Minute),
		UserAgent:        getEnv("LUMEN_WEBHOOK_USER_AGENT", "Lumen-Webhooks/1.0"),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           getEnv("LUMEN_LOG_LEVEL", "info"),
		LogFormat:          getEnv("LUMEN_LOG_FORMAT", "json"),
		MetricsEnabled:     getEnvBool("LUMEN_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("LUMEN_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("LUMEN_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("LUMEN_OTEL_SERVICE_NAME", "lumen"),
		OTelServiceVersion: getEnv("LUMEN_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("LUMEN_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("LUMEN_OTEL_SAMPLE_RATIO", 1.0),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("http address is required")
	}

	switch c.Storage.UsageBackend {
	case "":
	case "postgres":
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for the postgres usage backend")
		}
	case "redis":
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("redis URL is required for the redis usage backend")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid usage backend: %s (must be postgres, redis, or memory)", c.Storage.UsageBackend)
	}
	if c.Storage.SharedRateLimits && c.Storage.RedisURL == "" {
		return fmt.Errorf("redis URL is required for shared rate limits")
	}

	if c.Webhooks.Timeout <= 0 {
		return fmt.Errorf("webhook timeout must be positive")
	}
	if c.Webhooks.MaxAttempts < 1 {
		return fmt.Errorf("webhook max attempts must be at least 1")
	}
	if c.Webhooks.DisableThreshold < 1 {
		return fmt.Errorf("webhook disable threshold must be at least 1")
	}
	if c.Webhooks.MaxPerOrg < 1 {
		return fmt.Errorf("webhook max per org must be at least 1")
	}
	if c.Webhooks.Concurrency < 1 {
		return fmt.Errorf("webhook concurrency must be at least 1")
	}
	if c.Metering.MaxAPIKeysPerOrg < 1 {
		return fmt.Errorf("max api keys per org must be at least 1")
	}
	if c.Metering.LimiterSweepSchedule == "" {
		return fmt.Errorf("limiter sweep schedule is required")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// ResolvedUsageBackend returns the usage backend after applying defaults
func (c *Config) ResolvedUsageBackend() string {
	if c.Storage.UsageBackend != "" {
		return c.Storage.UsageBackend
	}
	if c.Storage.PostgresURL != "" {
		return "postgres"
	}
	if c.Storage.RedisURL != "" {
		return "redis"
	}
	return "memory"
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
