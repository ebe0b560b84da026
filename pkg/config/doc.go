// Package config provides application configuration management from environment variables.
//
// # Configuration Structure
//
// Server settings:
//
//	LUMEN_HTTP_ADDR=":8080"
//	LUMEN_SHUTDOWN_TIMEOUT="30s"
//
// Storage settings (empty URLs select in-memory stores):
//
//	LUMEN_POSTGRES_URL="postgres://localhost/lumen?sslmode=disable"
//	LUMEN_REDIS_URL="redis://localhost:6379/0"
//	LUMEN_USAGE_BACKEND="postgres"   # postgres, redis, memory
//	LUMEN_SHARED_RATE_LIMITS="false" # keep limiter windows in Redis
//
// Metering settings:
//
//	LUMEN_PLANS_FILE="/etc/lumen/plans.yaml"
//	LUMEN_RATE_LIMITS_FILE="/etc/lumen/rate_limits.yaml"
//	LUMEN_LIMITER_SWEEP_SCHEDULE="@every 5m"
//	LUMEN_PLAN_CACHE_TTL="1m"
//
// Webhook settings:
//
//	LUMEN_WEBHOOK_TIMEOUT="10s"
//	LUMEN_WEBHOOK_MAX_ATTEMPTS="3"
//	LUMEN_WEBHOOK_DISABLE_THRESHOLD="10"
//	LUMEN_WEBHOOK_MAX_PER_ORG="5"
//
// Observability settings:
//
//	LUMEN_LOG_LEVEL="info"
//	LUMEN_LOG_FORMAT="json"
//	LUMEN_OTEL_ENABLED="false"
//	LUMEN_OTEL_ENDPOINT="localhost:4317"
package config
