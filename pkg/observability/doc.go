// Package observability provides structured logging, Prometheus metrics,
// health checks and OpenTelemetry tracing.
//
// # Structured Logging
//
//	logger := observability.NewLogger("info", "json", os.Stdout)
//	logger.WithFields(logrus.Fields{"org_id": orgID}).Info("reserved usage")
//
// Request-scoped loggers travel in the context:
//
//	log := observability.LoggerFromContext(ctx, logger)
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
//	metrics.ObserveQuota("pages", "denied")
//
// A nil *Metrics is valid and records nothing, so components can be built
// without a registry in tests.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient, false)
//	observability.RegisterHealthRoutes(router, checker)
//
// # Related Packages
//
//   - pkg/config: Observability configuration
//   - pkg/httputil: Request logging middleware
package observability
