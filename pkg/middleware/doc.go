// Package middleware provides HTTP middleware for authentication, rate
// limiting and usage metering.
//
// # Middleware Components
//
// AuthMiddleware: API key authentication
//
//	router.Use(middleware.NewAuthMiddleware(apiKeyService, logger).Handler)
//	// Accepts "Authorization: Bearer lumen_..." or "X-API-Key: lumen_...",
//	// stores the Principal and its org ID in the request context
//
// RateLimitMiddleware: sliding-window limits from a ratelimit.Registry
//
//	api := middleware.NewRateLimitMiddleware(registry.MustGet("api"), middleware.ByPrincipal, metrics, logger)
//	router.Use(api.Handler)
//
// QuotaMiddleware: reserve usage before a metered handler runs
//
//	router.Handle("/scans", quotaMW.Reserve(usage.Checks, middleware.Fixed(1))(scanHandler))
//
// # Ordering
//
// Outer to inner: request id, logging, recovery, AuthMiddleware, rate limits,
// QuotaMiddleware. Rate limits keyed by principal or org fall back to the
// client IP when authentication has not run, and QuotaMiddleware rejects
// requests that carry no organization.
//
// # Related Packages
//
//   - pkg/ratelimit: the limiters
//   - pkg/quota: reservations and rollback
//   - pkg/apikeys: key authentication
package middleware
