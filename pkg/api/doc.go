// Package api composes the Lumen HTTP server.
//
// # Overview
//
// Server owns the gorilla/mux router and the middleware every request
// passes through: OpenTelemetry instrumentation, request ids, request
// logging, panic recovery, a body size cap and Prometheus HTTP metrics.
// Health (/healthz, /readyz) and /metrics are served without
// authentication. Everything registered through RegisterRoutes sits behind
// API key authentication and the global "api" rate limiter, keyed by the
// calling key.
//
//	server := api.NewServer(api.Options{
//		Logger:        logger,
//		Metrics:       metrics,
//		Gatherer:      registry,
//		Health:        health,
//		Limiters:      limiters,
//		Authenticator: apiKeys,
//	})
//	server.RegisterRoutes(webhooks.NewHandlers(registry, dispatcher, limiters.MustGet(ratelimit.WebhookTest), logger))
//	server.RegisterRoutes(api.NewUsageHandlers(accountant, directory, enforcer, logger))
//	server.RegisterRoutes(api.NewMeteredHandlers(enforcer, limiters, dispatcher, scanner, generator, metrics, logger))
//
// # Metered operations
//
// POST /scans is limited by "bulk_scan" per organization and consumes one
// checks unit, reserved by the quota middleware before the scanner runs.
// POST /pages/generate is limited by "page_generation" and consumes one
// pages unit per distinct keyword through Enforcer.Guard, so a request is
// either admitted whole or refused with 402. Units for work that failed are
// given back. Successful operations emit scan_complete and page_generated
// webhook events without waiting for delivery.
//
// GET /usage reports each resource's use in a billing period against the
// organization's plan.
//
// # Errors
//
// Handlers return errors through httputil.WriteAPIError, which maps
// package error types to statuses: 400 validation, 401 bad credentials,
// 402 quota, 404 not found, 409 caps, 429 rate limits with Retry-After,
// 503 plan or usage store unavailable.
package api
