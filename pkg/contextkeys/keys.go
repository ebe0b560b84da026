// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/lumen/pkg/contextkeys"
//	ctx = contextkeys.WithOrgID(ctx, "org_123")
//	orgID := contextkeys.GetOrgID(ctx)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// PrincipalKey contains *middleware.Principal
	// Set by: AuthMiddleware.Handler (pkg/middleware/auth.go)
	// Required by: rate limit key selection, audit fields in logs
	// Type: *middleware.Principal
	PrincipalKey Key = "principal"

	// OrgIDKey contains the caller's organization ID
	// Set by: AuthMiddleware.Handler
	// Required by: every org-scoped handler (webhooks, api keys, usage, metered operations)
	// Type: string
	OrgIDKey Key = "org_id"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, distributed tracing
	// Type: string
	RequestIDKey Key = "request_id"

	// LoggerKey contains a request-scoped logrus.FieldLogger
	// Set by: httputil.LoggingMiddleware
	// Used by: Handlers that need structured logging with request context
	// Type: logrus.FieldLogger
	LoggerKey Key = "logger"

	// QuotaDecisionKey contains the reservation made for the current request
	// Set by: QuotaMiddleware.Reserve
	// Used by: metered handlers that report remaining quota
	// Type: *quota.Decision
	QuotaDecisionKey Key = "quota_decision"
)

// WithPrincipal adds the authenticated principal to the context
func WithPrincipal(ctx context.Context, principal interface{}) context.Context {
	return context.WithValue(ctx, PrincipalKey, principal)
}

// WithOrgID adds the organization ID to the context
func WithOrgID(ctx context.Context, orgID string) context.Context {
	return context.WithValue(ctx, OrgIDKey, orgID)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// WithQuotaDecision adds the request's quota reservation to the context
func WithQuotaDecision(ctx context.Context, decision interface{}) context.Context {
	return context.WithValue(ctx, QuotaDecisionKey, decision)
}

// GetOrgID retrieves the organization ID from context
func GetOrgID(ctx context.Context) string {
	if orgID, ok := ctx.Value(OrgIDKey).(string); ok {
		return orgID
	}
	return ""
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}
