package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/platinummonkey/lumen/pkg/apikeys"
	"github.com/platinummonkey/lumen/pkg/contextkeys"
	"github.com/platinummonkey/lumen/pkg/httputil"
	"github.com/platinummonkey/lumen/pkg/observability"
	"github.com/platinummonkey/lumen/pkg/ratelimit"
	"github.com/sirupsen/logrus"
)

// APIKeyHeader is accepted as an alternative to a Bearer token
const APIKeyHeader = "X-API-Key"

// Principal is the authenticated caller of a request
type Principal struct {
	OrgID     string
	KeyID     string
	KeyPrefix string
}

// Authenticator resolves a presented API key
type Authenticator interface {
	Authenticate(ctx context.Context, key string) (*apikeys.APIKey, error)
}

// AuthMiddleware provides authentication middleware
type AuthMiddleware struct {
	authenticator Authenticator
	logger        logrus.FieldLogger

	failures   ratelimit.Checker
	failureKey KeyFunc
	metrics    *observability.Metrics
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(authenticator Authenticator, logger logrus.FieldLogger) *AuthMiddleware {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AuthMiddleware{authenticator: authenticator, logger: logger}
}

// LimitFailures counts rejected keys per key(r) on limiter. A client that
// has used up the window gets 429 before its key is looked up; successful
// requests are never counted.
func (m *AuthMiddleware) LimitFailures(limiter ratelimit.Checker, key KeyFunc, metrics *observability.Metrics) *AuthMiddleware {
	if key == nil {
		key = ByClientIP
	}
	m.failures = limiter
	m.failureKey = key
	m.metrics = metrics
	return m
}

// Handler wraps an HTTP handler with authentication. On success the
// principal and its organization are stored in the request context.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := observability.LoggerFromContext(r.Context(), m.logger)
		if err := m.checkFailures(r, logger); err != nil {
			httputil.WriteAPIError(w, logger, err)
			return
		}

		key, ok := extractKey(r)
		if !ok {
			httputil.WriteUnauthorized(w, "missing or malformed credentials")
			return
		}

		k, err := m.authenticator.Authenticate(r.Context(), key)
		if err != nil {
			if errors.Is(err, apikeys.ErrInvalidKey) {
				m.recordFailure(r, logger)
			}
			httputil.WriteAPIError(w, logger, err)
			return
		}

		principal := &Principal{OrgID: k.OrgID, KeyID: k.ID, KeyPrefix: k.Prefix}
		ctx := contextkeys.WithPrincipal(r.Context(), principal)
		ctx = contextkeys.WithOrgID(ctx, k.OrgID)
		ctx = observability.WithLogger(ctx, logger.WithFields(logrus.Fields{
			"org_id": k.OrgID,
			"key_id": k.ID,
		}))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// checkFailures refuses clients that are out of failed attempts. Limiter
// backend errors fail open.
func (m *AuthMiddleware) checkFailures(r *http.Request, logger logrus.FieldLogger) error {
	if m.failures == nil {
		return nil
	}
	name := m.failures.Config().Name
	identifier := m.failureKey(r)

	res, err := m.failures.Peek(r.Context(), identifier)
	if err != nil {
		logger.WithError(err).WithField("limiter", name).Warn("Auth failure check failed, allowing request")
		return nil
	}
	if !res.Allowed {
		m.metrics.ObserveRateLimit(name, false)
		logger.WithField("identifier", identifier).Warn("Too many failed authentication attempts")
	}
	return res.Err(name, identifier)
}

func (m *AuthMiddleware) recordFailure(r *http.Request, logger logrus.FieldLogger) {
	if m.failures == nil {
		return
	}
	if _, err := m.failures.Allow(r.Context(), m.failureKey(r)); err != nil {
		logger.WithError(err).WithField("limiter", m.failures.Config().Name).Warn("Failed to record authentication failure")
	}
}

// extractKey reads "Authorization: Bearer <key>" or the X-API-Key header
func extractKey(r *http.Request) (string, bool) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return "", false
		}
		key := strings.TrimSpace(parts[1])
		return key, key != ""
	}
	key := strings.TrimSpace(r.Header.Get(APIKeyHeader))
	return key, key != ""
}

// PrincipalFromContext returns the authenticated principal, or nil
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(contextkeys.PrincipalKey).(*Principal)
	return p
}
