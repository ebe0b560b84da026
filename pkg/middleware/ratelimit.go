package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/platinummonkey/lumen/pkg/contextkeys"
	"github.com/platinummonkey/lumen/pkg/httputil"
	"github.com/platinummonkey/lumen/pkg/observability"
	"github.com/platinummonkey/lumen/pkg/ratelimit"
	"github.com/sirupsen/logrus"
)

// KeyFunc picks the identifier a request is counted under
type KeyFunc func(r *http.Request) string

// ByPrincipal counts requests per API key, falling back to the client IP
// for unauthenticated requests
func ByPrincipal(r *http.Request) string {
	if p := PrincipalFromContext(r.Context()); p != nil {
		return "key:" + p.KeyID
	}
	return "ip:" + clientIP(r)
}

// ByOrg counts requests per organization, falling back to the client IP
func ByOrg(r *http.Request) string {
	if orgID := contextkeys.GetOrgID(r.Context()); orgID != "" {
		return "org:" + orgID
	}
	return "ip:" + clientIP(r)
}

// ByClientIP counts requests per client address
func ByClientIP(r *http.Request) string {
	return "ip:" + clientIP(r)
}

// RateLimitMiddleware provides HTTP rate limiting on one named limiter
type RateLimitMiddleware struct {
	limiter ratelimit.Checker
	key     KeyFunc
	metrics *observability.Metrics
	logger  logrus.FieldLogger
}

// NewRateLimitMiddleware creates a new rate limit middleware
func NewRateLimitMiddleware(limiter ratelimit.Checker, key KeyFunc, metrics *observability.Metrics, logger logrus.FieldLogger) *RateLimitMiddleware {
	if key == nil {
		key = ByPrincipal
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RateLimitMiddleware{limiter: limiter, key: key, metrics: metrics, logger: logger}
}

// Handler wraps an HTTP handler with rate limiting. Denied requests get 429
// with Retry-After; every response carries the X-RateLimit-* headers.
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := m.limiter.Config().Name
		identifier := m.key(r)

		res, err := m.limiter.Allow(r.Context(), identifier)
		if err != nil {
			// limiter backends fail open
			observability.LoggerFromContext(r.Context(), m.logger).WithError(err).
				WithField("limiter", name).Warn("Rate limit check failed, allowing request")
			next.ServeHTTP(w, r)
			return
		}
		m.metrics.ObserveRateLimit(name, res.Allowed)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.Itoa(int(math.Ceil(res.ResetAfter.Seconds()))))

		if err := res.Err(name, identifier); err != nil {
			httputil.WriteAPIError(w, observability.LoggerFromContext(r.Context(), m.logger), err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	// Check X-Forwarded-For header (if behind proxy); the first hop is the client
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}

	// Check X-Real-IP header
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
