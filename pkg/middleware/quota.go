package middleware

import (
	"context"
	"net/http"

	"github.com/platinummonkey/lumen/pkg/contextkeys"
	"github.com/platinummonkey/lumen/pkg/httputil"
	"github.com/platinummonkey/lumen/pkg/observability"
	"github.com/platinummonkey/lumen/pkg/quota"
	"github.com/platinummonkey/lumen/pkg/usage"
	"github.com/sirupsen/logrus"
)

// AmountFunc returns the units a request consumes. An error rejects the
// request with 400 before anything is reserved.
type AmountFunc func(r *http.Request) (int64, error)

// Fixed charges n units per request
func Fixed(n int64) AmountFunc {
	return func(*http.Request) (int64, error) { return n, nil }
}

// QuotaMiddleware reserves usage before a metered handler runs
//
// REQUIRES: AuthMiddleware must run before this middleware (it needs the
// organization in context). Requests without one are rejected with 401,
// never passed through unmetered.
type QuotaMiddleware struct {
	enforcer *quota.Enforcer
	logger   logrus.FieldLogger
}

// NewQuotaMiddleware creates a new QuotaMiddleware
func NewQuotaMiddleware(enforcer *quota.Enforcer, logger logrus.FieldLogger) *QuotaMiddleware {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &QuotaMiddleware{enforcer: enforcer, logger: logger}
}

// Reserve reserves amount units of kind in the current period. A denial
// is answered with 402 and the handler is not called. If the handler
// responds with a status of 400 or above, or panics, the reservation is
// rolled back.
func (m *QuotaMiddleware) Reserve(kind usage.ResourceKind, amount AmountFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := observability.LoggerFromContext(r.Context(), m.logger)
			orgID := contextkeys.GetOrgID(r.Context())
			if orgID == "" {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			n, err := amount(r)
			if err != nil {
				httputil.WriteBadRequest(w, err.Error())
				return
			}
			if n <= 0 {
				httputil.WriteBadRequest(w, "request consumes no units")
				return
			}

			d, err := m.enforcer.CheckAndReserve(r.Context(), orgID, m.enforcer.CurrentPeriod(), kind, n)
			if err != nil {
				httputil.WriteAPIError(w, logger, err)
				return
			}
			if !d.Allowed {
				httputil.WriteAPIError(w, logger, d.Err())
				return
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			defer func() {
				if p := recover(); p != nil {
					m.enforcer.RollbackDecision(r.Context(), d)
					panic(p)
				}
				if rec.status >= http.StatusBadRequest {
					m.enforcer.RollbackDecision(r.Context(), d)
				}
			}()

			next.ServeHTTP(rec, r.WithContext(contextkeys.WithQuotaDecision(r.Context(), d)))
		})
	}
}

// DecisionFromContext returns the reservation made by Reserve, or nil
func DecisionFromContext(ctx context.Context) *quota.Decision {
	d, _ := ctx.Value(contextkeys.QuotaDecisionKey).(*quota.Decision)
	return d
}

// statusRecorder captures the status code written by the handler
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (rec *statusRecorder) WriteHeader(code int) {
	if !rec.wroteHeader {
		rec.status = code
		rec.wroteHeader = true
	}
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	rec.wroteHeader = true
	return rec.ResponseWriter.Write(b)
}
