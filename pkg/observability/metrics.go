package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics.
// All Observe* helpers are safe to call on a nil *Metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Rate limiter metrics
	RateLimitDecisionsTotal *prometheus.CounterVec
	RateLimitTrackedKeys    *prometheus.GaugeVec

	// Usage and quota metrics
	QuotaDecisionsTotal *prometheus.CounterVec
	UsageRollbacksTotal *prometheus.CounterVec

	// Webhook metrics
	WebhookDeliveriesTotal  *prometheus.CounterVec
	WebhookDeliveryDuration *prometheus.HistogramVec
	WebhooksDisabledTotal   prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lumen_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lumen_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		RateLimitDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lumen_ratelimit_decisions_total",
				Help: "Rate limiter decisions by limiter and outcome",
			},
			[]string{"limiter", "outcome"},
		),
		RateLimitTrackedKeys: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "lumen_ratelimit_tracked_identifiers",
				Help: "Identifiers currently held in memory per limiter",
			},
			[]string{"limiter"},
		),

		QuotaDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lumen_quota_decisions_total",
				Help: "Quota reservation decisions by resource and outcome",
			},
			[]string{"resource", "outcome"},
		),
		UsageRollbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lumen_usage_rollbacks_total",
				Help: "Compensating usage rollbacks by resource and status",
			},
			[]string{"resource", "status"},
		),

		WebhookDeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lumen_webhook_deliveries_total",
				Help: "Webhook deliveries by event and outcome",
			},
			[]string{"event", "outcome"},
		),
		WebhookDeliveryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lumen_webhook_delivery_duration_seconds",
				Help:    "Webhook delivery duration in seconds, retries included",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"event"},
		),
		WebhooksDisabledTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "lumen_webhooks_auto_disabled_total",
				Help: "Webhooks disabled after reaching the consecutive failure threshold",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.RateLimitDecisionsTotal,
		m.RateLimitTrackedKeys,
		m.QuotaDecisionsTotal,
		m.UsageRollbacksTotal,
		m.WebhookDeliveriesTotal,
		m.WebhookDeliveryDuration,
		m.WebhooksDisabledTotal,
	)

	return m
}

// ObserveRateLimit records a limiter decision
func (m *Metrics) ObserveRateLimit(limiter string, allowed bool) {
	if m == nil {
		return
	}
	outcome := "allowed"
	if !allowed {
		outcome = "denied"
	}
	m.RateLimitDecisionsTotal.WithLabelValues(limiter, outcome).Inc()
}

// SetTrackedKeys records how many identifiers a limiter is holding
func (m *Metrics) SetTrackedKeys(limiter string, n int) {
	if m == nil {
		return
	}
	m.RateLimitTrackedKeys.WithLabelValues(limiter).Set(float64(n))
}

// ObserveQuota records a quota decision. Outcome is one of
// "within_plan", "overage", "unlimited", "denied" or "error".
func (m *Metrics) ObserveQuota(resource, outcome string) {
	if m == nil {
		return
	}
	m.QuotaDecisionsTotal.WithLabelValues(resource, outcome).Inc()
}

// ObserveRollback records a compensating decrement
func (m *Metrics) ObserveRollback(resource string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "failed"
	}
	m.UsageRollbacksTotal.WithLabelValues(resource, status).Inc()
}

// ObserveDelivery records one webhook delivery outcome
func (m *Metrics) ObserveDelivery(event, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.WebhookDeliveriesTotal.WithLabelValues(event, outcome).Inc()
	m.WebhookDeliveryDuration.WithLabelValues(event).Observe(duration.Seconds())
}

// WebhookDisabled records an automatic disable
func (m *Metrics) WebhookDisabled() {
	if m == nil {
		return
	}
	m.WebhooksDisabledTotal.Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Requests are labelled by mux route template to keep cardinality bounded.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := "unmatched"
			if current := mux.CurrentRoute(r); current != nil {
				if tmpl, err := current.GetPathTemplate(); err == nil {
					route = tmpl
				}
			}

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
