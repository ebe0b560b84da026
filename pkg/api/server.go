package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/lumen/pkg/httputil"
	"github.com/platinummonkey/lumen/pkg/middleware"
	"github.com/platinummonkey/lumen/pkg/observability"
	"github.com/platinummonkey/lumen/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Options wires the server to its collaborators. Authenticator is required;
// everything else may be left nil.
type Options struct {
	Logger        logrus.FieldLogger
	Metrics       *observability.Metrics
	Gatherer      prometheus.Gatherer
	Health        *observability.HealthChecker
	Limiters      *ratelimit.Registry
	Authenticator middleware.Authenticator
	MaxBodyBytes  int64
}

// Server represents our API server
type Server struct {
	router  *mux.Router
	authed  *mux.Router
	handler http.Handler
	opts    Options
}

// NewServer creates a new API server. Unauthenticated routes (health and
// metrics) are registered immediately; everything added through
// RegisterRoutes sits behind authentication and the global api limiter.
// Rejected keys count against the auth limiter per client IP.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Limiters == nil {
		opts.Limiters = ratelimit.NewRegistry(ratelimit.DefaultPresets())
	}

	s := &Server{
		router: mux.NewRouter(),
		opts:   opts,
	}
	s.setupRoutes()

	chain := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(opts.Logger),
		httputil.RecoveryMiddleware(opts.Logger),
	}
	if opts.MaxBodyBytes > 0 {
		chain = append(chain, httputil.MaxBytesMiddleware(opts.MaxBodyBytes))
	}
	s.handler = otelhttp.NewHandler(httputil.Chain(chain...)(s.router), "lumen")
	return s
}

// setupRoutes configures the unauthenticated routes and the authenticated
// subrouter
func (s *Server) setupRoutes() {
	if s.opts.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(s.opts.Metrics))
	}

	if s.opts.Health != nil {
		observability.RegisterHealthRoutes(s.router, s.opts.Health)
	}
	if s.opts.Gatherer != nil {
		s.router.Handle("/metrics", observability.MetricsHandler(s.opts.Gatherer)).Methods(http.MethodGet)
	}

	auth := middleware.NewAuthMiddleware(s.opts.Authenticator, s.opts.Logger).
		LimitFailures(s.opts.Limiters.MustGet(ratelimit.Auth), middleware.ByClientIP, s.opts.Metrics)
	global := middleware.NewRateLimitMiddleware(
		s.opts.Limiters.MustGet(ratelimit.API), middleware.ByPrincipal, s.opts.Metrics, s.opts.Logger)

	s.authed = s.router.PathPrefix("/").Subrouter()
	s.authed.Use(auth.Handler, global.Handler)
}

// ServeHTTP implements the http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// RouteRegistrar is an interface for types that can register routes
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// RegisterRoutes registers authenticated routes from a RouteRegistrar
func (s *Server) RegisterRoutes(registrar RouteRegistrar) {
	registrar.RegisterRoutes(s.authed)
}
