package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-redis/redis/v8"
	"github.com/platinummonkey/lumen/pkg/api"
	"github.com/platinummonkey/lumen/pkg/apikeys"
	"github.com/platinummonkey/lumen/pkg/async"
	"github.com/platinummonkey/lumen/pkg/config"
	"github.com/platinummonkey/lumen/pkg/jobs"
	"github.com/platinummonkey/lumen/pkg/observability"
	"github.com/platinummonkey/lumen/pkg/orgs"
	"github.com/platinummonkey/lumen/pkg/quota"
	"github.com/platinummonkey/lumen/pkg/ratelimit"
	"github.com/platinummonkey/lumen/pkg/storage/postgres"
	"github.com/platinummonkey/lumen/pkg/usage"
	"github.com/platinummonkey/lumen/pkg/webhooks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// organizationStore is the directory side the bootstrap flags need
type organizationStore interface {
	orgs.Directory
	GetOrganization(ctx context.Context, orgID string) (*orgs.Organization, error)
}

// app is the wired service. Fields are exposed to main and its tests.
type app struct {
	cfg    *config.Config
	logger *logrus.Logger

	db    *sql.DB
	redis *redis.Client

	catalog    *orgs.Catalog
	directory  organizationStore
	createOrg  func(ctx context.Context, org *orgs.Organization) error
	limiters   *ratelimit.Registry
	runner     *async.Runner
	keys       *apikeys.Service
	dispatcher *webhooks.Dispatcher
	scheduler  *jobs.Scheduler
	server     *api.Server
}

// appOptions replaces collaborators that reach outside the process
type appOptions struct {
	Registry  *prometheus.Registry
	Scanner   api.Scanner
	Generator api.PageGenerator
	BaseURL   string
}

func newApp(ctx context.Context, cfg *config.Config, logger *logrus.Logger, opts appOptions) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	if err := a.wire(ctx, opts); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context, opts appOptions) error {
	cfg, logger := a.cfg, a.logger

	if err := a.openStores(ctx); err != nil {
		return err
	}

	a.catalog = orgs.NewCatalog(logger)
	if cfg.Metering.PlansFile != "" {
		if err := a.catalog.LoadFile(cfg.Metering.PlansFile); err != nil {
			return err
		}
	}

	if a.db != nil {
		dir := orgs.NewPostgresDirectory(a.db, a.catalog)
		a.directory = dir
		a.createOrg = dir.CreateOrganization
	} else {
		dir := orgs.NewMemoryDirectory(a.catalog)
		a.directory = dir
		a.createOrg = func(_ context.Context, org *orgs.Organization) error {
			dir.Put(org)
			return nil
		}
	}
	directory := orgs.NewCachedDirectory(a.directory, cfg.Metering.PlanCacheSize, cfg.Metering.PlanCacheTTL)

	usageStore, err := a.usageStore()
	if err != nil {
		return err
	}
	accountant := usage.NewAccountant(usageStore)

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		reg := opts.Registry
		if reg == nil {
			reg = prometheus.NewRegistry()
		}
		metrics = observability.NewMetrics(reg)
		opts.Registry = reg
	}

	presets, err := ratelimit.LoadPresets(cfg.Metering.RateLimitsFile)
	if err != nil {
		return err
	}
	a.limiters = ratelimit.NewRegistry(presets)
	if cfg.Storage.SharedRateLimits {
		for _, name := range a.limiters.Names() {
			preset := presets[name]
			preset.Name = name
			a.limiters.UseShared(ratelimit.NewRedisLimiter(a.redis, preset, logger))
		}
	}

	a.runner = async.NewRunner(logger)

	var keyStore apikeys.Store = apikeys.NewMemoryStore()
	var hookStore webhooks.Store = webhooks.NewMemoryStore()
	if a.db != nil {
		keyStore = apikeys.NewPostgresStore(a.db)
		hookStore = webhooks.NewPostgresStore(a.db)
	}
	a.keys = apikeys.NewService(keyStore, cfg.Metering.MaxAPIKeysPerOrg, logger)

	a.dispatcher = webhooks.NewDispatcher(hookStore, a.runner, webhooks.DispatcherConfig{
		Timeout: cfg.Webhooks.Timeout,
		Retry: webhooks.RetryConfig{
			MaxAttempts:       cfg.Webhooks.MaxAttempts,
			InitialDelay:      cfg.Webhooks.InitialBackoff,
			MaxDelay:          cfg.Webhooks.MaxBackoff,
			BackoffMultiplier: 2.0,
		},
		DisableThreshold: cfg.Webhooks.DisableThreshold,
		Concurrency:      cfg.Webhooks.Concurrency,
		DispatchBudget:   cfg.Webhooks.DispatchBudget,
		UserAgent:        cfg.Webhooks.UserAgent,
	},
		webhooks.WithThrottle(a.limiters.MustGet(ratelimit.WebhookDelivery)),
		webhooks.WithLogger(logger),
		webhooks.WithMetrics(metrics),
	)
	hooks := webhooks.NewRegistry(hookStore, cfg.Webhooks.MaxPerOrg, logger)

	enforcer := quota.NewEnforcer(directory, accountant,
		quota.WithLogger(logger),
		quota.WithMetrics(metrics),
		quota.WithNotifier(a.dispatcher),
	)

	scanner := opts.Scanner
	if scanner == nil {
		scanner = api.NewHTTPScanner(cfg.Webhooks.Timeout)
	}
	generator := opts.Generator
	if generator == nil {
		generator = &api.TemplateGenerator{BaseURL: opts.BaseURL}
	}

	serverOpts := api.Options{
		Logger:        logger,
		Metrics:       metrics,
		Health:        observability.NewHealthChecker(a.db, a.redis, a.redisCritical()),
		Limiters:      a.limiters,
		Authenticator: a.keys,
		MaxBodyBytes:  cfg.Server.MaxBodyBytes,
	}
	if opts.Registry != nil {
		serverOpts.Gatherer = opts.Registry
	}
	a.server = api.NewServer(serverOpts)
	a.server.RegisterRoutes(apikeys.NewHandlers(a.keys, a.limiters.MustGet(ratelimit.APIKeyCreate), logger))
	a.server.RegisterRoutes(webhooks.NewHandlers(hooks, a.dispatcher, a.limiters.MustGet(ratelimit.WebhookTest), logger))
	a.server.RegisterRoutes(api.NewUsageHandlers(accountant, directory, enforcer, logger))
	a.server.RegisterRoutes(api.NewMeteredHandlers(enforcer, a.limiters, a.dispatcher, scanner, generator, metrics, logger))

	a.scheduler = jobs.NewScheduler(logger)
	if err := a.scheduler.AddLimiterSweep(cfg.Metering.LimiterSweepSchedule, a.limiters, metrics); err != nil {
		return err
	}

	return nil
}

func (a *app) openStores(ctx context.Context) error {
	cfg := a.cfg.Storage
	if cfg.PostgresURL != "" {
		db, err := postgres.Open(ctx, postgres.Config{
			URL:      cfg.PostgresURL,
			MaxConns: cfg.PostgresMaxConns,
			MinConns: cfg.PostgresMinConns,
			Timeout:  cfg.PostgresTimeout,
		})
		if err != nil {
			return err
		}
		a.db = db
		if cfg.AutoMigrate {
			if err := postgres.Migrate(ctx, db, a.logger); err != nil {
				return err
			}
		}
	}
	if cfg.RedisURL != "" {
		client, err := postgres.OpenRedis(ctx, postgres.RedisConfig{URL: cfg.RedisURL, PoolSize: cfg.RedisPoolSize})
		if err != nil {
			return err
		}
		a.redis = client
	}
	return nil
}

func (a *app) usageStore() (usage.Store, error) {
	backend := a.cfg.ResolvedUsageBackend()
	a.logger.WithField("backend", backend).Info("Selected usage store")
	switch backend {
	case "postgres":
		return usage.NewPostgresStore(a.db), nil
	case "redis":
		return usage.NewRedisStore(a.redis), nil
	case "memory":
		return usage.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown usage backend %q", backend)
	}
}

// redisCritical reports whether readiness must fail without Redis
func (a *app) redisCritical() bool {
	return a.cfg.ResolvedUsageBackend() == "redis" || a.cfg.Storage.SharedRateLimits
}

// bootstrap makes sure orgID exists and issues it a fresh API key
func (a *app) bootstrap(ctx context.Context, orgID string, plan orgs.PlanTier) (*apikeys.Created, error) {
	if _, ok := a.catalog.Limits(plan); !ok {
		return nil, fmt.Errorf("%w: %s", orgs.ErrPlanNotFound, plan)
	}
	_, err := a.directory.GetOrganization(ctx, orgID)
	switch {
	case errors.Is(err, orgs.ErrOrgNotFound):
		if err := a.createOrg(ctx, &orgs.Organization{ID: orgID, Name: orgID, Plan: plan}); err != nil {
			return nil, err
		}
		a.logger.WithFields(logrus.Fields{"org_id": orgID, "plan": plan}).Info("Created organization")
	case err != nil:
		return nil, err
	}
	return a.keys.Create(ctx, orgID, apikeys.CreateRequest{Name: "bootstrap"})
}

func (a *app) httpServer() *http.Server {
	return &http.Server{
		Addr:         a.cfg.Server.Addr,
		Handler:      a.server,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  a.cfg.Server.IdleTimeout,
	}
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
}
