package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/platinummonkey/lumen/pkg/config"
	"github.com/platinummonkey/lumen/pkg/observability"
	"github.com/platinummonkey/lumen/pkg/orgs"
	"github.com/sirupsen/logrus"
)

var (
	bootstrapOrg  = flag.String("bootstrap-org", "", "Create this organization if missing and print a new API key for it")
	bootstrapPlan = flag.String("bootstrap-plan", string(orgs.PlanFree), "Plan for an organization created by -bootstrap-org")
	pageBaseURL   = flag.String("page-base-url", "https://pages.lumen.dev", "Base URL of generated pages")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "lumen: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, os.Stderr)
	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("lumen exited")
	}
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := observability.InitTracing(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, logger, appOptions{BaseURL: *pageBaseURL})
	if err != nil {
		return err
	}
	defer a.close()

	if *bootstrapOrg != "" {
		created, err := a.bootstrap(ctx, *bootstrapOrg, orgs.PlanTier(*bootstrapPlan))
		if err != nil {
			return fmt.Errorf("bootstrap failed: %w", err)
		}
		// the plaintext key is never shown again
		fmt.Fprintf(os.Stdout, "%s\n", created.Key)
	}

	if cfg.Metering.PlansFile != "" && cfg.Metering.WatchPlansFile {
		go func() {
			if err := a.catalog.Watch(ctx, cfg.Metering.PlansFile); err != nil {
				logger.WithError(err).Error("Plan catalog watch stopped")
			}
		}()
	}
	a.scheduler.Start(ctx)

	server := a.httpServer()
	shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	shutdown.Register("scheduler", func(context.Context) error {
		a.scheduler.Stop()
		return nil
	})
	shutdown.Register("webhook deliveries", a.runner.Wait)
	shutdown.Register("tracing", func(ctx context.Context) error {
		return observability.ShutdownTracing(ctx, tp)
	})

	serveErr := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"addr":          cfg.Server.Addr,
			"usage_backend": cfg.ResolvedUsageBackend(),
			"postgres":      a.db != nil,
			"redis":         a.redis != nil,
		}).Info("Starting lumen")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	case <-ctx.Done():
	}
	return shutdown.Shutdown(ctx)
}
