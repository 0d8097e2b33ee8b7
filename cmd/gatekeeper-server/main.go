package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/veilhq/gatekeeper/pkg/api"
	"github.com/veilhq/gatekeeper/pkg/audit"
	"github.com/veilhq/gatekeeper/pkg/config"
	"github.com/veilhq/gatekeeper/pkg/middleware"
	"github.com/veilhq/gatekeeper/pkg/observability"
	"github.com/veilhq/gatekeeper/pkg/ratelimit"
	"github.com/veilhq/gatekeeper/pkg/rbac"
	"github.com/veilhq/gatekeeper/pkg/roles"
	"github.com/veilhq/gatekeeper/pkg/storage"
	"github.com/veilhq/gatekeeper/pkg/token"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gatekeeper-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.WithField("port", cfg.Server.Port).Info("Starting gatekeeper")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var providers *observability.OTelProviders
	if cfg.Observability.OTelEnabled {
		providers, err = observability.InitOTel(ctx, observability.OTelConfig{
			Enabled:        true,
			Endpoint:       cfg.Observability.OTelEndpoint,
			ServiceName:    cfg.Observability.OTelServiceName,
			ServiceVersion: cfg.Observability.OTelServiceVersion,
			Insecure:       cfg.Observability.OTelInsecure,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
	}

	db, err := storage.OpenPostgres(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open postgres: %w", err)
	}
	defer db.Close()

	// An unreachable Redis is not fatal: the rate limiter fails open
	// until it comes back.
	redisClient, err := storage.OpenRedis(ctx, cfg.Storage)
	if err != nil {
		logger.WithError(err).Warn("Redis unreachable at startup, rate limiting degraded")
	}
	defer redisClient.Close()

	migrations := []struct {
		name string
		run  func(context.Context, *sql.DB) error
	}{
		{"rbac", rbac.RunMigrations},
		{"token", token.RunMigrations},
		{"audit", audit.RunMigrations},
	}
	for _, m := range migrations {
		if err := m.run(ctx, db); err != nil {
			return fmt.Errorf("failed to run %s migrations: %w", m.name, err)
		}
	}

	registry, err := roles.NewRegistry(cfg.RBAC.RolesPath, logger)
	if err != nil {
		return fmt.Errorf("failed to load role registry: %w", err)
	}

	auditLogger, err := audit.NewDBLogger(db)
	if err != nil {
		return fmt.Errorf("failed to create audit logger: %w", err)
	}
	defer auditLogger.Close()

	promRegistry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(promRegistry)

	signer := token.NewSigner(cfg.Token.SigningSecret, cfg.Token.Issuer, cfg.Token.AccessTokenTTL)
	tokenStore := token.NewStore(db)
	tokens := token.NewService(signer, tokenStore, token.ServiceOptions{
		RefreshTTL: cfg.Token.RefreshTokenTTL,
		Audit:      auditLogger,
		Metrics:    metrics,
		Logger:     logger,
	})

	sweeper := token.NewSweeper(tokenStore, cfg.Token.SweepSchedule, cfg.Token.SweepGrace, metrics, logger)
	if err := sweeper.Start(); err != nil {
		return fmt.Errorf("failed to start token sweeper: %w", err)
	}
	defer sweeper.Stop()

	rbacStore := rbac.NewStore(db)
	checker := rbac.NewChecker(rbacStore, registry, metrics, logger)

	rules, err := ratelimit.LoadRuleTable(cfg.RateLimit.RulesPath)
	if err != nil {
		return fmt.Errorf("failed to load rate limit rules: %w", err)
	}
	limiter := ratelimit.NewLimiter(ratelimit.NewRedisStore(redisClient, "ratelimit", metrics), rules, metrics, logger)
	limiter.SetEnabled(cfg.RateLimit.Enabled)
	if !cfg.RateLimit.Enabled {
		logger.Warn("Rate limiting disabled by configuration")
	}
	plans := ratelimit.NewCachedPlanSource(
		ratelimit.NewDBPlanSource(db),
		cfg.RateLimit.PlanCacheSize,
		cfg.RateLimit.PlanCacheTTL,
		metrics,
	)

	gateway := middleware.NewGateway(
		middleware.NewAuthenticator(tokens, logger),
		checker,
		limiter,
		plans,
	)

	server := api.NewServer(api.Dependencies{
		DB:        db,
		Tokens:    tokens,
		RBACStore: rbacStore,
		Checker:   checker,
		Gateway:   gateway,
		Limiter:   limiter,
		Plans:     plans,
		Audit:     auditLogger,
		Logger:    logger,
		Metrics:   metrics,
		Tracing:   cfg.Observability.OTelEnabled,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient))
	if cfg.Observability.MetricsEnabled {
		healthMux.Handle("/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc("health server", healthServer.Shutdown)
	shutdown.RegisterShutdownFunc("role watcher", func(context.Context) error {
		cancel()
		return nil
	})
	if providers != nil {
		shutdown.RegisterShutdownFunc("tracing", func(sctx context.Context) error {
			return observability.ShutdownOTel(sctx, providers, logger)
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", httpServer.Addr).Info("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("Health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	if cfg.RBAC.WatchRoles && cfg.RBAC.RolesPath != "" {
		g.Go(func() error {
			return registry.Watch(gctx)
		})
	}
	g.Go(func() error {
		if err := shutdown.WaitForShutdown(); err != nil {
			logger.WithError(err).Error("Shutdown completed with errors")
		}
		cancel()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Gatekeeper stopped")
	return nil
}
