package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/config"
	"github.com/platinummonkey/tenantguard/pkg/crosstenant"
	"github.com/platinummonkey/tenantguard/pkg/directory"
	"github.com/platinummonkey/tenantguard/pkg/httputil"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/permissions"
	"github.com/platinummonkey/tenantguard/pkg/privacy"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
	"github.com/platinummonkey/tenantguard/pkg/security"
	"github.com/platinummonkey/tenantguard/pkg/storage"
	"github.com/platinummonkey/tenantguard/pkg/storage/postgres"
	"github.com/platinummonkey/tenantguard/pkg/sweeper"
)

var (
	migrateOnly = flag.Bool("migrate-only", false, "Apply migrations and seed built-in roles, then exit")
	runOnce     = flag.String("run-once", "", "Run one sweep job by name and exit (crosstenant_rule_expiry, assignment_expiry, audit_retention)")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logger := setupLogger(cfg.Observability.LogLevel)
	if err := run(context.Background(), cfg, logger); err != nil {
		logger.Fatalf("tenantguard: %v", err)
	}
}

func setupLogger(level observability.LogLevel) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	parsed, err := logrus.ParseLevel(strings.ToLower(level.String()))
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
	return logger
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	obsLogger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.WithField("version", cfg.Observability.OTelServiceVersion).Info("Starting tenantguard")

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, obsLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	var otelMetrics *observability.OTelMetrics
	if providers != nil {
		otelMetrics, err = observability.NewOTelMetrics(providers.MeterProvider)
		if err != nil {
			return fmt.Errorf("failed to create OpenTelemetry instruments: %w", err)
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	cm, err := postgres.NewConnectionManager(ctx, postgres.ConnectionConfig{
		URL:         cfg.Database.URL,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		Timeout:     cfg.Database.Timeout,
		MaxLifetime: cfg.Database.MaxLifetime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
	}, obsLogger)
	if err != nil {
		return err
	}
	db := cm.Primary()

	migrations, err := storage.Collect(
		directory.GetMigrations(),
		rbac.GetMigrations(),
		crosstenant.GetMigrations(),
		privacy.GetMigrations(),
		security.GetMigrations(),
		audit.GetMigrations(),
	)
	if err != nil {
		cm.Close()
		return err
	}
	if err := storage.RunMigrations(ctx, db, migrations, obsLogger); err != nil {
		cm.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	catalog := permissions.DefaultCatalog()
	if cfg.CatalogPath != "" {
		catalog, err = permissions.LoadCatalogFile(cfg.CatalogPath)
		if err != nil {
			cm.Close()
			return err
		}
		logger.WithField("path", cfg.CatalogPath).Info("Loaded permission catalog")
	}

	var redisClient *redis.Client
	rbacConfig := cfg.RBAC
	if cfg.Redis.URL != "" {
		redisClient, err = postgres.NewRedisClient(ctx, postgres.RedisConfig{
			URL:      cfg.Redis.URL,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			// the shared cache is optional; fall back to the in-process cache
			logger.WithError(err).Warn("Redis unavailable, using in-process permission cache only")
		} else {
			shared := postgres.NewRedisPermissionCache(redisClient, cfg.Redis.TTL, obsLogger, metrics)
			rbacConfig.Cache = rbac.NewTieredCache(rbac.NewMemoryCache(rbacConfig.CacheSize, rbacConfig.CacheTTL), shared)
		}
	}

	auditDB, err := audit.NewDBLogger(db)
	if err != nil {
		cm.Close()
		return err
	}
	auditSink := audit.NewMultiLogger(auditDB)

	dir := directory.NewSQLDirectory(db)
	manager := rbac.NewManager(db, catalog, dir, auditSink, metrics, rbacConfig)
	if err := manager.Initialize(ctx); err != nil {
		cm.Close()
		return fmt.Errorf("failed to seed built-in roles: %w", err)
	}

	if *migrateOnly {
		logger.Info("Migrations applied and built-in roles seeded")
		auditSink.Close()
		return cm.Close()
	}

	engine := crosstenant.NewEngine(crosstenant.NewStore(db), cfg.CrossTenant,
		crosstenant.WithAudit(auditSink),
		crosstenant.WithLogger(obsLogger),
		crosstenant.WithMetrics(metrics),
		crosstenant.WithOTelMetrics(otelMetrics),
	)

	sweeps := sweeper.New(logger, sweeper.WithMetrics(metrics))
	jobs := []sweeper.Job{
		sweeper.RuleExpiryJob(cfg.Sweeper.RuleExpirySchedule, engine),
		sweeper.AssignmentExpiryJob(cfg.Sweeper.AssignmentSchedule, manager.Ledger(), metrics),
		sweeper.AuditRetentionJob(cfg.Sweeper.AuditCleanupSchedule, auditDB, cfg.Sweeper.AuditRetention),
	}
	for _, job := range jobs {
		if !cfg.Sweeper.Enabled {
			job.Schedule = ""
		}
		if err := sweeps.Add(job); err != nil {
			cm.Close()
			return err
		}
	}

	if *runOnce != "" {
		n, err := sweeps.RunOnce(ctx, *runOnce)
		auditSink.Close()
		cm.Close()
		if err != nil {
			return err
		}
		logger.WithFields(logrus.Fields{"job": *runOnce, "affected": n}).Info("Sweep finished")
		return nil
	}

	router := mux.NewRouter()
	observability.RegisterHealthRoutes(router, observability.NewHealthChecker(db, redisClient, cfg.Observability.OTelServiceVersion))
	if cfg.Observability.MetricsEnabled {
		router.Handle("/metrics", observability.MetricsHandler(registry)).Methods(http.MethodGet)
	}

	handler := httputil.Chain(
		httputil.RequestContextMiddleware,
		observability.RecoveryMiddleware(obsLogger),
		observability.HTTPMetricsMiddleware(metrics),
	)(router)

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:      otelhttp.NewHandler(handler, "tenantguard-ops"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	cm.StartStatsReporter(runCtx, metrics, 0)
	sweeps.Start(runCtx)

	shutdown := observability.NewShutdownManager(obsLogger, server, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(sweeps.Stop)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return auditSink.Close()
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		if redisClient != nil {
			return redisClient.Close()
		}
		return nil
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, obsLogger)
	})

	go func() {
		logger.WithField("addr", server.Addr).Info("Ops server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Ops server failed")
			cancel()
		}
	}()

	err = shutdown.WaitForShutdown(runCtx)
	if closeErr := cm.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	logger.Info("tenantguard stopped")
	return err
}
