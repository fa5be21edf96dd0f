// Package observability provides structured logging, Prometheus metrics, and OpenTelemetry tracing.
//
// # Overview
//
// This package centralizes the operational plumbing shared by the
// authorization components: JSON logging on slog, the Prometheus metric set,
// OTLP tracing and metric export, health checks, panic recovery and graceful
// shutdown.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("rule_id", id).Info("cross-tenant rule created")
//
// Context-aware logging picks up the request ID and acting user:
//
//	observability.FromContext(ctx).Warn("permission cache unavailable")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.CrossTenantChecksTotal.WithLabelValues("true").Inc()
//	router.Handle("/metrics", observability.MetricsHandler(registry))
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient, version)
//	observability.RegisterHealthRoutes(router, checker)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "tenantguard",
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//
//	ctx, span := observability.StartSpan(ctx, "crosstenant.check")
//	defer func() { observability.EndSpan(span, err) }()
//
// # Related Packages
//
//   - pkg/config: Observability configuration
//   - pkg/sweeper: Background jobs reporting SweepRunsTotal
package observability
