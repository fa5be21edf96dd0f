// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings. Every variable carries the TENANTGUARD_ prefix.
//
// # Configuration Structure
//
// Server settings:
//
//	TENANTGUARD_HOST="0.0.0.0"
//	TENANTGUARD_HEALTH_PORT="9090"
//	TENANTGUARD_SHUTDOWN_TIMEOUT="30s"
//
// Database settings:
//
//	TENANTGUARD_POSTGRES_URL="postgres://localhost/tenantguard"  # required
//	TENANTGUARD_POSTGRES_MAX_CONNS="20"
//	TENANTGUARD_POSTGRES_MIN_CONNS="2"
//
// Cache settings:
//
//	TENANTGUARD_REDIS_URL="redis://localhost:6379"  # empty disables the shared cache
//	TENANTGUARD_REDIS_CACHE_TTL="10m"
//	TENANTGUARD_L1_CACHE_SIZE="1024"  # 0 disables the in-process cache
//	TENANTGUARD_L1_CACHE_TTL="5m"
//
// Authorization settings:
//
//	TENANTGUARD_LOG_CHECKS="true"
//	TENANTGUARD_ASYNC_AUDIT="true"
//	TENANTGUARD_CATALOG_PATH="/etc/tenantguard/permissions.yaml"
//	TENANTGUARD_RISK_BOT_POINTS="50"
//	TENANTGUARD_RISK_MFA_THRESHOLD="50"
//	TENANTGUARD_RISK_TIMEZONE="Europe/Berlin"
//
// Sweeps (standard five-field cron, empty disables a job):
//
//	TENANTGUARD_SWEEP_RULES_CRON="*/5 * * * *"
//	TENANTGUARD_SWEEP_ASSIGNMENTS_CRON="*/5 * * * *"
//	TENANTGUARD_SWEEP_AUDIT_CRON="0 3 * * *"
//	TENANTGUARD_AUDIT_RETENTION="2160h"
//
// Observability settings:
//
//	TENANTGUARD_LOG_LEVEL="info"  # debug, info, warn, error
//	TENANTGUARD_METRICS_ENABLED="true"
//	TENANTGUARD_OTEL_ENABLED="true"
//	TENANTGUARD_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Related Packages
//
//   - pkg/rbac, pkg/crosstenant, pkg/security: configuration types embedded here
//   - pkg/observability: Uses observability configuration
package config
