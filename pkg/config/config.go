package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/tenantguard/pkg/crosstenant"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
	"github.com/platinummonkey/tenantguard/pkg/security"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Shared Redis permission cache
	Redis RedisConfig

	// In-process role cache
	RBAC rbac.Config

	// Cross-tenant decision auditing
	CrossTenant crosstenant.Config

	// Risk model weights and thresholds
	Risk security.Config

	// Maintenance sweeps
	Sweeper SweeperConfig

	// CatalogPath optionally replaces the built-in permission catalog
	CatalogPath string

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds the ops HTTP server configuration
type ServerConfig struct {
	Host            string
	HealthPort      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL         string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// RedisConfig holds Redis cache settings. An empty URL disables the shared cache.
type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
	TTL      time.Duration
}

// SweeperConfig holds cron schedules for maintenance jobs. An empty schedule
// disables the job.
type SweeperConfig struct {
	Enabled              bool
	RuleExpirySchedule   string
	AssignmentSchedule   string
	AuditCleanupSchedule string
	AuditRetention       time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		RBAC:          loadRBACConfig(),
		CrossTenant:   loadCrossTenantConfig(),
		Risk:          loadRiskConfig(),
		Sweeper:       loadSweeperConfig(),
		CatalogPath:   getEnv("TENANTGUARD_CATALOG_PATH", ""),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("TENANTGUARD_HOST", "0.0.0.0"),
		HealthPort:      getEnv("TENANTGUARD_HEALTH_PORT", "9090"),
		ReadTimeout:     getEnvDuration("TENANTGUARD_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("TENANTGUARD_WRITE_TIMEOUT", 15*time.Second),
		ShutdownTimeout: getEnvDuration("TENANTGUARD_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:         getEnv("TENANTGUARD_POSTGRES_URL", ""),
		MaxConns:    getEnvInt("TENANTGUARD_POSTGRES_MAX_CONNS", 20),
		MinConns:    getEnvInt("TENANTGUARD_POSTGRES_MIN_CONNS", 2),
		Timeout:     getEnvDuration("TENANTGUARD_POSTGRES_TIMEOUT", 10*time.Second),
		MaxLifetime: getEnvDuration("TENANTGUARD_POSTGRES_MAX_LIFETIME", 30*time.Minute),
		MaxIdleTime: getEnvDuration("TENANTGUARD_POSTGRES_MAX_IDLE_TIME", 5*time.Minute),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:      getEnv("TENANTGUARD_REDIS_URL", ""),
		Password: getEnv("TENANTGUARD_REDIS_PASSWORD", ""),
		DB:       getEnvInt("TENANTGUARD_REDIS_DB", 0),
		PoolSize: getEnvInt("TENANTGUARD_REDIS_POOL_SIZE", 10),
		TTL:      getEnvDuration("TENANTGUARD_REDIS_CACHE_TTL", 10*time.Minute),
	}
}

func loadRBACConfig() rbac.Config {
	cfg := rbac.DefaultConfig()
	if size := getEnvInt("TENANTGUARD_L1_CACHE_SIZE", -1); size >= 0 {
		cfg.CacheSize = size
	}
	cfg.CacheTTL = getEnvDuration("TENANTGUARD_L1_CACHE_TTL", cfg.CacheTTL)
	return cfg
}

func loadCrossTenantConfig() crosstenant.Config {
	cfg := crosstenant.DefaultConfig()
	cfg.LogChecks = getEnvBool("TENANTGUARD_LOG_CHECKS", cfg.LogChecks)
	cfg.AsyncAudit = getEnvBool("TENANTGUARD_ASYNC_AUDIT", cfg.AsyncAudit)
	cfg.AuditTimeout = getEnvDuration("TENANTGUARD_AUDIT_TIMEOUT", cfg.AuditTimeout)
	return cfg
}

func loadRiskConfig() security.Config {
	cfg := security.DefaultConfig()

	cfg.SuspiciousIPPoints = getEnvInt("TENANTGUARD_RISK_SUSPICIOUS_IP_POINTS", cfg.SuspiciousIPPoints)
	cfg.ConcurrentIPsPoints = getEnvInt("TENANTGUARD_RISK_CONCURRENT_IPS_POINTS", cfg.ConcurrentIPsPoints)
	cfg.BotUserAgentPoints = getEnvInt("TENANTGUARD_RISK_BOT_POINTS", cfg.BotUserAgentPoints)
	cfg.UnknownDevicePoints = getEnvInt("TENANTGUARD_RISK_UNKNOWN_DEVICE_POINTS", cfg.UnknownDevicePoints)
	cfg.MissingDevicePoints = getEnvInt("TENANTGUARD_RISK_MISSING_DEVICE_POINTS", cfg.MissingDevicePoints)
	cfg.UnusualHourPoints = getEnvInt("TENANTGUARD_RISK_UNUSUAL_HOUR_POINTS", cfg.UnusualHourPoints)
	cfg.NewAccountPoints = getEnvInt("TENANTGUARD_RISK_NEW_ACCOUNT_POINTS", cfg.NewAccountPoints)
	cfg.ConcurrentIPThreshold = getEnvInt("TENANTGUARD_RISK_CONCURRENT_IP_THRESHOLD", cfg.ConcurrentIPThreshold)
	cfg.IPHistoryWindow = getEnvDuration("TENANTGUARD_RISK_IP_HISTORY_WINDOW", cfg.IPHistoryWindow)
	cfg.NewAccountAge = getEnvDuration("TENANTGUARD_RISK_NEW_ACCOUNT_AGE", cfg.NewAccountAge)
	cfg.QuietHourStart = getEnvInt("TENANTGUARD_RISK_QUIET_HOUR_START", cfg.QuietHourStart)
	cfg.QuietHourEnd = getEnvInt("TENANTGUARD_RISK_QUIET_HOUR_END", cfg.QuietHourEnd)
	cfg.MFAThreshold = getEnvInt("TENANTGUARD_RISK_MFA_THRESHOLD", cfg.MFAThreshold)
	cfg.PublicIPMFAThreshold = getEnvInt("TENANTGUARD_RISK_PUBLIC_IP_MFA_THRESHOLD", cfg.PublicIPMFAThreshold)

	if tz := getEnv("TENANTGUARD_RISK_TIMEZONE", ""); tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			cfg.Location = loc
		}
	}

	return cfg
}

func loadSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Enabled:              getEnvBool("TENANTGUARD_SWEEPER_ENABLED", true),
		RuleExpirySchedule:   getEnv("TENANTGUARD_SWEEP_RULES_CRON", "*/5 * * * *"),
		AssignmentSchedule:   getEnv("TENANTGUARD_SWEEP_ASSIGNMENTS_CRON", "*/5 * * * *"),
		AuditCleanupSchedule: getEnv("TENANTGUARD_SWEEP_AUDIT_CRON", "0 3 * * *"),
		AuditRetention:       getEnvDuration("TENANTGUARD_AUDIT_RETENTION", 90*24*time.Hour),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLevel(getEnv("TENANTGUARD_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("TENANTGUARD_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("TENANTGUARD_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("TENANTGUARD_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("TENANTGUARD_OTEL_SERVICE_NAME", "tenantguard"),
		OTelServiceVersion: getEnv("TENANTGUARD_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("TENANTGUARD_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if _, err := strconv.Atoi(c.Server.HealthPort); err != nil {
		return fmt.Errorf("invalid health port %q", c.Server.HealthPort)
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Database.MaxConns <= 0 {
		return fmt.Errorf("postgres max connections must be positive")
	}
	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("postgres min connections (%d) exceed max connections (%d)", c.Database.MinConns, c.Database.MaxConns)
	}

	if c.Redis.URL != "" && c.Redis.TTL <= 0 {
		return fmt.Errorf("redis cache TTL must be positive")
	}
	if c.RBAC.CacheSize > 0 && c.RBAC.CacheTTL <= 0 {
		return fmt.Errorf("L1 cache TTL must be positive")
	}

	if err := validateRisk(c.Risk); err != nil {
		return err
	}

	if c.Sweeper.Enabled {
		schedules := map[string]string{
			"rule expiry":   c.Sweeper.RuleExpirySchedule,
			"assignment":    c.Sweeper.AssignmentSchedule,
			"audit cleanup": c.Sweeper.AuditCleanupSchedule,
		}
		for name, spec := range schedules {
			if spec == "" {
				continue
			}
			if _, err := cron.ParseStandard(spec); err != nil {
				return fmt.Errorf("invalid %s schedule %q: %w", name, spec, err)
			}
		}
		if c.Sweeper.AuditCleanupSchedule != "" && c.Sweeper.AuditRetention <= 0 {
			return fmt.Errorf("audit retention must be positive")
		}
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

func validateRisk(r security.Config) error {
	points := map[string]int{
		"suspicious ip":  r.SuspiciousIPPoints,
		"concurrent ips": r.ConcurrentIPsPoints,
		"bot":            r.BotUserAgentPoints,
		"unknown device": r.UnknownDevicePoints,
		"missing device": r.MissingDevicePoints,
		"unusual hour":   r.UnusualHourPoints,
		"new account":    r.NewAccountPoints,
	}
	for name, p := range points {
		if p < 0 {
			return fmt.Errorf("risk weight %s must not be negative", name)
		}
	}
	if r.QuietHourStart < 0 || r.QuietHourEnd > 23 || r.QuietHourStart > r.QuietHourEnd {
		return fmt.Errorf("invalid quiet hours %d-%d", r.QuietHourStart, r.QuietHourEnd)
	}
	if r.MFAThreshold < 0 || r.MFAThreshold > security.MaxScore {
		return fmt.Errorf("MFA threshold must be within 0-%d", security.MaxScore)
	}
	if r.PublicIPMFAThreshold < 0 || r.PublicIPMFAThreshold > security.MaxScore {
		return fmt.Errorf("public IP MFA threshold must be within 0-%d", security.MaxScore)
	}
	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
