package config

import (
	"os"
	"testing"
	"time"

	"github.com/platinummonkey/tenantguard/pkg/crosstenant"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
	"github.com/platinummonkey/tenantguard/pkg/security"
)

// TestGetEnv tests the getEnv helper function
func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns env value when set",
			key:          "TEST_VAR",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when env not set",
			key:          "TEST_VAR_NOT_SET",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvBool tests the getEnvBool helper function
func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue bool
		envValue     string
		want         bool
	}{
		{
			name:         "returns true for 'true'",
			key:          "TEST_BOOL",
			defaultValue: false,
			envValue:     "true",
			want:         true,
		},
		{
			name:         "returns true for '1'",
			key:          "TEST_BOOL",
			defaultValue: false,
			envValue:     "1",
			want:         true,
		},
		{
			name:         "returns false for 'false'",
			key:          "TEST_BOOL",
			defaultValue: true,
			envValue:     "false",
			want:         false,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_BOOL_NOT_SET",
			defaultValue: true,
			envValue:     "",
			want:         true,
		},
		{
			name:         "returns true for 'TRUE' (case insensitive)",
			key:          "TEST_BOOL",
			defaultValue: false,
			envValue:     "TRUE",
			want:         true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			} else {
				os.Unsetenv(tt.key)
			}

			got := getEnvBool(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvBool() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvInt tests the getEnvInt helper function
func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue int
		envValue     string
		want         int
	}{
		{
			name:         "returns parsed int",
			key:          "TEST_INT",
			defaultValue: 10,
			envValue:     "42",
			want:         42,
		},
		{
			name:         "returns default for invalid int",
			key:          "TEST_INT",
			defaultValue: 10,
			envValue:     "invalid",
			want:         10,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_INT_NOT_SET",
			defaultValue: 10,
			envValue:     "",
			want:         10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			} else {
				os.Unsetenv(tt.key)
			}

			got := getEnvInt(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvInt() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvDuration tests the getEnvDuration helper function
func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue time.Duration
		envValue     string
		want         time.Duration
	}{
		{
			name:         "returns parsed duration",
			key:          "TEST_DURATION",
			defaultValue: 10 * time.Second,
			envValue:     "30s",
			want:         30 * time.Second,
		},
		{
			name:         "returns default for invalid duration",
			key:          "TEST_DURATION",
			defaultValue: 10 * time.Second,
			envValue:     "invalid",
			want:         10 * time.Second,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_DURATION_NOT_SET",
			defaultValue: 10 * time.Second,
			envValue:     "",
			want:         10 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			} else {
				os.Unsetenv(tt.key)
			}

			got := getEnvDuration(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

// setRequired sets the variables without which LoadConfig fails
func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("TENANTGUARD_POSTGRES_URL", "postgres://tenantguard@localhost/tenantguard?sslmode=disable")
}

// TestLoadConfigDefaults tests the defaults applied when only required settings are present
func TestLoadConfigDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.HealthPort != "9090" {
		t.Errorf("HealthPort = %v, want 9090", cfg.Server.HealthPort)
	}
	if cfg.Database.MaxConns != 20 {
		t.Errorf("MaxConns = %v, want 20", cfg.Database.MaxConns)
	}
	if cfg.Redis.URL != "" {
		t.Errorf("Redis.URL = %q, want empty", cfg.Redis.URL)
	}
	if cfg.RBAC.CacheSize != 1024 || cfg.RBAC.CacheTTL != 5*time.Minute {
		t.Errorf("RBAC = %+v, want size 1024 ttl 5m", cfg.RBAC)
	}
	if !cfg.CrossTenant.LogChecks || !cfg.CrossTenant.AsyncAudit {
		t.Errorf("CrossTenant = %+v, want checks logged asynchronously", cfg.CrossTenant)
	}
	if cfg.Risk.BotUserAgentPoints != 50 || cfg.Risk.MFAThreshold != 50 || cfg.Risk.PublicIPMFAThreshold != 30 {
		t.Errorf("Risk = %+v, want default weights", cfg.Risk)
	}
	if cfg.Sweeper.RuleExpirySchedule != "*/5 * * * *" {
		t.Errorf("RuleExpirySchedule = %q", cfg.Sweeper.RuleExpirySchedule)
	}
	if cfg.Observability.LogLevel != observability.InfoLevel {
		t.Errorf("LogLevel = %v, want info", cfg.Observability.LogLevel)
	}
}

// TestLoadConfigOverrides tests that environment variables replace defaults
func TestLoadConfigOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("TENANTGUARD_HEALTH_PORT", "9191")
	t.Setenv("TENANTGUARD_REDIS_URL", "redis://cache:6379/1")
	t.Setenv("TENANTGUARD_REDIS_CACHE_TTL", "1m")
	t.Setenv("TENANTGUARD_L1_CACHE_SIZE", "0")
	t.Setenv("TENANTGUARD_LOG_CHECKS", "false")
	t.Setenv("TENANTGUARD_ASYNC_AUDIT", "0")
	t.Setenv("TENANTGUARD_RISK_BOT_POINTS", "40")
	t.Setenv("TENANTGUARD_RISK_TIMEZONE", "UTC")
	t.Setenv("TENANTGUARD_LOG_LEVEL", "debug")
	t.Setenv("TENANTGUARD_CATALOG_PATH", "/etc/tenantguard/permissions.yaml")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.HealthPort != "9191" {
		t.Errorf("HealthPort = %v, want 9191", cfg.Server.HealthPort)
	}
	if cfg.Redis.URL != "redis://cache:6379/1" || cfg.Redis.TTL != time.Minute {
		t.Errorf("Redis = %+v", cfg.Redis)
	}
	if cfg.RBAC.CacheSize != 0 {
		t.Errorf("CacheSize = %v, want 0", cfg.RBAC.CacheSize)
	}
	if cfg.CrossTenant.LogChecks || cfg.CrossTenant.AsyncAudit {
		t.Errorf("CrossTenant = %+v, want auditing off", cfg.CrossTenant)
	}
	if cfg.Risk.BotUserAgentPoints != 40 {
		t.Errorf("BotUserAgentPoints = %v, want 40", cfg.Risk.BotUserAgentPoints)
	}
	if cfg.Risk.Location != time.UTC {
		t.Errorf("Location = %v, want UTC", cfg.Risk.Location)
	}
	if cfg.Observability.LogLevel != observability.DebugLevel {
		t.Errorf("LogLevel = %v, want debug", cfg.Observability.LogLevel)
	}
	if cfg.CatalogPath != "/etc/tenantguard/permissions.yaml" {
		t.Errorf("CatalogPath = %q", cfg.CatalogPath)
	}
}

// TestLoadConfigRequiresDatabase tests that a missing postgres URL is rejected
func TestLoadConfigRequiresDatabase(t *testing.T) {
	t.Setenv("TENANTGUARD_POSTGRES_URL", "")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig() expected error without postgres URL")
	}
}

// validConfig returns a configuration that passes Validate
func validConfig() *Config {
	return &Config{
		Server:      loadServerConfig(),
		Database:    DatabaseConfig{URL: "postgres://localhost/tenantguard", MaxConns: 10, MinConns: 1},
		RBAC:        rbac.DefaultConfig(),
		CrossTenant: crosstenant.DefaultConfig(),
		Risk:        security.DefaultConfig(),
		Sweeper: SweeperConfig{
			Enabled:              true,
			RuleExpirySchedule:   "*/5 * * * *",
			AssignmentSchedule:   "@hourly",
			AuditCleanupSchedule: "0 3 * * *",
			AuditRetention:       24 * time.Hour,
		},
	}
}

// TestConfigValidate tests configuration validation
func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing health port", mutate: func(c *Config) { c.Server.HealthPort = "" }, wantErr: true},
		{name: "non-numeric health port", mutate: func(c *Config) { c.Server.HealthPort = "http" }, wantErr: true},
		{name: "missing database", mutate: func(c *Config) { c.Database.URL = "" }, wantErr: true},
		{name: "zero max conns", mutate: func(c *Config) { c.Database.MaxConns = 0 }, wantErr: true},
		{name: "min above max", mutate: func(c *Config) { c.Database.MinConns = 50 }, wantErr: true},
		{name: "redis without ttl", mutate: func(c *Config) { c.Redis.URL = "redis://localhost:6379" }, wantErr: true},
		{name: "l1 cache without ttl", mutate: func(c *Config) { c.RBAC.CacheTTL = 0 }, wantErr: true},
		{name: "l1 cache disabled", mutate: func(c *Config) { c.RBAC.CacheSize = 0; c.RBAC.CacheTTL = 0 }},
		{name: "negative weight", mutate: func(c *Config) { c.Risk.BotUserAgentPoints = -1 }, wantErr: true},
		{name: "inverted quiet hours", mutate: func(c *Config) { c.Risk.QuietHourStart = 23; c.Risk.QuietHourEnd = 5 }, wantErr: true},
		{name: "mfa threshold above max", mutate: func(c *Config) { c.Risk.MFAThreshold = 101 }, wantErr: true},
		{name: "bad cron", mutate: func(c *Config) { c.Sweeper.RuleExpirySchedule = "every minute" }, wantErr: true},
		{name: "bad cron with sweeper disabled", mutate: func(c *Config) { c.Sweeper.Enabled = false; c.Sweeper.RuleExpirySchedule = "every minute" }},
		{name: "disabled job", mutate: func(c *Config) { c.Sweeper.AssignmentSchedule = "" }},
		{name: "audit cleanup without retention", mutate: func(c *Config) { c.Sweeper.AuditRetention = 0 }, wantErr: true},
		{name: "otel without endpoint", mutate: func(c *Config) { c.Observability.OTelEnabled = true; c.Observability.OTelServiceName = "tenantguard" }, wantErr: true},
		{name: "otel without service name", mutate: func(c *Config) { c.Observability.OTelEnabled = true; c.Observability.OTelEndpoint = "collector:4317" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
