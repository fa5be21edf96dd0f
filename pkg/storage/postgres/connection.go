package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/platinummonkey/tenantguard/pkg/observability"
)

// ConnectionManager owns the PostgreSQL pool shared by every store
type ConnectionManager struct {
	primary *sql.DB
	config  ConnectionConfig
	logger  *observability.Logger
}

// ConnectionConfig holds database connection configuration
type ConnectionConfig struct {
	URL         string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// NewConnectionManager opens the pool and verifies it with a ping
func NewConnectionManager(ctx context.Context, config ConnectionConfig, logger *observability.Logger) (*ConnectionManager, error) {
	if config.URL == "" {
		return nil, errors.New("database URL is required")
	}
	db, err := sql.Open("postgres", config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	cm, err := NewConnectionManagerFromDB(ctx, db, config, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return cm, nil
}

// NewConnectionManagerFromDB wraps an already opened pool
func NewConnectionManagerFromDB(ctx context.Context, db *sql.DB, config ConnectionConfig, logger *observability.Logger) (*ConnectionManager, error) {
	if logger == nil {
		logger = observability.NewLogger(observability.WarnLevel, nil)
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}

	configurePool(db, config)

	pingCtx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.WithFields(map[string]interface{}{
		"max_conns": config.MaxConns,
		"min_conns": config.MinConns,
	}).Info("database connection pool initialized")

	return &ConnectionManager{
		primary: db,
		config:  config,
		logger:  logger,
	}, nil
}

func configurePool(db *sql.DB, config ConnectionConfig) {
	if config.MaxConns > 0 {
		db.SetMaxOpenConns(config.MaxConns)
	}
	if config.MinConns > 0 {
		db.SetMaxIdleConns(config.MinConns)
	}
	if config.MaxLifetime > 0 {
		db.SetConnMaxLifetime(config.MaxLifetime)
	}
	if config.MaxIdleTime > 0 {
		db.SetConnMaxIdleTime(config.MaxIdleTime)
	}
}

// Primary returns the database pool
func (cm *ConnectionManager) Primary() *sql.DB {
	return cm.primary
}

// HealthCheck pings the database
func (cm *ConnectionManager) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, cm.config.Timeout)
	defer cancel()
	if err := cm.primary.PingContext(ctx); err != nil {
		return fmt.Errorf("database unhealthy: %w", err)
	}
	return nil
}

// Stats returns connection pool statistics
func (cm *ConnectionManager) Stats() sql.DBStats {
	return cm.primary.Stats()
}

// Close closes the pool
func (cm *ConnectionManager) Close() error {
	if err := cm.primary.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// StartStatsReporter copies pool statistics into metrics every interval
// until ctx is cancelled
func (cm *ConnectionManager) StartStatsReporter(ctx context.Context, metrics *observability.Metrics, interval time.Duration) {
	if metrics == nil {
		return
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		defer observability.RecoverPanic(cm.logger, "db stats reporter")

		metrics.RecordDBStats(cm.Stats())
		for {
			select {
			case <-ticker.C:
				metrics.RecordDBStats(cm.Stats())
			case <-ctx.Done():
				return
			}
		}
	}()
}
