package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/tenantguard/pkg/observability"
)

const permissionKeyPrefix = "role_perms:"

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	URL        string
	Password   string
	DB         int
	MaxRetries int
	PoolSize   int
}

// NewRedisClient parses the URL, applies overrides and verifies the server
func NewRedisClient(ctx context.Context, config RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if config.Password != "" {
		opts.Password = config.Password
	}
	if config.DB > 0 {
		opts.DB = config.DB
	}
	if config.MaxRetries > 0 {
		opts.MaxRetries = config.MaxRetries
	}
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// RedisPermissionCache shares resolved role permissions between instances.
// Backend errors are logged and treated as misses.
type RedisPermissionCache struct {
	client  *redis.Client
	ttl     time.Duration
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewRedisPermissionCache creates a cache storing entries for ttl
func NewRedisPermissionCache(client *redis.Client, ttl time.Duration, logger *observability.Logger, metrics *observability.Metrics) *RedisPermissionCache {
	if logger == nil {
		logger = observability.NewLogger(observability.WarnLevel, nil)
	}
	return &RedisPermissionCache{
		client:  client,
		ttl:     ttl,
		logger:  logger,
		metrics: metrics,
	}
}

func permissionKey(roleID int64) string {
	return permissionKeyPrefix + strconv.FormatInt(roleID, 10)
}

// Get returns the cached permission map for a role
func (c *RedisPermissionCache) Get(ctx context.Context, roleID int64) (map[string]bool, bool) {
	key := permissionKey(roleID)

	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		c.record("get", "miss")
		return nil, false
	}
	if err != nil {
		c.record("get", "error")
		c.logger.WithError(err).WithField("role_id", roleID).Warn("redis permission cache read failed")
		return nil, false
	}

	var codes []string
	if err := json.Unmarshal(data, &codes); err != nil {
		c.record("get", "error")
		c.client.Del(ctx, key)
		return nil, false
	}

	c.record("get", "hit")
	perms := make(map[string]bool, len(codes))
	for _, code := range codes {
		perms[code] = true
	}
	return perms, true
}

// Set stores the granted codes of perms
func (c *RedisPermissionCache) Set(ctx context.Context, roleID int64, perms map[string]bool) {
	codes := make([]string, 0, len(perms))
	for code, granted := range perms {
		if granted {
			codes = append(codes, code)
		}
	}
	data, err := json.Marshal(codes)
	if err != nil {
		return
	}

	if err := c.client.Set(ctx, permissionKey(roleID), data, c.ttl).Err(); err != nil {
		c.record("set", "error")
		c.logger.WithError(err).WithField("role_id", roleID).Warn("redis permission cache write failed")
		return
	}
	c.record("set", "ok")
}

// Invalidate removes one role
func (c *RedisPermissionCache) Invalidate(ctx context.Context, roleID int64) {
	if err := c.client.Del(ctx, permissionKey(roleID)).Err(); err != nil {
		c.record("del", "error")
		c.logger.WithError(err).WithField("role_id", roleID).Warn("redis permission cache invalidation failed")
		return
	}
	c.record("del", "ok")
}

// Purge removes every cached role
func (c *RedisPermissionCache) Purge(ctx context.Context) {
	iter := c.client.Scan(ctx, 0, permissionKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			c.record("del", "error")
			c.logger.WithError(err).WithField("key", iter.Val()).Warn("redis permission cache purge failed")
			return
		}
	}
	if err := iter.Err(); err != nil {
		c.record("scan", "error")
		c.logger.WithError(err).Warn("redis permission cache scan failed")
		return
	}
	c.record("scan", "ok")
}

func (c *RedisPermissionCache) record(command, status string) {
	if c.metrics != nil {
		c.metrics.RedisCommandsTotal.WithLabelValues(command, status).Inc()
	}
}
