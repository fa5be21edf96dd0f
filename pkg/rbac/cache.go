package rbac

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// PermissionCache stores resolved permission maps by role id.
// Implementations swallow backend errors; a failed read is a miss.
type PermissionCache interface {
	Get(ctx context.Context, roleID int64) (map[string]bool, bool)
	Set(ctx context.Context, roleID int64, perms map[string]bool)
	Invalidate(ctx context.Context, roleID int64)
	Purge(ctx context.Context)
}

// MemoryCache is an in-process LRU cache with per-entry TTL
type MemoryCache struct {
	cache *lru.LRU[int64, map[string]bool]
}

// NewMemoryCache creates a cache holding up to size entries for ttl
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	if size < 1 {
		size = 1
	}
	return &MemoryCache{
		cache: lru.NewLRU[int64, map[string]bool](size, nil, ttl),
	}
}

// Get returns a copy of the cached map
func (c *MemoryCache) Get(ctx context.Context, roleID int64) (map[string]bool, bool) {
	perms, ok := c.cache.Get(roleID)
	if !ok {
		return nil, false
	}
	return copyPermissions(perms), true
}

// Set stores a copy of perms
func (c *MemoryCache) Set(ctx context.Context, roleID int64, perms map[string]bool) {
	c.cache.Add(roleID, copyPermissions(perms))
}

// Invalidate drops one role
func (c *MemoryCache) Invalidate(ctx context.Context, roleID int64) {
	c.cache.Remove(roleID)
}

// Purge drops every entry
func (c *MemoryCache) Purge(ctx context.Context) {
	c.cache.Purge()
}

// Len returns the number of cached roles
func (c *MemoryCache) Len() int {
	return c.cache.Len()
}

func copyPermissions(perms map[string]bool) map[string]bool {
	out := make(map[string]bool, len(perms))
	for k, v := range perms {
		out[k] = v
	}
	return out
}

// TieredCache checks a local cache before a shared one. Hits in the shared
// cache are copied into the local one.
type TieredCache struct {
	local  PermissionCache
	shared PermissionCache
}

// NewTieredCache layers local over shared
func NewTieredCache(local, shared PermissionCache) *TieredCache {
	return &TieredCache{local: local, shared: shared}
}

func (c *TieredCache) Get(ctx context.Context, roleID int64) (map[string]bool, bool) {
	if perms, ok := c.local.Get(ctx, roleID); ok {
		return perms, true
	}
	perms, ok := c.shared.Get(ctx, roleID)
	if !ok {
		return nil, false
	}
	c.local.Set(ctx, roleID, perms)
	return perms, true
}

func (c *TieredCache) Set(ctx context.Context, roleID int64, perms map[string]bool) {
	c.local.Set(ctx, roleID, perms)
	c.shared.Set(ctx, roleID, perms)
}

func (c *TieredCache) Invalidate(ctx context.Context, roleID int64) {
	c.local.Invalidate(ctx, roleID)
	c.shared.Invalidate(ctx, roleID)
}

func (c *TieredCache) Purge(ctx context.Context) {
	c.local.Purge(ctx)
	c.shared.Purge(ctx)
}
