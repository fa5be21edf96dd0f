package rbac

import (
	"context"
	"sort"
	"time"

	"github.com/platinummonkey/tenantguard/pkg/apperr"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/permissions"
)

// Resolver computes effective role permissions along the inheritance chain
type Resolver struct {
	roles   RoleFinder
	catalog *permissions.Catalog
	cache   PermissionCache
	metrics *observability.Metrics
}

// ResolverOption configures a Resolver
type ResolverOption func(*Resolver)

// WithCache enables caching of resolved maps
func WithCache(cache PermissionCache) ResolverOption {
	return func(r *Resolver) { r.cache = cache }
}

// WithMetrics records cache hits and resolution latency
func WithMetrics(m *observability.Metrics) ResolverOption {
	return func(r *Resolver) { r.metrics = m }
}

// NewResolver creates a resolver. A nil catalog disables dependency implication.
func NewResolver(roles RoleFinder, catalog *permissions.Catalog, opts ...ResolverOption) *Resolver {
	r := &Resolver{roles: roles, catalog: catalog}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveEffectivePermissions merges the permission maps of a role and all of
// its ancestors. Values set closer to the role win. Soft-deleted ancestors
// contribute nothing but their own ancestors are still applied.
func (r *Resolver) ResolveEffectivePermissions(ctx context.Context, roleID int64) (map[string]bool, error) {
	if r.cache != nil {
		if perms, ok := r.cache.Get(ctx, roleID); ok {
			r.recordCache("hit")
			return perms, nil
		}
		r.recordCache("miss")
	}

	start := time.Now()
	chain, err := r.ancestry(ctx, roleID)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]bool)
	for i := len(chain) - 1; i >= 0; i-- {
		if chain[i].IsDeleted {
			continue
		}
		for code, allowed := range chain[i].Permissions {
			merged[code] = allowed
		}
	}

	if r.metrics != nil {
		r.metrics.PermissionResolutionDuration.Observe(time.Since(start).Seconds())
	}
	if r.cache != nil {
		r.cache.Set(ctx, roleID, merged)
	}
	return merged, nil
}

// ancestry returns the role followed by its ancestors, nearest first
func (r *Resolver) ancestry(ctx context.Context, roleID int64) ([]*Role, error) {
	visited := make(map[int64]bool)
	var chain []*Role

	id := roleID
	for {
		if visited[id] {
			return nil, apperr.CycleDetected("role %d reaches role %d twice while resolving inheritance", roleID, id)
		}
		visited[id] = true

		role, err := r.roles.FindRole(ctx, id)
		if err != nil {
			return nil, err
		}
		if id == roleID && role.IsDeleted {
			return nil, apperr.NotFound("role %d", roleID)
		}
		chain = append(chain, role)

		if role.ParentID == nil {
			return chain, nil
		}
		id = *role.ParentID
	}
}

// HasPermission reports whether the role grants code, either explicitly or
// because a granted permission depends on it
func (r *Resolver) HasPermission(ctx context.Context, roleID int64, code string) (bool, error) {
	perms, err := r.ResolveEffectivePermissions(ctx, roleID)
	if err != nil {
		return false, err
	}
	return r.Grants(perms, code), nil
}

// Grants reports whether a resolved permission map grants code
func (r *Resolver) Grants(perms map[string]bool, code string) bool {
	if perms[code] {
		return true
	}
	if r.catalog == nil {
		return false
	}
	for granted, allowed := range perms {
		if allowed && r.catalog.Implies(granted, code) {
			return true
		}
	}
	return false
}

// DetectConflicts lists permissions both roles resolve but to different values
func (r *Resolver) DetectConflicts(ctx context.Context, roleA, roleB int64) ([]Conflict, error) {
	a, err := r.ResolveEffectivePermissions(ctx, roleA)
	if err != nil {
		return nil, err
	}
	b, err := r.ResolveEffectivePermissions(ctx, roleB)
	if err != nil {
		return nil, err
	}

	var conflicts []Conflict
	for code, av := range a {
		if bv, ok := b[code]; ok && av != bv {
			conflicts = append(conflicts, Conflict{Code: code, RoleAValue: av, RoleBValue: bv})
		}
	}
	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].Code < conflicts[j].Code })
	return conflicts, nil
}

// ResolveAssignments merges the effective permissions of several assignments.
// A permission granted by any role is granted.
func (r *Resolver) ResolveAssignments(ctx context.Context, assignments []UserRoleAssignment) (map[string]bool, error) {
	merged := make(map[string]bool)
	for _, a := range assignments {
		perms, err := r.ResolveEffectivePermissions(ctx, a.RoleID)
		if err != nil {
			return nil, err
		}
		for code, allowed := range perms {
			merged[code] = merged[code] || allowed
		}
	}
	return merged, nil
}

func (r *Resolver) recordCache(result string) {
	if r.metrics != nil {
		r.metrics.PermissionCacheTotal.WithLabelValues(result).Inc()
	}
}
