package rbac

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/platinummonkey/tenantguard/pkg/apperr"
	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/directory"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/permissions"
)

// Config holds RBAC configuration
type Config struct {
	// CacheSize is the number of resolved roles kept in memory. Zero disables the
	// in-process cache unless Cache is set.
	CacheSize int

	// CacheTTL is how long a resolved permission map stays cached
	CacheTTL time.Duration

	// Cache overrides the in-process cache, e.g. with a shared Redis cache
	Cache PermissionCache
}

// DefaultConfig returns default RBAC configuration
func DefaultConfig() Config {
	return Config{
		CacheSize: 1024,
		CacheTTL:  5 * time.Minute,
	}
}

// Manager wires the role store, resolver and assignment ledger together
type Manager struct {
	store    *Store
	resolver *Resolver
	ledger   *Ledger
	config   Config
}

// NewManager creates a new RBAC manager
func NewManager(db *sql.DB, catalog *permissions.Catalog, orgs directory.OrganizationDirectory, auditLogger audit.Logger, metrics *observability.Metrics, config Config) *Manager {
	store := NewStore(db, catalog)

	cache := config.Cache
	if cache == nil && config.CacheSize > 0 {
		cache = NewMemoryCache(config.CacheSize, config.CacheTTL)
	}

	opts := []ResolverOption{WithMetrics(metrics)}
	if cache != nil {
		store.SetCache(cache)
		opts = append(opts, WithCache(cache))
	}

	if auditLogger == nil {
		auditLogger = audit.NoOp()
	}

	return &Manager{
		store:    store,
		resolver: NewResolver(store, catalog, opts...),
		ledger:   NewLedger(db, store, orgs, WithLedgerAudit(auditLogger)),
		config:   config,
	}
}

// Initialize seeds the built-in roles and links their hierarchy.
// Running it again leaves existing roles untouched.
func (m *Manager) Initialize(ctx context.Context) error {
	ids := make(map[string]int64)
	for _, role := range BuiltInRoles() {
		existing, err := m.store.GetRoleByCode(ctx, role.Code)
		if err == nil {
			ids[role.Code] = existing.ID
			continue
		}
		if !apperr.IsNotFound(err) {
			return err
		}

		role := role
		if parent, ok := builtInParents[role.Code]; ok {
			parentID := ids[parent]
			role.ParentID = &parentID
		}
		if err := m.store.CreateRole(ctx, &role); err != nil {
			return fmt.Errorf("failed to create built-in role %s: %w", role.Code, err)
		}
		ids[role.Code] = role.ID
	}
	return nil
}

// Store returns the role store
func (m *Manager) Store() *Store {
	return m.store
}

// Resolver returns the permission resolver
func (m *Manager) Resolver() *Resolver {
	return m.resolver
}

// Ledger returns the assignment ledger
func (m *Manager) Ledger() *Ledger {
	return m.ledger
}

// EffectivePermissions resolves what a user may do inside an organization at t
func (m *Manager) EffectivePermissions(ctx context.Context, userID, orgID int64, at time.Time) (map[string]bool, error) {
	assignments, err := m.ledger.Effective(ctx, userID, &orgID, at)
	if err != nil {
		return nil, err
	}
	return m.resolver.ResolveAssignments(ctx, assignments)
}

// UserHasPermission reports whether any effective assignment of the user in
// orgID grants code at t
func (m *Manager) UserHasPermission(ctx context.Context, userID, orgID int64, code string, at time.Time) (bool, error) {
	perms, err := m.EffectivePermissions(ctx, userID, orgID, at)
	if err != nil {
		return false, err
	}
	return m.resolver.Grants(perms, code), nil
}
