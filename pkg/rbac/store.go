package rbac

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/platinummonkey/tenantguard/pkg/apperr"
	"github.com/platinummonkey/tenantguard/pkg/lifecycle"
	"github.com/platinummonkey/tenantguard/pkg/permissions"
)

// RoleFinder looks up a role by id, including soft-deleted roles
type RoleFinder interface {
	FindRole(ctx context.Context, roleID int64) (*Role, error)
}

// Store handles role persistence
type Store struct {
	db      *sql.DB
	catalog *permissions.Catalog
	cache   PermissionCache
	now     func() time.Time
}

// NewStore creates a new role store. A nil catalog disables permission code validation.
func NewStore(db *sql.DB, catalog *permissions.Catalog) *Store {
	return &Store{
		db:      db,
		catalog: catalog,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetCache registers the permission cache purged on every role write
func (s *Store) SetCache(cache PermissionCache) {
	s.cache = cache
}

const roleColumns = `id, code, name, description, permissions, parent_id, is_system, organization_id, created_at, updated_at, ` + lifecycle.Columns

// CreateRole creates a new role
func (s *Store) CreateRole(ctx context.Context, role *Role) error {
	if role.Code == "" {
		return apperr.Validation("role code is required")
	}
	if role.Name == "" {
		return apperr.Validation("role name is required")
	}
	if err := s.validatePermissions(role.Permissions); err != nil {
		return err
	}
	if existing, err := s.GetRoleByCode(ctx, role.Code); err == nil && existing != nil {
		return apperr.Validation("role code %q already exists", role.Code)
	} else if err != nil && !apperr.IsNotFound(err) {
		return err
	}
	if role.ParentID != nil {
		if _, err := s.GetRole(ctx, *role.ParentID); err != nil {
			return fmt.Errorf("invalid parent role: %w", err)
		}
	}

	permissionsJSON, err := marshalPermissions(role.Permissions)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO roles (code, name, description, permissions, parent_id, is_system, organization_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	now := s.now()
	err = s.db.QueryRowContext(ctx, query,
		role.Code,
		role.Name,
		role.Description,
		permissionsJSON,
		role.ParentID,
		role.IsSystem,
		role.OrganizationID,
		now,
		now,
	).Scan(&role.ID)
	if err != nil {
		return fmt.Errorf("failed to create role: %w", err)
	}

	role.CreatedAt = now
	role.UpdatedAt = now
	s.purge(ctx)
	return nil
}

// FindRole retrieves a role by ID whether or not it is soft-deleted
func (s *Store) FindRole(ctx context.Context, roleID int64) (*Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles WHERE id = $1`
	role, err := scanRole(s.db.QueryRowContext(ctx, query, roleID))
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("role %d", roleID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

// GetRole retrieves a live role by ID
func (s *Store) GetRole(ctx context.Context, roleID int64) (*Role, error) {
	role, err := s.FindRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if role.IsDeleted {
		return nil, apperr.NotFound("role %d", roleID)
	}
	return role, nil
}

// GetRoleByCode retrieves a live role by its unique code
func (s *Store) GetRoleByCode(ctx context.Context, code string) (*Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles WHERE code = $1 AND is_deleted = false`
	role, err := scanRole(s.db.QueryRowContext(ctx, query, code))
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("role %q", code)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

// ListRoles lists live global roles plus, when organizationID is set, the
// roles of that organization
func (s *Store) ListRoles(ctx context.Context, organizationID *int64) ([]Role, error) {
	query := `
		SELECT ` + roleColumns + `
		FROM roles
		WHERE is_deleted = false AND (organization_id IS NULL OR organization_id = $1)
		ORDER BY is_system DESC, code ASC
	`

	rows, err := s.db.QueryContext(ctx, query, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, *role)
	}

	return roles, rows.Err()
}

// UpdateRole updates the name, description and parent of a role.
// Permissions change only through SetRolePermissions.
func (s *Store) UpdateRole(ctx context.Context, role *Role) error {
	if role.Name == "" {
		return apperr.Validation("role name is required")
	}
	current, err := s.GetRole(ctx, role.ID)
	if err != nil {
		return err
	}
	if !sameParent(current.ParentID, role.ParentID) && role.ParentID != nil {
		if err := s.checkParent(ctx, role.ID, *role.ParentID); err != nil {
			return err
		}
	}

	query := `
		UPDATE roles
		SET name = $1, description = $2, parent_id = $3, updated_at = $4
		WHERE id = $5
	`

	role.UpdatedAt = s.now()
	if _, err := s.db.ExecContext(ctx, query,
		role.Name,
		role.Description,
		role.ParentID,
		role.UpdatedAt,
		role.ID,
	); err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}

	s.purge(ctx)
	return nil
}

// checkParent rejects a parent that is missing or would make roleID its own ancestor
func (s *Store) checkParent(ctx context.Context, roleID, parentID int64) error {
	if parentID == roleID {
		return apperr.Validation("role %d cannot inherit from itself", roleID)
	}
	if _, err := s.GetRole(ctx, parentID); err != nil {
		return fmt.Errorf("invalid parent role: %w", err)
	}

	visited := make(map[int64]bool)
	id := parentID
	for {
		if id == roleID {
			return apperr.Validation("parent %d would make role %d inherit from itself", parentID, roleID)
		}
		if visited[id] {
			return apperr.CycleDetected("role hierarchy above %d already contains a cycle", parentID)
		}
		visited[id] = true

		ancestor, err := s.FindRole(ctx, id)
		if err != nil {
			return err
		}
		if ancestor.ParentID == nil {
			return nil
		}
		id = *ancestor.ParentID
	}
}

// SetRolePermissions replaces the explicit permission map of a role.
// System roles cannot be edited.
func (s *Store) SetRolePermissions(ctx context.Context, roleID int64, perms map[string]bool) error {
	role, err := s.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return apperr.PermissionDenied("system role %q permissions cannot be edited", role.Code)
	}
	if err := s.validatePermissions(perms); err != nil {
		return err
	}

	permissionsJSON, err := marshalPermissions(perms)
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE roles SET permissions = $1, updated_at = $2 WHERE id = $3`,
		permissionsJSON, s.now(), roleID,
	); err != nil {
		return fmt.Errorf("failed to update role permissions: %w", err)
	}

	s.purge(ctx)
	return nil
}

// DeleteRole soft-deletes a role. System roles and roles still referenced by
// a live child role or an active assignment cannot be deleted.
func (s *Store) DeleteRole(ctx context.Context, roleID, deletedBy int64) error {
	role, err := s.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return apperr.PermissionDenied("cannot delete system role %q", role.Code)
	}

	var children, assignments int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM roles WHERE parent_id = $1 AND is_deleted = false`, roleID,
	).Scan(&children); err != nil {
		return fmt.Errorf("failed to count child roles: %w", err)
	}
	if children > 0 {
		return apperr.Validation("role %q is the parent of %d roles", role.Code, children)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_role_assignments WHERE role_id = $1 AND is_active = true`, roleID,
	).Scan(&assignments); err != nil {
		return fmt.Errorf("failed to count role assignments: %w", err)
	}
	if assignments > 0 {
		return apperr.Validation("role %q has %d active assignments", role.Code, assignments)
	}

	if err := role.SoftDelete(deletedBy, s.now()); err != nil {
		return apperr.Validation("role %d: %v", roleID, err)
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE roles SET is_deleted = true, deleted_at = $1, deleted_by = $2, updated_at = $1 WHERE id = $3`,
		*role.DeletedAt, deletedBy, roleID,
	); err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}

	s.purge(ctx)
	return nil
}

// RestoreRole clears the soft-delete state of a role
func (s *Store) RestoreRole(ctx context.Context, roleID int64) error {
	role, err := s.FindRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.Active() {
		return nil
	}
	if existing, err := s.GetRoleByCode(ctx, role.Code); err == nil && existing.ID != roleID {
		return apperr.Validation("role code %q is in use by role %d", role.Code, existing.ID)
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE roles SET is_deleted = false, deleted_at = NULL, deleted_by = NULL, updated_at = $1 WHERE id = $2`,
		s.now(), roleID,
	); err != nil {
		return fmt.Errorf("failed to restore role: %w", err)
	}

	s.purge(ctx)
	return nil
}

func (s *Store) validatePermissions(perms map[string]bool) error {
	if s.catalog == nil {
		return nil
	}
	var unknown []string
	for code := range perms {
		if !s.catalog.Has(code) {
			unknown = append(unknown, code)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return apperr.Validation("unknown permission codes: %v", unknown)
	}
	return nil
}

func (s *Store) purge(ctx context.Context) {
	if s.cache != nil {
		s.cache.Purge(ctx)
	}
}

func marshalPermissions(perms map[string]bool) (string, error) {
	if perms == nil {
		perms = map[string]bool{}
	}
	data, err := json.Marshal(perms)
	if err != nil {
		return "", fmt.Errorf("failed to marshal permissions: %w", err)
	}
	return string(data), nil
}

func sameParent(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// scanRole scans a role row selected with roleColumns
func scanRole(scanner interface {
	Scan(dest ...interface{}) error
}) (*Role, error) {
	var role Role
	var description sql.NullString
	var permissionsJSON string
	var parentID, orgID sql.NullInt64
	var lc lifecycle.Scanned

	dest := []interface{}{
		&role.ID,
		&role.Code,
		&role.Name,
		&description,
		&permissionsJSON,
		&parentID,
		&role.IsSystem,
		&orgID,
		&role.CreatedAt,
		&role.UpdatedAt,
	}
	if err := scanner.Scan(append(dest, lc.Dest()...)...); err != nil {
		return nil, err
	}

	role.Description = description.String
	role.Permissions = make(map[string]bool)
	if permissionsJSON != "" {
		if err := json.Unmarshal([]byte(permissionsJSON), &role.Permissions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
		}
	}
	if parentID.Valid {
		id := parentID.Int64
		role.ParentID = &id
	}
	if orgID.Valid {
		id := orgID.Int64
		role.OrganizationID = &id
	}
	role.Lifecycle = lc.Lifecycle()

	return &role, nil
}
