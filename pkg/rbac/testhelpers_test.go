package rbac

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantguard/pkg/apperr"
	"github.com/platinummonkey/tenantguard/pkg/directory"
)

// sqliteSchema mirrors the Postgres migrations with SQLite types
const sqliteSchema = `
CREATE TABLE roles (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	code TEXT NOT NULL,
	name TEXT NOT NULL,
	description TEXT,
	permissions TEXT NOT NULL DEFAULT '{}',
	parent_id INTEGER REFERENCES roles(id),
	is_system BOOLEAN NOT NULL DEFAULT FALSE,
	organization_id INTEGER,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
	deleted_at TIMESTAMP,
	deleted_by INTEGER
);
CREATE UNIQUE INDEX idx_roles_code_live ON roles(code) WHERE is_deleted = false;

CREATE TABLE user_role_assignments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	role_id INTEGER NOT NULL REFERENCES roles(id),
	organization_id INTEGER NOT NULL,
	department_id INTEGER,
	assigned_by INTEGER NOT NULL,
	assigned_at TIMESTAMP NOT NULL,
	expires_at TIMESTAMP,
	is_primary BOOLEAN NOT NULL DEFAULT FALSE,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	approval_status TEXT NOT NULL DEFAULT 'approved'
);
CREATE UNIQUE INDEX idx_assignments_key
	ON user_role_assignments(user_id, role_id, organization_id, COALESCE(department_id, 0));
CREATE UNIQUE INDEX idx_assignments_one_primary
	ON user_role_assignments(user_id) WHERE is_primary = true AND is_active = true;
`

// setupTestDB opens an in-memory SQLite database with the RBAC tables.
// A single connection keeps every query on the same in-memory database.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(sqliteSchema)
	require.NoError(t, err)
	return db
}

// fakeOrgs is an OrganizationDirectory over a fixed set of organizations
type fakeOrgs struct {
	orgs directory.IDSet
}

func (f *fakeOrgs) Organizations(ctx context.Context, userID int64) (directory.IDSet, error) {
	return f.orgs, nil
}

func (f *fakeOrgs) Departments(ctx context.Context, userID int64) (directory.IDSet, error) {
	return directory.NewIDSet(), nil
}

func (f *fakeOrgs) OrganizationExists(ctx context.Context, orgID int64) (bool, error) {
	return f.orgs.Has(orgID), nil
}

func (f *fakeOrgs) HomeOrganization(ctx context.Context, userID int64) (int64, bool, error) {
	return 0, false, nil
}

// memoryRoles is a RoleFinder over an in-memory map
type memoryRoles map[int64]*Role

func (m memoryRoles) FindRole(ctx context.Context, roleID int64) (*Role, error) {
	role, ok := m[roleID]
	if !ok {
		return nil, apperr.NotFound("role %d", roleID)
	}
	return role, nil
}

func int64Ptr(v int64) *int64 {
	return &v
}

func mustCreateRole(t *testing.T, store *Store, code string, parent *int64, perms map[string]bool) *Role {
	t.Helper()
	role := &Role{Code: code, Name: code, ParentID: parent, Permissions: perms}
	require.NoError(t, store.CreateRole(context.Background(), role))
	return role
}
