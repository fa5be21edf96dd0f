//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/crosstenant"
	"github.com/platinummonkey/tenantguard/pkg/directory"
	"github.com/platinummonkey/tenantguard/pkg/permissions"
	"github.com/platinummonkey/tenantguard/pkg/privacy"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
	"github.com/platinummonkey/tenantguard/pkg/security"
	"github.com/platinummonkey/tenantguard/pkg/storage"
)

// setupPostgres starts a PostgreSQL container and applies every migration
func setupPostgres(t *testing.T) *ConnectionManager {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("tenantguard_test"),
		tcpostgres.WithUsername("tenantguard"),
		tcpostgres.WithPassword("tenantguard_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		// fresh context, the test context may already be cancelled
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Errorf("Failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	cm, err := NewConnectionManager(ctx, ConnectionConfig{
		URL:      connStr,
		MaxConns: 5,
		MinConns: 1,
		Timeout:  10 * time.Second,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { cm.Close() })

	migrations, err := storage.Collect(
		directory.GetMigrations(),
		rbac.GetMigrations(),
		crosstenant.GetMigrations(),
		privacy.GetMigrations(),
		security.GetMigrations(),
		audit.GetMigrations(),
	)
	require.NoError(t, err)
	require.NoError(t, storage.RunMigrations(ctx, cm.Primary(), migrations, nil))
	// applying twice is a no-op
	require.NoError(t, storage.RunMigrations(ctx, cm.Primary(), migrations, nil))

	return cm
}

func TestIntegration_AssignmentsAndCrossTenantChecks(t *testing.T) {
	cm := setupPostgres(t)
	ctx := context.Background()
	db := cm.Primary()

	_, err := db.ExecContext(ctx, `
INSERT INTO organizations (id, name, slug) VALUES (1, 'Acme', 'acme'), (2, 'Globex', 'globex');
INSERT INTO users (id, username, home_organization_id) VALUES (10, 'alice', 1), (11, 'bob', 2);
INSERT INTO organization_members (organization_id, user_id) VALUES (1, 10), (2, 11);
`)
	require.NoError(t, err)

	catalog := permissions.DefaultCatalog()
	dir := directory.NewSQLDirectory(db)
	auditLog, err := audit.NewDBLogger(db)
	require.NoError(t, err)

	manager := rbac.NewManager(db, catalog, dir, auditLog, nil, rbac.DefaultConfig())
	require.NoError(t, manager.Initialize(ctx))

	viewer, err := manager.Store().GetRoleByCode(ctx, "viewer")
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	expired := now.Add(-time.Hour)
	_, err = manager.Ledger().Assign(ctx, rbac.AssignRequest{
		UserID: 10, RoleID: viewer.ID, OrganizationID: 1, AssignedBy: 10,
	})
	require.NoError(t, err)
	_, err = manager.Ledger().Assign(ctx, rbac.AssignRequest{
		UserID: 11, RoleID: viewer.ID, OrganizationID: 2, AssignedBy: 11, ExpiresAt: &expired,
	})
	require.NoError(t, err)

	ok, err := manager.UserHasPermission(ctx, 10, 1, "project.read", now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = manager.UserHasPermission(ctx, 11, 2, "project.read", now)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := manager.Ledger().DeactivateExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	store := crosstenant.NewStore(db)
	err = store.Create(ctx, &crosstenant.Rule{
		SourceOrgID: 1,
		TargetOrgID: 2,
		Permission:  "project.read",
		Conditions:  crosstenant.Conditions{ValidFrom: now.Add(-time.Minute)},
		IsActive:    true,
		CreatedBy:   10,
	})
	require.NoError(t, err)

	engine := crosstenant.NewEngine(store, crosstenant.Config{LogChecks: true},
		crosstenant.WithAudit(auditLog))

	allowed, err := engine.Check(ctx, crosstenant.CheckRequest{
		UserID: 10, SourceOrgID: 1, TargetOrgID: 2, Permission: "project.read", Now: now,
	})
	require.NoError(t, err)
	assert.True(t, allowed.Allowed)

	reverse, err := engine.Check(ctx, crosstenant.CheckRequest{
		UserID: 11, SourceOrgID: 2, TargetOrgID: 1, Permission: "project.read", Now: now,
	})
	require.NoError(t, err)
	assert.False(t, reverse.Allowed)

	events, err := auditLog.Search(ctx, audit.SearchFilter{
		EventTypes: []audit.EventType{audit.EventTypeAuthzCrossTenantCheck},
		Limit:      10,
	})
	require.NoError(t, err)
	assert.Len(t, events, 2)
}
