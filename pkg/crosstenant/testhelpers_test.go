package crosstenant

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantguard/pkg/directory"
)

const sqliteSchema = `
CREATE TABLE cross_tenant_permission_rules (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source_org_id INTEGER NOT NULL,
	target_org_id INTEGER NOT NULL,
	permission TEXT NOT NULL,
	user_id INTEGER,
	valid_from TIMESTAMP NOT NULL,
	valid_until TIMESTAMP,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_by INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
	deleted_at TIMESTAMP,
	deleted_by INTEGER
);
`

var baseTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

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

func mustCreateRule(t *testing.T, store *Store, rule Rule) *Rule {
	t.Helper()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = baseTime
		rule.UpdatedAt = baseTime
	}
	if rule.CreatedBy == 0 {
		rule.CreatedBy = 1
	}
	require.NoError(t, store.Create(context.Background(), &rule))
	return &rule
}

func timePtr(t time.Time) *time.Time { return &t }

func int64Ptr(v int64) *int64 { return &v }

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

type fakeUsers struct {
	superusers directory.IDSet
}

func (f *fakeUsers) IsSuperuser(ctx context.Context, userID int64) (bool, error) {
	return f.superusers.Has(userID), nil
}

func (f *fakeUsers) AccountCreatedAt(ctx context.Context, userID int64) (time.Time, error) {
	return baseTime, nil
}

func (f *fakeUsers) MFARequired(ctx context.Context, userID int64) (bool, error) {
	return false, nil
}

// countingSource wraps a RuleSource and counts candidate lookups
type countingSource struct {
	RuleSource
	calls int
	last  []string
}

func (c *countingSource) Candidates(ctx context.Context, sourceOrgID, targetOrgID int64, perms []string) ([]Rule, error) {
	c.calls++
	c.last = perms
	return c.RuleSource.Candidates(ctx, sourceOrgID, targetOrgID, perms)
}
