package privacy

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
CREATE TABLE user_privacy_settings (
	user_id INTEGER PRIMARY KEY,
	profile_visibility TEXT NOT NULL,
	email_visibility TEXT NOT NULL,
	phone_visibility TEXT NOT NULL,
	activity_visibility TEXT NOT NULL,
	show_online_status BOOLEAN NOT NULL,
	allow_direct_messages BOOLEAN NOT NULL,
	searchable_by_email BOOLEAN NOT NULL,
	searchable_by_name BOOLEAN NOT NULL,
	updated_at TIMESTAMP NOT NULL
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

// fakeDirectory holds memberships, home organizations and organization settings
type fakeDirectory struct {
	orgs        map[int64]directory.IDSet
	departments map[int64]directory.IDSet
	home        map[int64]int64
	settings    map[int64]map[string]interface{}
	superusers  directory.IDSet
	lookups     int
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		orgs:        map[int64]directory.IDSet{},
		departments: map[int64]directory.IDSet{},
		home:        map[int64]int64{},
		settings:    map[int64]map[string]interface{}{},
		superusers:  directory.NewIDSet(),
	}
}

func (f *fakeDirectory) Organizations(ctx context.Context, userID int64) (directory.IDSet, error) {
	f.lookups++
	return f.orgs[userID], nil
}

func (f *fakeDirectory) Departments(ctx context.Context, userID int64) (directory.IDSet, error) {
	f.lookups++
	return f.departments[userID], nil
}

func (f *fakeDirectory) OrganizationExists(ctx context.Context, orgID int64) (bool, error) {
	return true, nil
}

func (f *fakeDirectory) HomeOrganization(ctx context.Context, userID int64) (int64, bool, error) {
	id, ok := f.home[userID]
	return id, ok, nil
}

func (f *fakeDirectory) OrganizationSettings(ctx context.Context, orgID int64) (map[string]interface{}, error) {
	return f.settings[orgID], nil
}

func (f *fakeDirectory) IsSuperuser(ctx context.Context, userID int64) (bool, error) {
	return f.superusers.Has(userID), nil
}

func (f *fakeDirectory) AccountCreatedAt(ctx context.Context, userID int64) (time.Time, error) {
	return baseTime, nil
}

func (f *fakeDirectory) MFARequired(ctx context.Context, userID int64) (bool, error) {
	return false, nil
}

// staticSettings returns fixed settings per user and defaults otherwise
type staticSettings map[int64]Settings

func (s staticSettings) Get(ctx context.Context, userID int64) (*Settings, error) {
	if settings, ok := s[userID]; ok {
		return &settings, nil
	}
	settings := DefaultSettings(userID)
	return &settings, nil
}
