package directory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/platinummonkey/tenantguard/pkg/apperr"
)

// SQLDirectory implements OrganizationDirectory, UserDirectory and
// OrganizationSettingsProvider over the platform's users and organizations tables
type SQLDirectory struct {
	db  *sql.DB
	now func() time.Time
}

// SQLOption configures a SQLDirectory
type SQLOption func(*SQLDirectory)

// WithClock sets the time assignment expiry is evaluated against
func WithClock(now func() time.Time) SQLOption {
	return func(d *SQLDirectory) { d.now = now }
}

// NewSQLDirectory creates a directory backed by db
func NewSQLDirectory(db *sql.DB, opts ...SQLOption) *SQLDirectory {
	d := &SQLDirectory{db: db, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Organizations returns organizations from membership rows and role
// assignments that are active and unexpired now
func (d *SQLDirectory) Organizations(ctx context.Context, userID int64) (IDSet, error) {
	query := `
		SELECT organization_id FROM organization_members WHERE user_id = $1
		UNION
		SELECT organization_id FROM user_role_assignments
		WHERE user_id = $1 AND is_active = true AND (expires_at IS NULL OR expires_at > $2)
	`
	ids, err := d.queryIDs(ctx, query, userID, d.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to get organizations: %w", err)
	}
	return ids, nil
}

// Departments returns the user's own department plus departments of role
// assignments that are active and unexpired now
func (d *SQLDirectory) Departments(ctx context.Context, userID int64) (IDSet, error) {
	query := `
		SELECT department_id FROM users WHERE id = $1 AND department_id IS NOT NULL
		UNION
		SELECT department_id FROM user_role_assignments
		WHERE user_id = $1 AND is_active = true AND department_id IS NOT NULL
			AND (expires_at IS NULL OR expires_at > $2)
	`
	ids, err := d.queryIDs(ctx, query, userID, d.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to get departments: %w", err)
	}
	return ids, nil
}

func (d *SQLDirectory) queryIDs(ctx context.Context, query string, args ...interface{}) (IDSet, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(IDSet)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// OrganizationExists reports whether an organization row exists
func (d *SQLDirectory) OrganizationExists(ctx context.Context, orgID int64) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM organizations WHERE id = $1)`, orgID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check organization: %w", err)
	}
	return exists, nil
}

// HomeOrganization returns users.home_organization_id
func (d *SQLDirectory) HomeOrganization(ctx context.Context, userID int64) (int64, bool, error) {
	var orgID sql.NullInt64
	err := d.db.QueryRowContext(ctx,
		`SELECT home_organization_id FROM users WHERE id = $1`, userID,
	).Scan(&orgID)
	if err == sql.ErrNoRows {
		return 0, false, apperr.NotFound("user %d", userID)
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get home organization: %w", err)
	}
	return orgID.Int64, orgID.Valid, nil
}

// IsSuperuser reports users.is_superuser
func (d *SQLDirectory) IsSuperuser(ctx context.Context, userID int64) (bool, error) {
	var v bool
	if err := d.userColumn(ctx, "is_superuser", userID, &v); err != nil {
		return false, err
	}
	return v, nil
}

// MFARequired reports the sticky users.mfa_required flag
func (d *SQLDirectory) MFARequired(ctx context.Context, userID int64) (bool, error) {
	var v bool
	if err := d.userColumn(ctx, "mfa_required", userID, &v); err != nil {
		return false, err
	}
	return v, nil
}

// AccountCreatedAt returns users.created_at
func (d *SQLDirectory) AccountCreatedAt(ctx context.Context, userID int64) (time.Time, error) {
	var v time.Time
	if err := d.userColumn(ctx, "created_at", userID, &v); err != nil {
		return time.Time{}, err
	}
	return v, nil
}

// userColumn reads one column of a user row. column is never caller input.
func (d *SQLDirectory) userColumn(ctx context.Context, column string, userID int64, dest interface{}) error {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, column)
	err := d.db.QueryRowContext(ctx, query, userID).Scan(dest)
	if err == sql.ErrNoRows {
		return apperr.NotFound("user %d", userID)
	}
	if err != nil {
		return fmt.Errorf("failed to get user %s: %w", column, err)
	}
	return nil
}

// OrganizationSettings decodes organizations.settings
func (d *SQLDirectory) OrganizationSettings(ctx context.Context, orgID int64) (map[string]interface{}, error) {
	var raw sql.NullString
	err := d.db.QueryRowContext(ctx,
		`SELECT settings FROM organizations WHERE id = $1`, orgID,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("organization %d", orgID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization settings: %w", err)
	}

	settings := make(map[string]interface{})
	if raw.Valid && raw.String != "" {
		if err := json.Unmarshal([]byte(raw.String), &settings); err != nil {
			return nil, fmt.Errorf("failed to decode organization settings: %w", err)
		}
	}
	return settings, nil
}
