package rbac

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/platinummonkey/tenantguard/pkg/apperr"
	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/contextkeys"
	"github.com/platinummonkey/tenantguard/pkg/directory"
	"github.com/platinummonkey/tenantguard/pkg/observability"
)

// RoleGetter looks up live roles
type RoleGetter interface {
	GetRole(ctx context.Context, roleID int64) (*Role, error)
}

// Ledger records which roles users hold in which organizations
type Ledger struct {
	db     *sql.DB
	roles  RoleGetter
	orgs   directory.OrganizationDirectory
	audit  audit.Logger
	logger *observability.Logger
	now    func() time.Time
}

// LedgerOption configures a Ledger
type LedgerOption func(*Ledger)

// WithLedgerAudit records assignment changes to an audit sink
func WithLedgerAudit(logger audit.Logger) LedgerOption {
	return func(l *Ledger) { l.audit = logger }
}

// WithLedgerLogger sets the logger used for best-effort failures
func WithLedgerLogger(logger *observability.Logger) LedgerOption {
	return func(l *Ledger) { l.logger = logger }
}

// WithLedgerClock overrides the clock used for assignment timestamps
func WithLedgerClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) { l.now = now }
}

// NewLedger creates a ledger. orgs may be nil to skip organization existence checks.
func NewLedger(db *sql.DB, roles RoleGetter, orgs directory.OrganizationDirectory, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		db:     db,
		roles:  roles,
		orgs:   orgs,
		audit:  audit.NoOp(),
		logger: observability.NewLogger(observability.WarnLevel, nil),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

const assignmentColumns = `id, user_id, role_id, organization_id, department_id, assigned_by, assigned_at, expires_at, is_primary, is_active, approval_status`

// Assign grants a role. An existing row with the same user, role, organization
// and department is reused: an inactive row is reactivated, an active row only
// takes the new expiry.
func (l *Ledger) Assign(ctx context.Context, req AssignRequest) (*UserRoleAssignment, error) {
	if req.UserID <= 0 {
		return nil, apperr.Validation("user id is required")
	}
	if req.OrganizationID <= 0 {
		return nil, apperr.Validation("organization id is required")
	}

	role, err := l.roles.GetRole(ctx, req.RoleID)
	if err != nil {
		return nil, err
	}
	if !directory.InOrganization(role, req.OrganizationID) {
		return nil, apperr.Validation("role %q belongs to another organization", role.Code)
	}
	if l.orgs != nil {
		exists, err := l.orgs.OrganizationExists(ctx, req.OrganizationID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, apperr.NotFound("organization %d", req.OrganizationID)
		}
	}

	if req.ExpiresAt != nil {
		utc := req.ExpiresAt.UTC()
		req.ExpiresAt = &utc
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	now := l.now()
	assignment, err := l.findByKey(ctx, tx, req.UserID, req.RoleID, req.OrganizationID, req.DepartmentID)
	switch {
	case err == sql.ErrNoRows:
		assignment = &UserRoleAssignment{
			UserID:         req.UserID,
			RoleID:         req.RoleID,
			OrganizationID: req.OrganizationID,
			DepartmentID:   req.DepartmentID,
			AssignedBy:     req.AssignedBy,
			AssignedAt:     now,
			ExpiresAt:      req.ExpiresAt,
			IsActive:       true,
			ApprovalStatus: ApprovalApproved,
		}
		err = tx.QueryRowContext(ctx, `
			INSERT INTO user_role_assignments (user_id, role_id, organization_id, department_id, assigned_by, assigned_at, expires_at, is_primary, is_active, approval_status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, false, true, $8)
			RETURNING id
		`,
			assignment.UserID, assignment.RoleID, assignment.OrganizationID, assignment.DepartmentID,
			assignment.AssignedBy, assignment.AssignedAt, assignment.ExpiresAt, string(assignment.ApprovalStatus),
		).Scan(&assignment.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to insert role assignment: %w", err)
		}

	case err != nil:
		return nil, fmt.Errorf("failed to look up role assignment: %w", err)

	case assignment.IsActive:
		// a request without an expiry leaves the stored expiry in place
		if req.ExpiresAt != nil && !sameTime(assignment.ExpiresAt, req.ExpiresAt) {
			if _, err := tx.ExecContext(ctx,
				`UPDATE user_role_assignments SET expires_at = $1 WHERE id = $2`,
				req.ExpiresAt, assignment.ID,
			); err != nil {
				return nil, fmt.Errorf("failed to update role assignment expiry: %w", err)
			}
			assignment.ExpiresAt = req.ExpiresAt
		}

	default:
		if _, err := tx.ExecContext(ctx, `
			UPDATE user_role_assignments
			SET is_active = true, assigned_by = $1, assigned_at = $2, expires_at = $3
			WHERE id = $4
		`, req.AssignedBy, now, req.ExpiresAt, assignment.ID); err != nil {
			return nil, fmt.Errorf("failed to reactivate role assignment: %w", err)
		}
		assignment.IsActive = true
		assignment.AssignedBy = req.AssignedBy
		assignment.AssignedAt = now
		assignment.ExpiresAt = req.ExpiresAt
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit role assignment: %w", err)
	}

	l.record(ctx, audit.EventTypeAuthzRoleAssign, req.AssignedBy, assignment.ID,
		fmt.Sprintf("role %s assigned to user %d in organization %d", role.Code, req.UserID, req.OrganizationID))
	return assignment, nil
}

// Revoke deactivates the matching active assignment and reports whether one changed.
// The acting user is taken from the request context.
func (l *Ledger) Revoke(ctx context.Context, userID, roleID, orgID int64, departmentID *int64) (bool, error) {
	query := `
		UPDATE user_role_assignments
		SET is_active = false, is_primary = false
		WHERE user_id = $1 AND role_id = $2 AND organization_id = $3 AND is_active = true AND ` + departmentClause(departmentID, 4) + `
		RETURNING id`

	args := []interface{}{userID, roleID, orgID}
	if departmentID != nil {
		args = append(args, *departmentID)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to revoke role assignment: %w", err)
	}
	defer rows.Close()

	var revoked []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return false, fmt.Errorf("failed to scan revoked assignment: %w", err)
		}
		revoked = append(revoked, id)
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("failed to read revoked rows: %w", err)
	}
	rows.Close()

	actorID, _ := contextkeys.ActorID(ctx)
	for _, id := range revoked {
		l.record(ctx, audit.EventTypeAuthzRoleRevoke, actorID, id,
			fmt.Sprintf("role %d revoked from user %d in organization %d", roleID, userID, orgID))
	}
	return len(revoked) > 0, nil
}

// SetPrimary makes assignmentID the user's only primary assignment.
// It returns false when the assignment is not an effective assignment of the user:
// missing, revoked, or past its expiry.
func (l *Ledger) SetPrimary(ctx context.Context, userID, assignmentID int64) (bool, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	var current UserRoleAssignment
	var expiresAt sql.NullTime
	err = tx.QueryRowContext(ctx,
		`SELECT is_active, expires_at FROM user_role_assignments WHERE id = $1 AND user_id = $2`,
		assignmentID, userID,
	).Scan(&current.IsActive, &expiresAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up role assignment: %w", err)
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		current.ExpiresAt = &t
	}
	if !current.EffectiveAt(l.now()) {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE user_role_assignments SET is_primary = false WHERE user_id = $1 AND is_primary = true`, userID,
	); err != nil {
		return false, fmt.Errorf("failed to clear primary assignments: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE user_role_assignments SET is_primary = true WHERE id = $1`, assignmentID,
	); err != nil {
		return false, fmt.Errorf("failed to set primary assignment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit primary assignment: %w", err)
	}

	l.record(ctx, audit.EventTypeAuthzPrimaryChange, userID, assignmentID,
		fmt.Sprintf("assignment %d is now primary for user %d", assignmentID, userID))
	return true, nil
}

// Effective returns the user's active assignments that have not expired at t,
// optionally limited to one organization. Expiry is evaluated here rather than
// by a sweep, so results are exact at t.
func (l *Ledger) Effective(ctx context.Context, userID int64, orgID *int64, at time.Time) ([]UserRoleAssignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM user_role_assignments WHERE user_id = $1 AND is_active = true`
	args := []interface{}{userID}
	if orgID != nil {
		query += ` AND organization_id = $2`
		args = append(args, *orgID)
	}
	query += ` ORDER BY is_primary DESC, assigned_at ASC, id ASC`

	all, err := l.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get effective assignments: %w", err)
	}

	effective := make([]UserRoleAssignment, 0, len(all))
	for _, a := range all {
		if a.EffectiveAt(at) {
			effective = append(effective, a)
		}
	}
	return effective, nil
}

// Get retrieves an assignment by id
func (l *Ledger) Get(ctx context.Context, assignmentID int64) (*UserRoleAssignment, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT `+assignmentColumns+` FROM user_role_assignments WHERE id = $1`, assignmentID)
	a, err := scanAssignment(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("role assignment %d", assignmentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role assignment: %w", err)
	}
	return a, nil
}

// ListForUser returns every assignment of a user, active or not
func (l *Ledger) ListForUser(ctx context.Context, userID int64) ([]UserRoleAssignment, error) {
	all, err := l.query(ctx,
		`SELECT `+assignmentColumns+` FROM user_role_assignments WHERE user_id = $1 ORDER BY id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list role assignments: %w", err)
	}
	return all, nil
}

// SetApprovalStatus records the approval decision for an assignment
func (l *Ledger) SetApprovalStatus(ctx context.Context, assignmentID int64, status ApprovalStatus) error {
	if !status.Valid() {
		return apperr.Validation("invalid approval status %q", status)
	}
	result, err := l.db.ExecContext(ctx,
		`UPDATE user_role_assignments SET approval_status = $1 WHERE id = $2`, string(status), assignmentID)
	if err != nil {
		return fmt.Errorf("failed to update approval status: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return apperr.NotFound("role assignment %d", assignmentID)
	}
	return nil
}

// DeactivateExpired flips is_active off for assignments expired at now and
// returns how many changed. Reads never depend on it having run.
func (l *Ledger) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := l.db.ExecContext(ctx, `
		UPDATE user_role_assignments
		SET is_active = false, is_primary = false
		WHERE is_active = true AND expires_at IS NOT NULL AND expires_at <= $1
	`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate expired assignments: %w", err)
	}
	return result.RowsAffected()
}

func (l *Ledger) findByKey(ctx context.Context, tx *sql.Tx, userID, roleID, orgID int64, departmentID *int64) (*UserRoleAssignment, error) {
	query := `SELECT ` + assignmentColumns + `
		FROM user_role_assignments
		WHERE user_id = $1 AND role_id = $2 AND organization_id = $3 AND ` + departmentClause(departmentID, 4) + `
		ORDER BY is_active DESC, id DESC
		LIMIT 1`

	args := []interface{}{userID, roleID, orgID}
	if departmentID != nil {
		args = append(args, *departmentID)
	}
	return scanAssignment(tx.QueryRowContext(ctx, query, args...))
}

func (l *Ledger) query(ctx context.Context, query string, args ...interface{}) ([]UserRoleAssignment, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UserRoleAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (l *Ledger) record(ctx context.Context, eventType audit.EventType, actorID, assignmentID int64, message string) {
	var actor *int64
	if actorID > 0 {
		actor = &actorID
	}
	resourceID := ""
	if assignmentID > 0 {
		resourceID = strconv.FormatInt(assignmentID, 10)
	}
	if err := l.audit.LogDataMutation(ctx, eventType, actor, audit.ResourceTypeRoleAssignment, resourceID, nil, message); err != nil {
		l.logger.WithError(err).Warn("failed to record role assignment audit event")
	}
}

// departmentClause matches department_id against placeholder n, or NULL when departmentID is nil
func departmentClause(departmentID *int64, n int) string {
	if departmentID == nil {
		return "department_id IS NULL"
	}
	return fmt.Sprintf("department_id = $%d", n)
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func scanAssignment(scanner interface {
	Scan(dest ...interface{}) error
}) (*UserRoleAssignment, error) {
	var a UserRoleAssignment
	var departmentID sql.NullInt64
	var expiresAt sql.NullTime
	var status string

	if err := scanner.Scan(
		&a.ID,
		&a.UserID,
		&a.RoleID,
		&a.OrganizationID,
		&departmentID,
		&a.AssignedBy,
		&a.AssignedAt,
		&expiresAt,
		&a.IsPrimary,
		&a.IsActive,
		&status,
	); err != nil {
		return nil, err
	}

	if departmentID.Valid {
		id := departmentID.Int64
		a.DepartmentID = &id
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		a.ExpiresAt = &t
	}
	a.ApprovalStatus = ApprovalStatus(status)
	return &a, nil
}
