package crosstenant

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/tenantguard/pkg/apperr"
	"github.com/platinummonkey/tenantguard/pkg/lifecycle"
)

// RuleSource supplies candidate rules to the engine
type RuleSource interface {
	// Candidates returns the active, live rules for the exact organization
	// pair and any of the given permissions
	Candidates(ctx context.Context, sourceOrgID, targetOrgID int64, permissions []string) ([]Rule, error)

	// DeactivateExpired deactivates active rules whose validity ended at or before now
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

// Store persists cross-tenant rules
type Store struct {
	db *sql.DB
}

// NewStore creates a new rule store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const ruleColumns = `id, source_org_id, target_org_id, permission, user_id, valid_from, valid_until, is_active, created_by, created_at, updated_at, ` + lifecycle.Columns

// Create inserts a rule and sets its ID
func (s *Store) Create(ctx context.Context, rule *Rule) error {
	query := `
		INSERT INTO cross_tenant_permission_rules
			(source_org_id, target_org_id, permission, user_id, valid_from, valid_until, is_active, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`
	normalize(rule)
	err := s.db.QueryRowContext(ctx, query,
		rule.SourceOrgID,
		rule.TargetOrgID,
		rule.Permission,
		rule.Conditions.UserID,
		rule.Conditions.ValidFrom,
		rule.Conditions.ValidUntil,
		rule.IsActive,
		rule.CreatedBy,
		rule.CreatedAt,
		rule.UpdatedAt,
	).Scan(&rule.ID)
	if err != nil {
		return fmt.Errorf("failed to create cross-tenant rule: %w", err)
	}
	return nil
}

// Get retrieves a rule by ID, including soft-deleted rules
func (s *Store) Get(ctx context.Context, id int64) (*Rule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM cross_tenant_permission_rules WHERE id = $1`, id)
	rule, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("cross-tenant rule %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cross-tenant rule: %w", err)
	}
	return rule, nil
}

// Update writes the mutable fields of a rule
func (s *Store) Update(ctx context.Context, rule *Rule) error {
	normalize(rule)
	result, err := s.db.ExecContext(ctx, `
		UPDATE cross_tenant_permission_rules
		SET source_org_id = $1, target_org_id = $2, permission = $3, user_id = $4,
			valid_from = $5, valid_until = $6, is_active = $7, updated_at = $8
		WHERE id = $9 AND is_deleted = false
	`,
		rule.SourceOrgID,
		rule.TargetOrgID,
		rule.Permission,
		rule.Conditions.UserID,
		rule.Conditions.ValidFrom,
		rule.Conditions.ValidUntil,
		rule.IsActive,
		rule.UpdatedAt,
		rule.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update cross-tenant rule: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return apperr.NotFound("cross-tenant rule %d", rule.ID)
	}
	return nil
}

// SoftDelete marks a rule deleted and inactive
func (s *Store) SoftDelete(ctx context.Context, id, deletedBy int64, at time.Time) error {
	at = at.UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE cross_tenant_permission_rules
		SET is_deleted = true, is_active = false, deleted_at = $1, deleted_by = $2, updated_at = $1
		WHERE id = $3 AND is_deleted = false
	`, at, deletedBy, id)
	if err != nil {
		return fmt.Errorf("failed to delete cross-tenant rule: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return apperr.NotFound("cross-tenant rule %d", id)
	}
	return nil
}

// List returns rules matching filter ordered by ID
func (s *Store) List(ctx context.Context, filter RuleFilter) ([]Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM cross_tenant_permission_rules WHERE 1=1`
	var args []interface{}
	add := func(clause string, value interface{}) {
		args = append(args, value)
		query += fmt.Sprintf(clause, len(args))
	}

	if !filter.IncludeDeleted {
		query += ` AND is_deleted = false`
	}
	if filter.ActiveOnly {
		query += ` AND is_active = true`
	}
	if filter.SourceOrgID != nil {
		add(` AND source_org_id = $%d`, *filter.SourceOrgID)
	}
	if filter.TargetOrgID != nil {
		add(` AND target_org_id = $%d`, *filter.TargetOrgID)
	}
	if filter.Permission != "" {
		add(` AND permission = $%d`, filter.Permission)
	}
	query += ` ORDER BY id ASC`
	if filter.Limit > 0 {
		add(` LIMIT $%d`, filter.Limit)
	}

	return s.query(ctx, query, args...)
}

// Candidates returns active, live rules for the organization pair whose
// permission is one of permissions. Time conditions are left to the caller.
func (s *Store) Candidates(ctx context.Context, sourceOrgID, targetOrgID int64, permissions []string) ([]Rule, error) {
	if len(permissions) == 0 {
		return nil, nil
	}

	args := []interface{}{sourceOrgID, targetOrgID}
	placeholders := make([]string, len(permissions))
	for i, p := range permissions {
		args = append(args, p)
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}

	query := `SELECT ` + ruleColumns + `
		FROM cross_tenant_permission_rules
		WHERE source_org_id = $1 AND target_org_id = $2
			AND permission IN (` + strings.Join(placeholders, ", ") + `)
			AND is_active = true AND is_deleted = false
		ORDER BY id ASC`

	rules, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find cross-tenant rules: %w", err)
	}
	return rules, nil
}

// DeactivateExpired deactivates every active rule whose valid_until is at or
// before now. Running it again with the same now changes nothing.
func (s *Store) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE cross_tenant_permission_rules
		SET is_active = false, updated_at = $1
		WHERE is_active = true AND valid_until IS NOT NULL AND valid_until <= $1
	`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate expired cross-tenant rules: %w", err)
	}
	return result.RowsAffected()
}

func (s *Store) query(ctx context.Context, query string, args ...interface{}) ([]Rule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cross-tenant rule: %w", err)
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

// normalize stores every timestamp in UTC so that stored values compare in order
func normalize(rule *Rule) {
	rule.Conditions.ValidFrom = rule.Conditions.ValidFrom.UTC()
	if rule.Conditions.ValidUntil != nil {
		until := rule.Conditions.ValidUntil.UTC()
		rule.Conditions.ValidUntil = &until
	}
	rule.CreatedAt = rule.CreatedAt.UTC()
	rule.UpdatedAt = rule.UpdatedAt.UTC()
}

func scanRule(scanner interface {
	Scan(dest ...interface{}) error
}) (*Rule, error) {
	var rule Rule
	var userID sql.NullInt64
	var validUntil sql.NullTime
	var lc lifecycle.Scanned

	dest := []interface{}{
		&rule.ID,
		&rule.SourceOrgID,
		&rule.TargetOrgID,
		&rule.Permission,
		&userID,
		&rule.Conditions.ValidFrom,
		&validUntil,
		&rule.IsActive,
		&rule.CreatedBy,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	}
	if err := scanner.Scan(append(dest, lc.Dest()...)...); err != nil {
		return nil, err
	}

	if userID.Valid {
		id := userID.Int64
		rule.Conditions.UserID = &id
	}
	if validUntil.Valid {
		t := validUntil.Time
		rule.Conditions.ValidUntil = &t
	}
	rule.Lifecycle = lc.Lifecycle()
	return &rule, nil
}
