package crosstenant

import (
	"context"
	"strconv"
	"time"

	"github.com/platinummonkey/tenantguard/pkg/apperr"
	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/directory"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/permissions"
)

// ManagePermission is the permission code that lets a user administer the
// rules of an organization
const ManagePermission = "crosstenant.manage"

// ManageAuthorizer decides whether an actor may administer the rules owned
// by orgID
type ManageAuthorizer interface {
	CanManageRules(ctx context.Context, actorID, orgID int64) (bool, error)
}

// SuperuserAuthorizer allows superusers only
type SuperuserAuthorizer struct {
	Users directory.UserDirectory
}

// CanManageRules implements ManageAuthorizer
func (a SuperuserAuthorizer) CanManageRules(ctx context.Context, actorID, orgID int64) (bool, error) {
	return a.Users.IsSuperuser(ctx, actorID)
}

// PermissionChecker answers whether a user holds a permission in an
// organization. rbac.Manager implements it.
type PermissionChecker interface {
	UserHasPermission(ctx context.Context, userID, orgID int64, code string, at time.Time) (bool, error)
}

// RoleAuthorizer allows users whose effective roles in the owning
// organization grant ManagePermission
type RoleAuthorizer struct {
	Checker PermissionChecker
	Now     func() time.Time
}

// CanManageRules implements ManageAuthorizer
func (a RoleAuthorizer) CanManageRules(ctx context.Context, actorID, orgID int64) (bool, error) {
	now := time.Now().UTC()
	if a.Now != nil {
		now = a.Now()
	}
	return a.Checker.UserHasPermission(ctx, actorID, orgID, ManagePermission, now)
}

// AnyOf allows when any of its authorizers allows. Errors stop evaluation.
type AnyOf []ManageAuthorizer

// CanManageRules implements ManageAuthorizer
func (a AnyOf) CanManageRules(ctx context.Context, actorID, orgID int64) (bool, error) {
	for _, authz := range a {
		ok, err := authz.CanManageRules(ctx, actorID, orgID)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Admin creates, changes and removes cross-tenant rules on behalf of an actor
type Admin struct {
	store      *Store
	catalog    *permissions.Catalog
	orgs       directory.OrganizationDirectory
	authorizer ManageAuthorizer
	audit      audit.Logger
	logger     *observability.Logger
	now        func() time.Time
}

// AdminOption configures an Admin
type AdminOption func(*Admin)

// WithAdminAudit records rule changes to an audit sink
func WithAdminAudit(logger audit.Logger) AdminOption {
	return func(a *Admin) { a.audit = logger }
}

// WithAdminLogger sets the logger used for best-effort failures
func WithAdminLogger(logger *observability.Logger) AdminOption {
	return func(a *Admin) { a.logger = logger }
}

// WithAdminClock overrides the clock used for timestamps
func WithAdminClock(now func() time.Time) AdminOption {
	return func(a *Admin) { a.now = now }
}

// NewAdmin creates a rule administrator. orgs may be nil to skip organization
// existence checks.
func NewAdmin(store *Store, catalog *permissions.Catalog, orgs directory.OrganizationDirectory, authorizer ManageAuthorizer, opts ...AdminOption) *Admin {
	a := &Admin{
		store:      store,
		catalog:    catalog,
		orgs:       orgs,
		authorizer: authorizer,
		audit:      audit.NoOp(),
		logger:     observability.NewLogger(observability.WarnLevel, nil),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// CreateRule stores a new rule owned by input.SourceOrgID
func (a *Admin) CreateRule(ctx context.Context, actorID int64, input RuleInput) (*Rule, error) {
	now := a.now()
	// an omitted start means now
	if input.Conditions.ValidFrom.IsZero() {
		input.Conditions.ValidFrom = now
	}
	if err := a.validate(ctx, input); err != nil {
		return nil, err
	}
	if err := a.authorize(ctx, actorID, input.SourceOrgID); err != nil {
		return nil, err
	}

	rule := &Rule{
		SourceOrgID: input.SourceOrgID,
		TargetOrgID: input.TargetOrgID,
		Permission:  input.Permission,
		Conditions:  input.Conditions,
		IsActive:    input.IsActive,
		CreatedBy:   actorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := a.store.Create(ctx, rule); err != nil {
		return nil, err
	}

	a.record(ctx, audit.EventTypeRuleCreate, actorID, rule, nil, snapshot(rule), "cross-tenant rule created")
	return rule, nil
}

// UpdateRule replaces the fields of an existing rule. The actor must be
// allowed to manage both the current and the new owning organization.
func (a *Admin) UpdateRule(ctx context.Context, actorID, ruleID int64, input RuleInput) (*Rule, error) {
	rule, err := a.store.Get(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	if rule.IsDeleted {
		return nil, apperr.NotFound("cross-tenant rule %d", ruleID)
	}
	if err := a.authorize(ctx, actorID, rule.SourceOrgID); err != nil {
		return nil, err
	}
	if input.Conditions.ValidFrom.IsZero() {
		input.Conditions.ValidFrom = rule.Conditions.ValidFrom
	}
	if err := a.validate(ctx, input); err != nil {
		return nil, err
	}
	if input.SourceOrgID != rule.SourceOrgID {
		if err := a.authorize(ctx, actorID, input.SourceOrgID); err != nil {
			return nil, err
		}
	}

	before := snapshot(rule)
	rule.SourceOrgID = input.SourceOrgID
	rule.TargetOrgID = input.TargetOrgID
	rule.Permission = input.Permission
	rule.Conditions = input.Conditions
	rule.IsActive = input.IsActive
	rule.UpdatedAt = a.now()
	if err := a.store.Update(ctx, rule); err != nil {
		return nil, err
	}

	a.record(ctx, audit.EventTypeRuleUpdate, actorID, rule, before, snapshot(rule), "cross-tenant rule updated")
	return rule, nil
}

// DeleteRule soft-deletes a rule
func (a *Admin) DeleteRule(ctx context.Context, actorID, ruleID int64) error {
	rule, err := a.store.Get(ctx, ruleID)
	if err != nil {
		return err
	}
	if rule.IsDeleted {
		return apperr.NotFound("cross-tenant rule %d", ruleID)
	}
	if err := a.authorize(ctx, actorID, rule.SourceOrgID); err != nil {
		return err
	}

	if err := a.store.SoftDelete(ctx, ruleID, actorID, a.now()); err != nil {
		return err
	}

	a.record(ctx, audit.EventTypeRuleDelete, actorID, rule, snapshot(rule), nil, "cross-tenant rule deleted")
	return nil
}

// ListRules returns rules matching filter
func (a *Admin) ListRules(ctx context.Context, filter RuleFilter) ([]Rule, error) {
	return a.store.List(ctx, filter)
}

func (a *Admin) authorize(ctx context.Context, actorID, orgID int64) error {
	if a.authorizer == nil {
		return apperr.PermissionDenied("no rule authorizer configured")
	}
	ok, err := a.authorizer.CanManageRules(ctx, actorID, orgID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.PermissionDenied("user %d may not manage cross-tenant rules of organization %d", actorID, orgID)
	}
	return nil
}

func (a *Admin) validate(ctx context.Context, input RuleInput) error {
	if input.SourceOrgID <= 0 || input.TargetOrgID <= 0 {
		return apperr.Validation("source and target organizations are required")
	}
	if input.SourceOrgID == input.TargetOrgID {
		return apperr.Validation("source and target organizations must differ")
	}
	if input.Permission == "" {
		return apperr.Validation("permission is required")
	}
	if a.catalog != nil && !a.catalog.Has(input.Permission) {
		return apperr.Validation("unknown permission %q", input.Permission)
	}
	c := input.Conditions
	if c.ValidUntil != nil && !c.ValidFrom.IsZero() && !c.ValidUntil.After(c.ValidFrom) {
		return apperr.Validation("valid_until must be after valid_from")
	}

	if a.orgs == nil {
		return nil
	}
	for _, orgID := range []int64{input.SourceOrgID, input.TargetOrgID} {
		exists, err := a.orgs.OrganizationExists(ctx, orgID)
		if err != nil {
			return err
		}
		if !exists {
			return apperr.NotFound("organization %d", orgID)
		}
	}
	return nil
}

func (a *Admin) record(ctx context.Context, eventType audit.EventType, actorID int64, rule *Rule, before, after map[string]interface{}, message string) {
	event := audit.NewEvent(ctx, eventType, audit.EventStatusSuccess)
	source := rule.SourceOrgID
	event.UserID = &actorID
	event.OrganizationID = &source
	event.ResourceType = audit.ResourceTypeCrossTenantRule
	event.ResourceID = strconv.FormatInt(rule.ID, 10)
	event.Message = message
	event.Changes = &audit.ChangeDetails{Before: before, After: after}
	audit.Dispatch(ctx, a.audit, event, a.logger)
}

func snapshot(rule *Rule) map[string]interface{} {
	s := map[string]interface{}{
		"source_org_id": rule.SourceOrgID,
		"target_org_id": rule.TargetOrgID,
		"permission":    rule.Permission,
		"is_active":     rule.IsActive,
		"valid_from":    rule.Conditions.ValidFrom.Format(time.RFC3339),
	}
	if rule.Conditions.UserID != nil {
		s["user_id"] = *rule.Conditions.UserID
	}
	if rule.Conditions.ValidUntil != nil {
		s["valid_until"] = rule.Conditions.ValidUntil.Format(time.RFC3339)
	}
	return s
}
