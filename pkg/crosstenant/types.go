package crosstenant

import (
	"time"

	"github.com/platinummonkey/tenantguard/pkg/lifecycle"
)

// Conditions narrow when a rule applies
type Conditions struct {
	// UserID restricts the rule to one user when set
	UserID *int64 `json:"user_id,omitempty"`

	ValidFrom  time.Time  `json:"valid_from"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
}

// AppliesAt reports whether the conditions hold for userID at t
func (c Conditions) AppliesAt(userID int64, t time.Time) bool {
	if c.ValidFrom.After(t) {
		return false
	}
	if c.ValidUntil != nil && !c.ValidUntil.After(t) {
		return false
	}
	return c.UserID == nil || *c.UserID == userID
}

// Rule lets users of SourceOrgID exercise Permission against TargetOrgID.
// Rules are directional.
type Rule struct {
	ID          int64      `json:"id"`
	SourceOrgID int64      `json:"source_org_id"`
	TargetOrgID int64      `json:"target_org_id"`
	Permission  string     `json:"permission"`
	Conditions  Conditions `json:"conditions"`
	IsActive    bool       `json:"is_active"`
	CreatedBy   int64      `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	lifecycle.Lifecycle
}

// OrganizationScope reports the organization that owns the rule
func (r *Rule) OrganizationScope() (int64, bool) {
	return r.SourceOrgID, true
}

// CheckRequest is one cross-tenant authorization question
type CheckRequest struct {
	UserID      int64
	SourceOrgID int64
	TargetOrgID int64
	Permission  string

	// Now is the evaluation time. Zero means the engine clock.
	Now time.Time

	// IPAddress and UserAgent are recorded with the decision. When empty
	// they are taken from the request context.
	IPAddress string
	UserAgent string
}

// Result is the outcome of a check
type Result struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
	RuleID  *int64 `json:"rule_id,omitempty"`
}

// ReasonNoMatchingRule is the reason given when no rule applies
const ReasonNoMatchingRule = "no matching rule"

// RuleInput holds the administrator-supplied fields of a rule
type RuleInput struct {
	SourceOrgID int64      `json:"source_org_id"`
	TargetOrgID int64      `json:"target_org_id"`
	Permission  string     `json:"permission"`
	Conditions  Conditions `json:"conditions"`
	IsActive    bool       `json:"is_active"`
}

// RuleFilter selects rules for listing
type RuleFilter struct {
	SourceOrgID    *int64
	TargetOrgID    *int64
	Permission     string
	ActiveOnly     bool
	IncludeDeleted bool
	Limit          int
}
