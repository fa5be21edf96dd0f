package rbac

import (
	"time"

	"github.com/platinummonkey/tenantguard/pkg/lifecycle"
)

// Role represents a named permission bundle that may inherit from a parent role
type Role struct {
	ID             int64           `json:"id"`
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	Description    string          `json:"description,omitempty"`
	Permissions    map[string]bool `json:"permissions"`
	ParentID       *int64          `json:"parent_id,omitempty"`
	IsSystem       bool            `json:"is_system"`
	OrganizationID *int64          `json:"organization_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`

	lifecycle.Lifecycle
}

// OrganizationScope reports the organization a role is restricted to.
// Roles without an organization are global.
func (r *Role) OrganizationScope() (int64, bool) {
	if r.OrganizationID == nil {
		return 0, false
	}
	return *r.OrganizationID, true
}

// Conflict describes a permission two roles resolve differently
type Conflict struct {
	Code       string `json:"code"`
	RoleAValue bool   `json:"role_a_value"`
	RoleBValue bool   `json:"role_b_value"`
}

// ApprovalStatus is the approval state of a role assignment
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Valid reports whether s is a known approval status
func (s ApprovalStatus) Valid() bool {
	switch s {
	case ApprovalPending, ApprovalApproved, ApprovalRejected:
		return true
	}
	return false
}

// UserRoleAssignment grants a role to a user inside an organization,
// optionally narrowed to a department
type UserRoleAssignment struct {
	ID             int64          `json:"id"`
	UserID         int64          `json:"user_id"`
	RoleID         int64          `json:"role_id"`
	OrganizationID int64          `json:"organization_id"`
	DepartmentID   *int64         `json:"department_id,omitempty"`
	AssignedBy     int64          `json:"assigned_by"`
	AssignedAt     time.Time      `json:"assigned_at"`
	ExpiresAt      *time.Time     `json:"expires_at,omitempty"`
	IsPrimary      bool           `json:"is_primary"`
	IsActive       bool           `json:"is_active"`
	ApprovalStatus ApprovalStatus `json:"approval_status"`
}

// EffectiveAt reports whether the assignment is active and unexpired at t
func (a *UserRoleAssignment) EffectiveAt(t time.Time) bool {
	if !a.IsActive {
		return false
	}
	return a.ExpiresAt == nil || a.ExpiresAt.After(t)
}

// OrganizationScope always reports the assignment's organization
func (a *UserRoleAssignment) OrganizationScope() (int64, bool) {
	return a.OrganizationID, true
}

// AssignRequest contains the fields for granting a role
type AssignRequest struct {
	UserID         int64      `json:"user_id"`
	RoleID         int64      `json:"role_id"`
	OrganizationID int64      `json:"organization_id"`
	DepartmentID   *int64     `json:"department_id,omitempty"`
	AssignedBy     int64      `json:"assigned_by"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
}

// BuiltInRoles returns the system roles seeded on initialization.
// Codes are stable identifiers referenced by deployments.
func BuiltInRoles() []Role {
	return []Role{
		{
			Code:        "viewer",
			Name:        "Viewer",
			Description: "Read-only access to organization data",
			IsSystem:    true,
			Permissions: map[string]bool{
				"organization.read": true,
				"department.read":   true,
				"project.read":      true,
				"task.read":         true,
				"customer.read":     true,
				"product.read":      true,
				"report.read":       true,
			},
		},
		{
			Code:        "member",
			Name:        "Member",
			Description: "Day-to-day work on projects and tasks",
			IsSystem:    true,
			Permissions: map[string]bool{
				"task.create":       true,
				"task.update":       true,
				"expense.create":    true,
				"notification.read": true,
			},
		},
		{
			Code:        "manager",
			Name:        "Manager",
			Description: "Manages projects, budgets and approvals",
			IsSystem:    true,
			Permissions: map[string]bool{
				"project.create":  true,
				"project.update":  true,
				"task.assign":     true,
				"task.delete":     true,
				"expense.approve": true,
				"budget.read":     true,
				"report.export":   true,
				"role.read":       true,
			},
		},
		{
			Code:        "org_admin",
			Name:        "Organization Administrator",
			Description: "Full administrative access within an organization",
			IsSystem:    true,
			Permissions: map[string]bool{
				"organization.update":         true,
				"organization.manage_members": true,
				"department.manage":           true,
				"project.delete":              true,
				"customer.delete":             true,
				"product.manage":              true,
				"inventory.adjust":            true,
				"budget.manage":               true,
				"role.manage":                 true,
				"role.assign":                 true,
				"crosstenant.manage":          true,
				"notification.send":           true,
				"security.manage_sessions":    true,
			},
		},
	}
}

// builtInParents links each built-in role to the code of its parent
var builtInParents = map[string]string{
	"member":    "viewer",
	"manager":   "member",
	"org_admin": "manager",
}
