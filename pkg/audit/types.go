package audit

import (
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Authorization decisions
	EventTypeAuthzCrossTenantCheck EventType = "authz.crosstenant_check"
	EventTypeAuthzAccessDenied     EventType = "authz.access_denied"

	// Role and assignment changes
	EventTypeAuthzRoleAssign    EventType = "authz.role_assign"
	EventTypeAuthzRoleRevoke    EventType = "authz.role_revoke"
	EventTypeAuthzPrimaryChange EventType = "authz.primary_change"

	// Cross-tenant rule administration
	EventTypeRuleCreate EventType = "crosstenant.rule_create"
	EventTypeRuleUpdate EventType = "crosstenant.rule_update"
	EventTypeRuleDelete EventType = "crosstenant.rule_delete"
	EventTypeRuleExpire EventType = "crosstenant.rule_expire"

	// Security events
	EventTypeSecurityRiskAssessed EventType = "security.risk_assessed"
	EventTypeSecurityMFARequired  EventType = "security.mfa_required"

	// Privacy
	EventTypePrivacySettingsUpdate EventType = "privacy.settings_update"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType represents the type of resource an event concerns
type ResourceType string

const (
	ResourceTypeRole            ResourceType = "role"
	ResourceTypeRoleAssignment  ResourceType = "role_assignment"
	ResourceTypeCrossTenantRule ResourceType = "crosstenant_rule"
	ResourceTypeUser            ResourceType = "user"
	ResourceTypeOrganization    ResourceType = "organization"
	ResourceTypePermission      ResourceType = "permission"
	ResourceTypePrivacySettings ResourceType = "privacy_settings"
)

// AuditEvent represents a single audit log entry
type AuditEvent struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor information
	UserID         *int64 `json:"user_id,omitempty"`
	OrganizationID *int64 `json:"organization_id,omitempty"`

	// Resource information
	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`

	// Request context
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	RequestID string `json:"request_id,omitempty"`

	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`

	// Before/after values for updates
	Changes *ChangeDetails `json:"changes,omitempty"`
}

// ChangeDetails tracks before/after values for updates
type ChangeDetails struct {
	Before map[string]interface{} `json:"before,omitempty"`
	After  map[string]interface{} `json:"after,omitempty"`
}

// SearchFilter represents filters for searching audit logs
type SearchFilter struct {
	StartTime      *time.Time
	EndTime        *time.Time
	UserID         *int64
	OrganizationID *int64
	EventTypes     []EventType
	Status         *EventStatus
	ResourceType   ResourceType
	ResourceID     string

	Limit  int
	Offset int
}
