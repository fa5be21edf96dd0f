package sweeper

import (
	"context"
	"time"

	"github.com/platinummonkey/tenantguard/pkg/observability"
)

// Job names
const (
	JobRuleExpiry       = "crosstenant_rule_expiry"
	JobAssignmentExpiry = "assignment_expiry"
	JobAuditRetention   = "audit_retention"
)

// RuleCleaner deactivates cross-tenant rules past their validity window
type RuleCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// AssignmentExpirer deactivates role assignments past their expiry
type AssignmentExpirer interface {
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

// AuditPruner deletes audit events older than a retention window
type AuditPruner interface {
	Cleanup(ctx context.Context, retention time.Duration) (int64, error)
}

// RuleExpiryJob deactivates expired cross-tenant rules
func RuleExpiryJob(schedule string, rules RuleCleaner) Job {
	return Job{
		Name:     JobRuleExpiry,
		Schedule: schedule,
		Run:      rules.CleanupExpired,
	}
}

// AssignmentExpiryJob deactivates expired role assignments
func AssignmentExpiryJob(schedule string, ledger AssignmentExpirer, metrics *observability.Metrics) Job {
	return Job{
		Name:     JobAssignmentExpiry,
		Schedule: schedule,
		Run: func(ctx context.Context) (int64, error) {
			n, err := ledger.DeactivateExpired(ctx, time.Now().UTC())
			if err != nil {
				return 0, err
			}
			if metrics != nil {
				metrics.AssignmentsDeactivatedTotal.Add(float64(n))
			}
			return n, nil
		},
	}
}

// AuditRetentionJob removes audit events older than retention
func AuditRetentionJob(schedule string, pruner AuditPruner, retention time.Duration) Job {
	return Job{
		Name:     JobAuditRetention,
		Schedule: schedule,
		Run: func(ctx context.Context) (int64, error) {
			return pruner.Cleanup(ctx, retention)
		},
	}
}
