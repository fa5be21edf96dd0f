// Package crosstenant decides whether a user of one organization may act on
// another organization.
//
// Access between organizations is granted only by explicit, directional
// rules: a rule from organization A to organization B for "project.read"
// lets users of A read B's projects and nothing else. A rule may be limited
// to a single user and to a validity window. There are no deny rules; when
// no rule applies the answer is no.
//
// # Components
//
//   - Store: the cross_tenant_permission_rules table
//   - Engine: Check, BatchCheck and CleanupExpired
//   - Admin: validated rule administration behind a ManageAuthorizer
//
// # Usage Example
//
//	engine := crosstenant.NewEngine(crosstenant.NewStore(db), crosstenant.DefaultConfig(),
//		crosstenant.WithAudit(sink),
//		crosstenant.WithMetrics(metrics),
//	)
//
//	result, err := engine.Check(ctx, crosstenant.CheckRequest{
//		UserID:      42,
//		SourceOrgID: 1,
//		TargetOrgID: 2,
//		Permission:  "project.read",
//	})
//	if err != nil {
//		return err
//	}
//	if !result.Allowed {
//		return apperr.PermissionDenied("%s", result.Reason)
//	}
package crosstenant
