// Package rbac implements role-based access control for organizations.
//
// # Overview
//
// Roles carry an explicit permission map (code to allowed/denied) and may name
// a parent role. The effective permissions of a role are its ancestors' maps
// merged root first, so a child can override anything it inherits:
//
//	viewer   {task.read: true}
//	member   parent=viewer  {task.update: true}
//	auditor  parent=member  {task.update: false}
//
// resolves auditor to {task.read: true, task.update: false}.
//
// The resolver walks the parent chain iteratively and fails with
// apperr.ErrCycleDetected when a role is reached twice. The store also refuses
// parent changes that would close a loop.
//
// # Assignments
//
// The Ledger grants roles to users per organization and optional department.
// Assigning the same (user, role, organization, department) again reuses the
// existing row. Expiry is checked whenever assignments are read; the
// DeactivateExpired sweep only keeps the is_active column tidy.
//
// # Caching
//
// Resolved maps can be cached in process (MemoryCache) or in Redis
// (storage/postgres.RedisPermissionCache). Every role write purges the cache.
//
// # Usage Example
//
//	mgr := rbac.NewManager(db, permissions.DefaultCatalog(), dir, auditLogger, metrics, rbac.DefaultConfig())
//	if err := mgr.Initialize(ctx); err != nil {
//		return err
//	}
//	ok, err := mgr.Resolver().HasPermission(ctx, roleID, "task.read")
//
// # Related Packages
//
//   - pkg/permissions: permission catalog and dependency closure
//   - pkg/crosstenant: rules for acting across organizations
//   - pkg/directory: organization existence and scoping
package rbac
