// Package permissions holds the permission definition catalog.
//
// # Overview
//
// Every permission the platform can grant is declared once with a code, a display
// name, a category and an optional list of permissions it depends on. A dependency
// means the dependent permission implies it: holding "task.update" also grants
// "task.read" when the catalog declares
//
//	- code: task.update
//	  depends_on: [task.read]
//
// The catalog never changes after it is built. Extend returns a new catalog with
// additional definitions, so readers can share a *Catalog freely.
//
// # Loading
//
//	catalog := permissions.DefaultCatalog()
//	custom, err := permissions.LoadCatalogFile("/etc/tenantguard/permissions.yaml")
//
// # Related Packages
//
//   - pkg/rbac: resolves role permission maps against the catalog
//   - pkg/crosstenant: validates rule permission codes
package permissions
