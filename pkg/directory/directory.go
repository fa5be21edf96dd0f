// Package directory defines the collaborators the authorization layer reads
// user and organization facts from, and a SQL implementation of them.
package directory

import (
	"context"
	"sort"
	"time"
)

// IDSet is a set of organization or department ids
type IDSet map[int64]struct{}

// NewIDSet builds a set from ids
func NewIDSet(ids ...int64) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id is in the set
func (s IDSet) Has(id int64) bool {
	_, ok := s[id]
	return ok
}

// Intersects reports whether the two sets share at least one id
func (s IDSet) Intersects(other IDSet) bool {
	small, large := s, other
	if len(small) > len(large) {
		small, large = large, small
	}
	for id := range small {
		if large.Has(id) {
			return true
		}
	}
	return false
}

// Sorted returns the ids in ascending order
func (s IDSet) Sorted() []int64 {
	out := make([]int64, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// OrganizationDirectory answers organization and department membership questions
type OrganizationDirectory interface {
	// Organizations returns the organizations the user belongs to
	Organizations(ctx context.Context, userID int64) (IDSet, error)

	// Departments returns the departments the user belongs to, directly or
	// through role assignments
	Departments(ctx context.Context, userID int64) (IDSet, error)

	// OrganizationExists reports whether the organization exists
	OrganizationExists(ctx context.Context, orgID int64) (bool, error)

	// HomeOrganization returns the user's home organization, if any
	HomeOrganization(ctx context.Context, userID int64) (int64, bool, error)
}

// UserDirectory answers account-level questions about a user
type UserDirectory interface {
	IsSuperuser(ctx context.Context, userID int64) (bool, error)
	AccountCreatedAt(ctx context.Context, userID int64) (time.Time, error)
	MFARequired(ctx context.Context, userID int64) (bool, error)
}

// OrganizationSettingsProvider exposes per-organization settings
type OrganizationSettingsProvider interface {
	OrganizationSettings(ctx context.Context, orgID int64) (map[string]interface{}, error)
}

// OrganizationScoped is implemented by entities that may belong to a single
// organization. Entities that are not scoped apply to every organization.
type OrganizationScoped interface {
	OrganizationScope() (orgID int64, scoped bool)
}

// InOrganization reports whether e is usable inside orgID
func InOrganization(e OrganizationScoped, orgID int64) bool {
	id, scoped := e.OrganizationScope()
	return !scoped || id == orgID
}
