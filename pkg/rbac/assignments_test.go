package rbac

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantguard/pkg/apperr"
	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/contextkeys"
	"github.com/platinummonkey/tenantguard/pkg/directory"
)

type ledgerFixture struct {
	ledger *Ledger
	store  *Store
	sink   *audit.MemoryLogger
	now    time.Time
	roleA  *Role
	roleB  *Role
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	db := setupTestDB(t)
	store := NewStore(db, nil)
	f := &ledgerFixture{
		store: store,
		sink:  audit.NewMemoryLogger(),
		now:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.ledger = NewLedger(db, store, &fakeOrgs{orgs: directory.NewIDSet(10, 20)},
		WithLedgerAudit(f.sink),
		WithLedgerClock(func() time.Time { return f.now }),
	)
	f.roleA = mustCreateRole(t, store, "role_a", nil, map[string]bool{"task.read": true})
	f.roleB = mustCreateRole(t, store, "role_b", nil, map[string]bool{"task.update": true})
	return f
}

func TestLedger_AssignAndEffective(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	a, err := f.ledger.Assign(ctx, AssignRequest{UserID: 1, RoleID: f.roleA.ID, OrganizationID: 10, AssignedBy: 7})
	require.NoError(t, err)
	assert.True(t, a.IsActive)
	assert.False(t, a.IsPrimary)
	assert.Equal(t, ApprovalApproved, a.ApprovalStatus)

	stored, err := f.ledger.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), stored.AssignedBy)
	assert.True(t, stored.AssignedAt.Equal(f.now))

	effective, err := f.ledger.Effective(ctx, 1, int64Ptr(10), f.now)
	require.NoError(t, err)
	require.Len(t, effective, 1)
	assert.Equal(t, f.roleA.ID, effective[0].RoleID)

	other, err := f.ledger.Effective(ctx, 1, int64Ptr(20), f.now)
	require.NoError(t, err)
	assert.Empty(t, other)

	require.Len(t, f.sink.Events(), 1)
	assert.Equal(t, audit.EventTypeAuthzRoleAssign, f.sink.Events()[0].EventType)
}

func TestLedger_AssignValidation(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	_, err := f.ledger.Assign(ctx, AssignRequest{RoleID: f.roleA.ID, OrganizationID: 10})
	assert.True(t, apperr.IsValidation(err))

	_, err = f.ledger.Assign(ctx, AssignRequest{UserID: 1, RoleID: 999, OrganizationID: 10})
	assert.True(t, apperr.IsNotFound(err))

	_, err = f.ledger.Assign(ctx, AssignRequest{UserID: 1, RoleID: f.roleA.ID, OrganizationID: 30})
	assert.True(t, apperr.IsNotFound(err), "unknown organization")

	scoped := &Role{Code: "org20", Name: "Org 20", OrganizationID: int64Ptr(20)}
	require.NoError(t, f.store.CreateRole(ctx, scoped))
	_, err = f.ledger.Assign(ctx, AssignRequest{UserID: 1, RoleID: scoped.ID, OrganizationID: 10})
	assert.True(t, apperr.IsValidation(err), "role of another organization")
}

func TestLedger_AssignReactivatesExistingRow(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	first, err := f.ledger.Assign(ctx, AssignRequest{UserID: 1, RoleID: f.roleA.ID, OrganizationID: 10, AssignedBy: 7})
	require.NoError(t, err)

	revoked, err := f.ledger.Revoke(ctx, 1, f.roleA.ID, 10, nil)
	require.NoError(t, err)
	assert.True(t, revoked)

	f.now = f.now.Add(time.Hour)
	second, err := f.ledger.Assign(ctx, AssignRequest{UserID: 1, RoleID: f.roleA.ID, OrganizationID: 10, AssignedBy: 8})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.IsActive)
	assert.Equal(t, int64(8), second.AssignedBy)

	all, err := f.ledger.ListForUser(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestLedger_AssignActiveRowUpdatesExpiry(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	first, err := f.ledger.Assign(ctx, AssignRequest{UserID: 1, RoleID: f.roleA.ID, OrganizationID: 10})
	require.NoError(t, err)

	expires := f.now.Add(48 * time.Hour)
	again, err := f.ledger.Assign(ctx, AssignRequest{UserID: 1, RoleID: f.roleA.ID, OrganizationID: 10, ExpiresAt: &expires})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	stored, err := f.ledger.Get(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ExpiresAt)
	assert.True(t, stored.ExpiresAt.Equal(expires))
}

func TestLedger_AssignWithoutExpiryKeepsStoredExpiry(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	expires := f.now.Add(24 * time.Hour)
	first, err := f.ledger.Assign(ctx, AssignRequest{UserID: 1, RoleID: f.roleA.ID, OrganizationID: 10, ExpiresAt: &expires})
	require.NoError(t, err)

	again, err := f.ledger.Assign(ctx, AssignRequest{UserID: 1, RoleID: f.roleA.ID, OrganizationID: 10})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	require.NotNil(t, again.ExpiresAt)
	assert.True(t, again.ExpiresAt.Equal(expires))

	stored, err := f.ledger.Get(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ExpiresAt)
	assert.True(t, stored.ExpiresAt.Equal(expires))

	later, err := f.ledger.Effective(ctx, 1, int64Ptr(10), expires.Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, later)
}

func TestLedger_RevokeRecordsActorAndAssignment(t *testing.T) {
	f := newLedgerFixture(t)
	a, err := f.ledger.Assign(context.Background(), AssignRequest{UserID: 1, RoleID: f.roleA.ID, OrganizationID: 10, AssignedBy: 7})
	require.NoError(t, err)

	ctx := contextkeys.WithActorID(context.Background(), 42)
	revoked, err := f.ledger.Revoke(ctx, 1, f.roleA.ID, 10, nil)
	require.NoError(t, err)
	assert.True(t, revoked)

	events := f.sink.EventsOfType(audit.EventTypeAuthzRoleRevoke)
	require.Len(t, events, 1)
	require.NotNil(t, events[0].UserID)
	assert.Equal(t, int64(42), *events[0].UserID)
	assert.Equal(t, strconv.FormatInt(a.ID, 10), events[0].ResourceID)

	again, err := f.ledger.Revoke(ctx, 1, f.roleA.ID, 10, nil)
	require.NoError(t, err)
	assert.False(t, again)
	assert.Len(t, f.sink.EventsOfType(audit.EventTypeAuthzRoleRevoke), 1)
}

func TestLedger_DepartmentScopedAssignmentsAreDistinct(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	orgWide, err := f.ledger.Assign(ctx, AssignRequest{UserID: 1, RoleID: f.roleA.ID, OrganizationID: 10})
	require.NoError(t, err)
	dept, err := f.ledger.Assign(ctx, AssignRequest{UserID: 1, RoleID: f.roleA.ID, OrganizationID: 10, DepartmentID: int64Ptr(3)})
	require.NoError(t, err)
	assert.NotEqual(t, orgWide.ID, dept.ID)

	revoked, err := f.ledger.Revoke(ctx, 1, f.roleA.ID, 10, int64Ptr(3))
	require.NoError(t, err)
	assert.True(t, revoked)

	effective, err := f.ledger.Effective(ctx, 1, nil, f.now)
	require.NoError(t, err)
	require.Len(t, effective, 1)
	assert.Nil(t, effective[0].DepartmentID)
}

func TestLedger_RevokeWithoutMatch(t *testing.T) {
	f := newLedgerFixture(t)

	revoked, err := f.ledger.Revoke(context.Background(), 1, f.roleA.ID, 10, nil)
	require.NoError(t, err)
	assert.False(t, revoked)
	assert.Empty(t, f.sink.Events())
}

func TestLedger_SetPrimaryIsExclusive(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	a, err := f.ledger.Assign(ctx, AssignRequest{UserID: 1, RoleID: f.roleA.ID, OrganizationID: 10})
	require.NoError(t, err)
	b, err := f.ledger.Assign(ctx, AssignRequest{UserID: 1, RoleID: f.roleB.ID, OrganizationID: 20})
	require.NoError(t, err)

	ok, err := f.ledger.SetPrimary(ctx, 1, a.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.ledger.SetPrimary(ctx, 1, b.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	all, err := f.ledger.ListForUser(ctx, 1)
	require.NoError(t, err)
	primaries := 0
	for _, x := range all {
		if x.IsPrimary {
			primaries++
			assert.Equal(t, b.ID, x.ID)
		}
	}
	assert.Equal(t, 1, primaries)

	// another user's assignment and an unknown id are refused
	ok, err = f.ledger.SetPrimary(ctx, 2, a.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.ledger.SetPrimary(ctx, 1, 404)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLedger_SetPrimaryRejectsInactive(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	a, err := f.ledger.Assign(ctx, AssignRequest{UserID: 1, RoleID: f.roleA.ID, OrganizationID: 10})
	require.NoError(t, err)
	_, err = f.ledger.Revoke(ctx, 1, f.roleA.ID, 10, nil)
	require.NoError(t, err)

	ok, err := f.ledger.SetPrimary(ctx, 1, a.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLedger_SetPrimaryRejectsExpired(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	expires := f.now.Add(time.Hour)
	a, err := f.ledger.Assign(ctx, AssignRequest{UserID: 1, RoleID: f.roleA.ID, OrganizationID: 10, ExpiresAt: &expires})
	require.NoError(t, err)

	// still flagged active because no sweep has run
	f.now = expires
	ok, err := f.ledger.SetPrimary(ctx, 1, a.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := f.ledger.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsActive)
	assert.False(t, stored.IsPrimary)
	assert.Empty(t, f.sink.EventsOfType(audit.EventTypeAuthzPrimaryChange))
}

func TestLedger_EffectiveHonorsExpiry(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	expires := f.now.Add(time.Hour)
	_, err := f.ledger.Assign(ctx, AssignRequest{UserID: 1, RoleID: f.roleA.ID, OrganizationID: 10, ExpiresAt: &expires})
	require.NoError(t, err)
	_, err = f.ledger.Assign(ctx, AssignRequest{UserID: 1, RoleID: f.roleB.ID, OrganizationID: 10})
	require.NoError(t, err)

	before, err := f.ledger.Effective(ctx, 1, nil, f.now)
	require.NoError(t, err)
	assert.Len(t, before, 2)

	// expired exactly at expires_at, with no sweep having run
	at, err := f.ledger.Effective(ctx, 1, nil, expires)
	require.NoError(t, err)
	require.Len(t, at, 1)
	assert.Equal(t, f.roleB.ID, at[0].RoleID)
}

func TestLedger_DeactivateExpired(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	expires := f.now.Add(time.Hour)
	a, err := f.ledger.Assign(ctx, AssignRequest{UserID: 1, RoleID: f.roleA.ID, OrganizationID: 10, ExpiresAt: &expires})
	require.NoError(t, err)
	_, err = f.ledger.Assign(ctx, AssignRequest{UserID: 1, RoleID: f.roleB.ID, OrganizationID: 10})
	require.NoError(t, err)

	n, err := f.ledger.DeactivateExpired(ctx, f.now)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = f.ledger.DeactivateExpired(ctx, expires.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	stored, err := f.ledger.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)

	n, err = f.ledger.DeactivateExpired(ctx, expires.Add(time.Minute))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLedger_SetApprovalStatus(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	a, err := f.ledger.Assign(ctx, AssignRequest{UserID: 1, RoleID: f.roleA.ID, OrganizationID: 10})
	require.NoError(t, err)

	require.NoError(t, f.ledger.SetApprovalStatus(ctx, a.ID, ApprovalRejected))
	stored, err := f.ledger.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, ApprovalRejected, stored.ApprovalStatus)

	assert.True(t, apperr.IsValidation(f.ledger.SetApprovalStatus(ctx, a.ID, "maybe")))
	assert.True(t, apperr.IsNotFound(f.ledger.SetApprovalStatus(ctx, 404, ApprovalApproved)))
}

func TestLedger_AuditFailureDoesNotFailAssign(t *testing.T) {
	f := newLedgerFixture(t)
	f.sink.FailWith(errors.New("audit store offline"))

	_, err := f.ledger.Assign(context.Background(), AssignRequest{UserID: 1, RoleID: f.roleA.ID, OrganizationID: 10})
	assert.NoError(t, err)
}
