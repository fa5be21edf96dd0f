package crosstenant

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantguard/pkg/apperr"
)

func TestStore_CreateGet(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()

	created := mustCreateRule(t, store, Rule{
		SourceOrgID: 1,
		TargetOrgID: 2,
		Permission:  "project.read",
		Conditions: Conditions{
			UserID:     int64Ptr(5),
			ValidFrom:  baseTime,
			ValidUntil: timePtr(baseTime.Add(24 * time.Hour)),
		},
		IsActive: true,
	})
	require.NotZero(t, created.ID)

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.SourceOrgID)
	assert.Equal(t, int64(2), got.TargetOrgID)
	assert.Equal(t, "project.read", got.Permission)
	require.NotNil(t, got.Conditions.UserID)
	assert.Equal(t, int64(5), *got.Conditions.UserID)
	assert.True(t, got.Conditions.ValidFrom.Equal(baseTime))
	require.NotNil(t, got.Conditions.ValidUntil)
	assert.True(t, got.Conditions.ValidUntil.Equal(baseTime.Add(24*time.Hour)))
	assert.True(t, got.IsActive)
	assert.False(t, got.IsDeleted)

	_, err = store.Get(ctx, 999)
	assert.True(t, apperr.IsNotFound(err))
}

func TestStore_CandidatesFiltersPairAndState(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()

	match := mustCreateRule(t, store, Rule{SourceOrgID: 1, TargetOrgID: 2, Permission: "project.read", Conditions: Conditions{ValidFrom: baseTime}, IsActive: true})
	mustCreateRule(t, store, Rule{SourceOrgID: 2, TargetOrgID: 1, Permission: "project.read", Conditions: Conditions{ValidFrom: baseTime}, IsActive: true})
	mustCreateRule(t, store, Rule{SourceOrgID: 1, TargetOrgID: 2, Permission: "project.read", Conditions: Conditions{ValidFrom: baseTime}, IsActive: false})
	other := mustCreateRule(t, store, Rule{SourceOrgID: 1, TargetOrgID: 2, Permission: "task.read", Conditions: Conditions{ValidFrom: baseTime}, IsActive: true})
	deleted := mustCreateRule(t, store, Rule{SourceOrgID: 1, TargetOrgID: 2, Permission: "project.read", Conditions: Conditions{ValidFrom: baseTime}, IsActive: true})
	require.NoError(t, store.SoftDelete(ctx, deleted.ID, 9, baseTime))

	rules, err := store.Candidates(ctx, 1, 2, []string{"project.read"})
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, match.ID, rules[0].ID)

	rules, err = store.Candidates(ctx, 1, 2, []string{"project.read", "task.read"})
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, match.ID, rules[0].ID)
	assert.Equal(t, other.ID, rules[1].ID)

	rules, err = store.Candidates(ctx, 1, 2, nil)
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestStore_SoftDelete(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()

	rule := mustCreateRule(t, store, Rule{SourceOrgID: 1, TargetOrgID: 2, Permission: "project.read", Conditions: Conditions{ValidFrom: baseTime}, IsActive: true})
	require.NoError(t, store.SoftDelete(ctx, rule.ID, 9, baseTime.Add(time.Hour)))

	got, err := store.Get(ctx, rule.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDeleted)
	assert.False(t, got.IsActive)
	require.NotNil(t, got.DeletedBy)
	assert.Equal(t, int64(9), *got.DeletedBy)

	err = store.SoftDelete(ctx, rule.ID, 9, baseTime)
	assert.True(t, apperr.IsNotFound(err))
}

func TestStore_Update(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()

	rule := mustCreateRule(t, store, Rule{SourceOrgID: 1, TargetOrgID: 2, Permission: "project.read", Conditions: Conditions{ValidFrom: baseTime}, IsActive: true})
	rule.Permission = "task.read"
	rule.Conditions.ValidUntil = timePtr(baseTime.Add(time.Hour))
	rule.UpdatedAt = baseTime.Add(time.Minute)
	require.NoError(t, store.Update(ctx, rule))

	got, err := store.Get(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "task.read", got.Permission)
	require.NotNil(t, got.Conditions.ValidUntil)

	missing := *rule
	missing.ID = 404
	assert.True(t, apperr.IsNotFound(store.Update(ctx, &missing)))
}

func TestStore_List(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()

	a := mustCreateRule(t, store, Rule{SourceOrgID: 1, TargetOrgID: 2, Permission: "project.read", Conditions: Conditions{ValidFrom: baseTime}, IsActive: true})
	b := mustCreateRule(t, store, Rule{SourceOrgID: 1, TargetOrgID: 3, Permission: "task.read", Conditions: Conditions{ValidFrom: baseTime}, IsActive: false})
	c := mustCreateRule(t, store, Rule{SourceOrgID: 4, TargetOrgID: 2, Permission: "project.read", Conditions: Conditions{ValidFrom: baseTime}, IsActive: true})
	require.NoError(t, store.SoftDelete(ctx, c.ID, 1, baseTime))

	all, err := store.List(ctx, RuleFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, a.ID, all[0].ID)
	assert.Equal(t, b.ID, all[1].ID)

	withDeleted, err := store.List(ctx, RuleFilter{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Len(t, withDeleted, 3)

	active, err := store.List(ctx, RuleFilter{SourceOrgID: int64Ptr(1), ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, a.ID, active[0].ID)

	byTarget, err := store.List(ctx, RuleFilter{TargetOrgID: int64Ptr(3), Permission: "task.read", Limit: 10})
	require.NoError(t, err)
	require.Len(t, byTarget, 1)
	assert.Equal(t, b.ID, byTarget[0].ID)
}

func TestStore_DeactivateExpiredIsIdempotent(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()

	expired := mustCreateRule(t, store, Rule{SourceOrgID: 1, TargetOrgID: 2, Permission: "project.read", Conditions: Conditions{ValidFrom: baseTime.Add(-48 * time.Hour), ValidUntil: timePtr(baseTime.Add(-time.Hour))}, IsActive: true})
	boundary := mustCreateRule(t, store, Rule{SourceOrgID: 1, TargetOrgID: 2, Permission: "task.read", Conditions: Conditions{ValidFrom: baseTime.Add(-48 * time.Hour), ValidUntil: timePtr(baseTime)}, IsActive: true})
	future := mustCreateRule(t, store, Rule{SourceOrgID: 1, TargetOrgID: 2, Permission: "task.update", Conditions: Conditions{ValidFrom: baseTime.Add(-48 * time.Hour), ValidUntil: timePtr(baseTime.Add(time.Hour))}, IsActive: true})
	open := mustCreateRule(t, store, Rule{SourceOrgID: 1, TargetOrgID: 2, Permission: "task.create", Conditions: Conditions{ValidFrom: baseTime.Add(-48 * time.Hour)}, IsActive: true})

	n, err := store.DeactivateExpired(ctx, baseTime)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = store.DeactivateExpired(ctx, baseTime)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	for id, want := range map[int64]bool{expired.ID: false, boundary.ID: false, future.ID: true, open.ID: true} {
		got, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got.IsActive, "rule %d", id)
	}
}

func TestStore_CandidatesQueryShape(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM cross_tenant_permission_rules WHERE source_org_id = \$1 AND target_org_id = \$2 AND permission IN \(\$3, \$4\) AND is_active = true AND is_deleted = false ORDER BY id ASC`).
		WithArgs(int64(1), int64(2), "project.read", "task.read").
		WillReturnError(errors.New("connection reset"))

	_, err = NewStore(db).Candidates(context.Background(), 1, 2, []string{"project.read", "task.read"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to find cross-tenant rules")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_DeactivateExpiredError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE cross_tenant_permission_rules SET is_active = false`).
		WithArgs(baseTime).
		WillReturnError(sql.ErrConnDone)

	_, err = NewStore(db).DeactivateExpired(context.Background(), baseTime)
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.NoError(t, mock.ExpectationsWereMet())
}
