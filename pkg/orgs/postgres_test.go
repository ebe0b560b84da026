package orgs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDirectory(t *testing.T) (*PostgresDirectory, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresDirectory(db, NewCatalog(nil)), mock
}

func TestPostgresDirectory_CreateOrganization(t *testing.T) {
	dir, mock := newMockDirectory(t)
	now := time.Now()

	mock.ExpectQuery("INSERT INTO organizations").
		WithArgs("org_1", "Acme", "free", false, nil).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	org := &Organization{ID: "org_1", Name: "Acme"}
	require.NoError(t, dir.CreateOrganization(context.Background(), org))
	assert.Equal(t, PlanFree, org.Plan)
	assert.Equal(t, now, org.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDirectory_CreateOrganization_RequiresID(t *testing.T) {
	dir, _ := newMockDirectory(t)
	assert.Error(t, dir.CreateOrganization(context.Background(), &Organization{Name: "Acme"}))
}

func TestPostgresDirectory_GetOrganization(t *testing.T) {
	dir, mock := newMockDirectory(t)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM organizations WHERE id").
		WithArgs("org_1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "plan", "overage_enabled", "spending_cap_cents", "created_at", "updated_at",
		}).AddRow("org_1", "Acme", "pro", true, int64(5000), now, now))

	org, err := dir.GetOrganization(context.Background(), "org_1")
	require.NoError(t, err)
	assert.Equal(t, PlanPro, org.Plan)
	assert.Equal(t, &OverageSettings{Enabled: true, SpendingCapCents: 5000}, org.Overage())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDirectory_GetPlan(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		dir, mock := newMockDirectory(t)
		mock.ExpectQuery("SELECT plan FROM organizations WHERE id").
			WithArgs("org_1").
			WillReturnRows(sqlmock.NewRows([]string{"plan"}).AddRow("agency"))

		plan, err := dir.GetPlan(context.Background(), "org_1")
		require.NoError(t, err)
		assert.Equal(t, PlanAgency, plan)
	})

	t.Run("not found", func(t *testing.T) {
		dir, mock := newMockDirectory(t)
		mock.ExpectQuery("SELECT plan FROM organizations").
			WithArgs("org_2").
			WillReturnRows(sqlmock.NewRows([]string{"plan"}))

		_, err := dir.GetPlan(context.Background(), "org_2")
		assert.ErrorIs(t, err, ErrOrgNotFound)
	})

	t.Run("database error", func(t *testing.T) {
		dir, mock := newMockDirectory(t)
		mock.ExpectQuery("SELECT plan FROM organizations").
			WillReturnError(errors.New("connection refused"))

		_, err := dir.GetPlan(context.Background(), "org_3")
		assert.ErrorContains(t, err, "failed to get plan")
		assert.NotErrorIs(t, err, ErrOrgNotFound)
	})
}

func TestPostgresDirectory_GetOverageSettings(t *testing.T) {
	dir, mock := newMockDirectory(t)
	mock.ExpectQuery("SELECT overage_enabled, spending_cap_cents FROM organizations").
		WithArgs("org_1").
		WillReturnRows(sqlmock.NewRows([]string{"overage_enabled", "spending_cap_cents"}).AddRow(true, nil))

	s, err := dir.GetOverageSettings(context.Background(), "org_1")
	require.NoError(t, err)
	assert.True(t, s.Enabled)
	assert.False(t, s.HasSpendingCap())
}

func TestPostgresDirectory_UpdatePlan(t *testing.T) {
	dir, mock := newMockDirectory(t)

	mock.ExpectExec("UPDATE organizations SET plan").
		WithArgs("pro", "org_1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, dir.UpdatePlan(context.Background(), "org_1", PlanPro))

	mock.ExpectExec("UPDATE organizations SET plan").
		WithArgs("pro", "org_9").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, dir.UpdatePlan(context.Background(), "org_9", PlanPro), ErrOrgNotFound)

	assert.ErrorIs(t, dir.UpdatePlan(context.Background(), "org_1", "platinum"), ErrPlanNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
