package orgs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresDirectory reads organizations from the organizations table
type PostgresDirectory struct {
	db      *sql.DB
	catalog *Catalog
}

// NewPostgresDirectory creates a PostgresDirectory
func NewPostgresDirectory(db *sql.DB, catalog *Catalog) *PostgresDirectory {
	return &PostgresDirectory{db: db, catalog: catalog}
}

// CreateOrganization inserts an organization, defaulting to the free plan
func (d *PostgresDirectory) CreateOrganization(ctx context.Context, org *Organization) error {
	if org.ID == "" {
		return fmt.Errorf("organization id is required")
	}
	if org.Plan == "" {
		org.Plan = PlanFree
	}

	query := `
		INSERT INTO organizations (id, name, plan, overage_enabled, spending_cap_cents)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`
	err := d.db.QueryRowContext(ctx, query, org.ID, org.Name, string(org.Plan),
		org.OverageEnabled, nullCap(org.SpendingCapCents)).
		Scan(&org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}
	return nil
}

// GetOrganization loads one organization
func (d *PostgresDirectory) GetOrganization(ctx context.Context, orgID string) (*Organization, error) {
	query := `
		SELECT id, name, plan, overage_enabled, spending_cap_cents, created_at, updated_at
		FROM organizations
		WHERE id = $1
	`
	org := &Organization{}
	var spendingCap sql.NullInt64
	err := d.db.QueryRowContext(ctx, query, orgID).Scan(
		&org.ID, &org.Name, &org.Plan, &org.OverageEnabled, &spendingCap,
		&org.CreatedAt, &org.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrgNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	if spendingCap.Valid {
		org.SpendingCapCents = spendingCap.Int64
	}
	return org, nil
}

// UpdatePlan moves an organization to another plan
func (d *PostgresDirectory) UpdatePlan(ctx context.Context, orgID string, plan PlanTier) error {
	if _, ok := d.catalog.Limits(plan); !ok {
		return fmt.Errorf("%w: %s", ErrPlanNotFound, plan)
	}

	result, err := d.db.ExecContext(ctx,
		`UPDATE organizations SET plan = $1, updated_at = NOW() WHERE id = $2`, string(plan), orgID)
	if err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrOrgNotFound
	}
	return nil
}

// GetPlan implements Directory
func (d *PostgresDirectory) GetPlan(ctx context.Context, orgID string) (PlanTier, error) {
	var plan PlanTier
	err := d.db.QueryRowContext(ctx, `SELECT plan FROM organizations WHERE id = $1`, orgID).Scan(&plan)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrOrgNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get plan: %w", err)
	}
	return plan, nil
}

// GetPlanLimits implements Directory
func (d *PostgresDirectory) GetPlanLimits(_ context.Context, plan PlanTier) (*PlanLimits, error) {
	return catalogLimits(d.catalog, plan)
}

// GetOverageSettings implements OverageDirectory
func (d *PostgresDirectory) GetOverageSettings(ctx context.Context, orgID string) (*OverageSettings, error) {
	var (
		enabled     bool
		spendingCap sql.NullInt64
	)
	err := d.db.QueryRowContext(ctx,
		`SELECT overage_enabled, spending_cap_cents FROM organizations WHERE id = $1`, orgID).
		Scan(&enabled, &spendingCap)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrgNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get overage settings: %w", err)
	}

	settings := &OverageSettings{Enabled: enabled}
	if spendingCap.Valid {
		settings.SpendingCapCents = spendingCap.Int64
	}
	return settings, nil
}

func nullCap(cents int64) sql.NullInt64 {
	return sql.NullInt64{Int64: cents, Valid: cents > 0}
}
