package usage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresStore keeps counters in the usage table, one row per
// (org_id, period, resource).
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a Postgres-backed usage store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// ReadUsage implements Store
func (s *PostgresStore) ReadUsage(ctx context.Context, key Key) (int64, error) {
	query := `
		SELECT count FROM usage
		WHERE org_id = $1 AND period = $2 AND resource = $3
	`
	var count int64
	err := s.db.QueryRowContext(ctx, query, key.OrgID, string(key.Period), string(key.Kind)).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read usage: %w", err)
	}
	return count, nil
}

// ReadPeriod implements Store
func (s *PostgresStore) ReadPeriod(ctx context.Context, orgID string, period Period) (map[ResourceKind]int64, error) {
	query := `
		SELECT resource, count FROM usage
		WHERE org_id = $1 AND period = $2
	`
	rows, err := s.db.QueryContext(ctx, query, orgID, string(period))
	if err != nil {
		return nil, fmt.Errorf("failed to read usage period: %w", err)
	}
	defer rows.Close()

	out := make(map[ResourceKind]int64)
	for rows.Next() {
		var (
			resource string
			count    int64
		)
		if err := rows.Scan(&resource, &count); err != nil {
			return nil, fmt.Errorf("failed to scan usage: %w", err)
		}
		out[ResourceKind(resource)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read usage period: %w", err)
	}
	return out, nil
}

// WriteUsageDelta implements Store
func (s *PostgresStore) WriteUsageDelta(ctx context.Context, key Key, delta int64) (int64, error) {
	query := `
		INSERT INTO usage (org_id, period, resource, count, created_at, updated_at)
		VALUES ($1, $2, $3, GREATEST($4::bigint, 0), NOW(), NOW())
		ON CONFLICT (org_id, period, resource) DO UPDATE
		SET count = GREATEST(usage.count + $4::bigint, 0), updated_at = NOW()
		RETURNING count
	`
	var count int64
	err := s.db.QueryRowContext(ctx, query, key.OrgID, string(key.Period), string(key.Kind), delta).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to write usage delta: %w", err)
	}
	return count, nil
}

// IncrementWithCap implements CappedStore. The conditional upsert either
// returns the new count or no row at all when the cap would be exceeded.
func (s *PostgresStore) IncrementWithCap(ctx context.Context, key Key, amount, limit int64) (int64, bool, error) {
	query := `
		INSERT INTO usage (org_id, period, resource, count, created_at, updated_at)
		SELECT $1, $2, $3, $4::bigint, NOW(), NOW()
		WHERE $4::bigint <= $5::bigint
		ON CONFLICT (org_id, period, resource) DO UPDATE
		SET count = usage.count + EXCLUDED.count, updated_at = NOW()
		WHERE usage.count + EXCLUDED.count <= $5::bigint
		RETURNING count
	`
	var count int64
	err := s.db.QueryRowContext(ctx, query, key.OrgID, string(key.Period), string(key.Kind), amount, limit).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		current, readErr := s.ReadUsage(ctx, key)
		if readErr != nil {
			return 0, false, readErr
		}
		return current, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to increment usage: %w", err)
	}
	return count, true, nil
}
