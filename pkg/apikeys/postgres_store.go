package apikeys

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const keyColumns = `id, org_id, name, prefix, key_hash, created_at, last_used_at, revoked_at`

// PostgresStore implements Store on the api_keys table
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgresStore
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanKey(row rowScanner) (*APIKey, error) {
	var (
		k        APIKey
		lastUsed sql.NullTime
		revoked  sql.NullTime
	)
	if err := row.Scan(&k.ID, &k.OrgID, &k.Name, &k.Prefix, &k.KeyHash, &k.CreatedAt, &lastUsed, &revoked); err != nil {
		return nil, err
	}
	if lastUsed.Valid {
		t := lastUsed.Time
		k.LastUsedAt = &t
	}
	if revoked.Valid {
		t := revoked.Time
		k.RevokedAt = &t
	}
	return &k, nil
}

// Create implements Store. Registrations for one organization are
// serialized with an advisory lock so the cap holds.
func (s *PostgresStore) Create(ctx context.Context, k *APIKey, maxActive int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "api_keys:"+k.OrgID); err != nil {
		return fmt.Errorf("failed to lock organization api keys: %w", err)
	}

	query := `
		INSERT INTO api_keys (id, org_id, name, prefix, key_hash, created_at)
		SELECT $1, $2, $3, $4, $5, $6
		WHERE (SELECT COUNT(*) FROM api_keys WHERE org_id = $2 AND revoked_at IS NULL) < $7
	`
	result, err := tx.ExecContext(ctx, query, k.ID, k.OrgID, k.Name, k.Prefix, k.KeyHash, k.CreatedAt, maxActive)
	if err != nil {
		return fmt.Errorf("failed to create api key: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrLimitReached
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit api key: %w", err)
	}
	return nil
}

// List implements Store
func (s *PostgresStore) List(ctx context.Context, orgID string) ([]*APIKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+keyColumns+` FROM api_keys WHERE org_id = $1 ORDER BY created_at DESC, id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	defer rows.Close()

	out := make([]*APIKey, 0)
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan api key: %w", err)
		}
		out = append(out, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	return out, nil
}

// GetByHash implements Store
func (s *PostgresStore) GetByHash(ctx context.Context, keyHash string) (*APIKey, error) {
	k, err := scanKey(s.db.QueryRowContext(ctx,
		`SELECT `+keyColumns+` FROM api_keys WHERE key_hash = $1`, keyHash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get api key: %w", err)
	}
	return k, nil
}

// Revoke implements Store
func (s *PostgresStore) Revoke(ctx context.Context, orgID, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE api_keys SET revoked_at = COALESCE(revoked_at, $3)
		WHERE id = $1 AND org_id = $2`, id, orgID, at)
	if err != nil {
		return fmt.Errorf("failed to revoke api key: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Touch implements Store
func (s *PostgresStore) Touch(ctx context.Context, id string, at time.Time) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`, id, at); err != nil {
		return fmt.Errorf("failed to update api key last use: %w", err)
	}
	return nil
}
