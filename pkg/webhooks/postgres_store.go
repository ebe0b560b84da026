package webhooks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

const webhookColumns = `id, org_id, url, events, secret, description, active, failure_count,
	last_triggered_at, last_status, last_status_code, last_error, created_at, updated_at`

// PostgresStore implements Store on the webhooks table
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

func scanWebhook(row rowScanner) (*Webhook, error) {
	var (
		w           Webhook
		events      []string
		description sql.NullString
		lastTrigger sql.NullTime
		lastStatus  sql.NullString
		lastCode    sql.NullInt64
		lastError   sql.NullString
	)
	err := row.Scan(&w.ID, &w.OrgID, &w.URL, pq.Array(&events), &w.Secret, &description,
		&w.Active, &w.FailureCount, &lastTrigger, &lastStatus, &lastCode, &lastError,
		&w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	w.Events = make([]EventType, len(events))
	for i, e := range events {
		w.Events[i] = EventType(e)
	}
	w.Description = description.String
	w.LastStatus = DeliveryStatus(lastStatus.String)
	w.LastStatusCode = int(lastCode.Int64)
	w.LastError = lastError.String
	if lastTrigger.Valid {
		t := lastTrigger.Time
		w.LastTriggeredAt = &t
	}
	return &w, nil
}

func eventStrings(events []EventType) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = string(e)
	}
	return out
}

// Create implements Store. An advisory lock per organization serializes
// concurrent registrations so the cap holds.
func (s *PostgresStore) Create(ctx context.Context, w *Webhook, maxActive int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "webhooks:"+w.OrgID); err != nil {
		return fmt.Errorf("failed to lock organization webhooks: %w", err)
	}

	query := `
		INSERT INTO webhooks (id, org_id, url, events, secret, description, active, failure_count, created_at, updated_at)
		SELECT $1, $2, $3, $4, $5, $6, TRUE, 0, $7, $7
		WHERE (SELECT COUNT(*) FROM webhooks WHERE org_id = $2 AND active) < $8
	`
	result, err := tx.ExecContext(ctx, query, w.ID, w.OrgID, w.URL, pq.Array(eventStrings(w.Events)),
		w.Secret, w.Description, w.CreatedAt, maxActive)
	if err != nil {
		return fmt.Errorf("failed to create webhook: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrLimitReached
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit webhook: %w", err)
	}
	return nil
}

// Get implements Store
func (s *PostgresStore) Get(ctx context.Context, orgID, id string) (*Webhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhooks WHERE id = $1 AND org_id = $2`
	w, err := scanWebhook(s.db.QueryRowContext(ctx, query, id, orgID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook: %w", err)
	}
	return w, nil
}

func (s *PostgresStore) query(ctx context.Context, query string, args ...any) ([]*Webhook, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhooks: %w", err)
	}
	defer rows.Close()

	out := make([]*Webhook, 0)
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan webhook: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list webhooks: %w", err)
	}
	return out, nil
}

// List implements Store
func (s *PostgresStore) List(ctx context.Context, orgID string) ([]*Webhook, error) {
	return s.query(ctx, `SELECT `+webhookColumns+` FROM webhooks WHERE org_id = $1 ORDER BY created_at, id`, orgID)
}

// ListActiveForEvent implements Store
func (s *PostgresStore) ListActiveForEvent(ctx context.Context, orgID string, event EventType) ([]*Webhook, error) {
	return s.query(ctx, `SELECT `+webhookColumns+` FROM webhooks
		WHERE org_id = $1 AND active AND $2 = ANY(events)
		ORDER BY created_at, id`, orgID, string(event))
}

// Delete implements Store
func (s *PostgresStore) Delete(ctx context.Context, orgID, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM webhooks WHERE id = $1 AND org_id = $2`, id, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
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

// SetActive implements Store
func (s *PostgresStore) SetActive(ctx context.Context, orgID, id string, active bool) (*Webhook, error) {
	query := `
		UPDATE webhooks
		SET active = $3,
		    failure_count = CASE WHEN $3 THEN 0 ELSE failure_count END,
		    updated_at = NOW()
		WHERE id = $1 AND org_id = $2
		RETURNING ` + webhookColumns
	w, err := scanWebhook(s.db.QueryRowContext(ctx, query, id, orgID, active))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update webhook: %w", err)
	}
	return w, nil
}

// Activate implements Store. It takes the same per-organization lock as
// Create, so a re-enable cannot race a registration past the cap.
func (s *PostgresStore) Activate(ctx context.Context, orgID, id string, maxActive int) (*Webhook, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "webhooks:"+orgID); err != nil {
		return nil, fmt.Errorf("failed to lock organization webhooks: %w", err)
	}

	query := `
		UPDATE webhooks
		SET active = TRUE, failure_count = 0, updated_at = NOW()
		WHERE id = $1 AND org_id = $2
		  AND (active OR (SELECT COUNT(*) FROM webhooks WHERE org_id = $2 AND active) < $3)
		RETURNING ` + webhookColumns
	w, err := scanWebhook(tx.QueryRowContext(ctx, query, id, orgID, maxActive))
	if errors.Is(err, sql.ErrNoRows) {
		// either the webhook is missing or the org is at its cap
		var exists bool
		err = tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM webhooks WHERE id = $1 AND org_id = $2)`, id, orgID).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("failed to look up webhook: %w", err)
		}
		if !exists {
			return nil, ErrNotFound
		}
		return nil, ErrLimitReached
	}
	if err != nil {
		return nil, fmt.Errorf("failed to activate webhook: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit webhook: %w", err)
	}
	return w, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// RecordSuccess implements Store
func (s *PostgresStore) RecordSuccess(ctx context.Context, id string, o Outcome) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE webhooks
		SET failure_count = 0, last_triggered_at = $2, updated_at = $2,
		    last_status = $3, last_status_code = $4, last_error = NULL
		WHERE id = $1`, id, o.At, string(DeliveryStatusSuccess), o.StatusCode)
	if err != nil {
		return fmt.Errorf("failed to record webhook success: %w", err)
	}
	return nil
}

// RecordFailure implements Store. The increment and the threshold check are
// one statement, so concurrent failures cannot skip past the threshold.
func (s *PostgresStore) RecordFailure(ctx context.Context, id string, threshold int, o Outcome) (bool, error) {
	query := `
		WITH prev AS (
			SELECT id, active FROM webhooks WHERE id = $1 FOR UPDATE
		)
		UPDATE webhooks w
		SET failure_count = w.failure_count + 1,
		    active = CASE WHEN w.failure_count + 1 >= $2 THEN FALSE ELSE w.active END,
		    last_triggered_at = $3,
		    updated_at = $3,
		    last_status = $4,
		    last_status_code = $5,
		    last_error = $6
		FROM prev
		WHERE w.id = prev.id
		RETURNING prev.active AND NOT w.active
	`
	var disabled bool
	err := s.db.QueryRowContext(ctx, query, id, threshold, o.At,
		string(DeliveryStatusFailed), o.StatusCode, nullable(o.Error)).Scan(&disabled)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to record webhook failure: %w", err)
	}
	return disabled, nil
}

// RecordThrottled implements Store
func (s *PostgresStore) RecordThrottled(ctx context.Context, id string, o Outcome) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE webhooks
		SET last_status = $2, last_status_code = $3, last_error = $4, updated_at = $5
		WHERE id = $1`, id, string(DeliveryStatusThrottled), o.StatusCode, nullable(o.Error), o.At)
	if err != nil {
		return fmt.Errorf("failed to record throttled webhook delivery: %w", err)
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
