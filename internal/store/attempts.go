package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"lead-gateway/internal/models"
)

// AttemptResult describes the outcome recorded for one delivery attempt.
type AttemptResult struct {
	AttemptNo      int
	ResponseStatus *int
	ResponseBody   *string
	ErrorMessage   *string
	Success        bool
}

// RecordDeliveryOutcome writes the delivery attempt and the lead's new
// status in a single transaction, so the audit trail and the status the
// worker acts on next can never disagree (§4.H).
func (s *Store) RecordDeliveryOutcome(ctx context.Context, leadID int64, from, to string, result AttemptResult) error {
	if err := models.Transition(from, to); err != nil {
		return err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	_, err = tx.Exec(ctx, `
		INSERT INTO delivery_attempts (lead_id, attempt_no, requested_at, response_status, response_body, error_message, success, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $3)
	`, leadID, result.AttemptNo, now, result.ResponseStatus, result.ResponseBody, result.ErrorMessage, result.Success)
	if err != nil {
		return fmt.Errorf("insert delivery attempt: %w", err)
	}

	tag, err := tx.Exec(ctx, `UPDATE leads SET status = $2, updated_at = NOW() WHERE id = $1 AND status = $3`, leadID, to, from)
	if err != nil {
		return fmt.Errorf("update lead status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("lead %d was not in expected status %q", leadID, from)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// CountDeliveryAttempts returns how many delivery attempts exist for a lead.
// The processor recomputes the next attempt number from this count on every
// pass rather than trusting an in-memory counter (§9).
func (s *Store) CountDeliveryAttempts(ctx context.Context, leadID int64) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM delivery_attempts WHERE lead_id = $1`, leadID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count delivery attempts: %w", err)
	}
	return n, nil
}

// ListDeliveryAttempts returns the attempt history for a lead, ordered by
// attempt number.
func (s *Store) ListDeliveryAttempts(ctx context.Context, leadID int64) ([]models.DeliveryAttempt, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, lead_id, attempt_no, requested_at, response_status, response_body, error_message, success, created_at
		FROM delivery_attempts WHERE lead_id = $1 ORDER BY attempt_no ASC
	`, leadID)
	if err != nil {
		return nil, fmt.Errorf("query delivery attempts: %w", err)
	}
	defer rows.Close()

	var attempts []models.DeliveryAttempt
	for rows.Next() {
		var a models.DeliveryAttempt
		var status pgtype.Int4
		var body, errMsg pgtype.Text
		if err := rows.Scan(&a.ID, &a.LeadID, &a.AttemptNo, &a.RequestedAt, &status, &body, &errMsg, &a.Success, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan delivery attempt: %w", err)
		}
		if status.Valid {
			v := int(status.Int32)
			a.ResponseStatus = &v
		}
		if body.Valid {
			a.ResponseBody = &body.String
		}
		if errMsg.Valid {
			a.ErrorMessage = &errMsg.String
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
