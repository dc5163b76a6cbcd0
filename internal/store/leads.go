package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"lead-gateway/internal/models"
)

// CreateLead inserts a freshly received lead in RECEIVED status.
func (s *Store) CreateLead(ctx context.Context, raw map[string]any, headers map[string]string) (models.Lead, error) {
	rawJSON, err := json.Marshal(raw)
	if err != nil {
		return models.Lead{}, fmt.Errorf("marshal raw payload: %w", err)
	}
	headersJSON, err := json.Marshal(headers)
	if err != nil {
		return models.Lead{}, fmt.Errorf("marshal headers: %w", err)
	}

	now := time.Now().UTC()
	var id int64
	err = s.pool.QueryRow(ctx, `
		INSERT INTO leads (received_at, raw_payload, source_headers, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $1, $1)
		RETURNING id
	`, now, rawJSON, headersJSON, models.StatusReceived).Scan(&id)
	if err != nil {
		return models.Lead{}, fmt.Errorf("insert lead: %w", err)
	}

	return models.Lead{
		ID:            id,
		ReceivedAt:    now,
		RawPayload:    raw,
		SourceHeaders: headers,
		Status:        models.StatusReceived,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// GetLead fetches a lead by id.
func (s *Store) GetLead(ctx context.Context, id int64) (models.Lead, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, received_at, raw_payload, source_headers, status, rejection_reason,
		       normalized_payload, customer_payload, created_at, updated_at
		FROM leads WHERE id = $1
	`, id)
	return scanLead(row)
}

func scanLead(row pgx.Row) (models.Lead, error) {
	var lead models.Lead
	var rawJSON, headersJSON []byte
	var normalizedJSON, customerJSON []byte
	var rejection pgtype.Text

	err := row.Scan(&lead.ID, &lead.ReceivedAt, &rawJSON, &headersJSON, &lead.Status, &rejection,
		&normalizedJSON, &customerJSON, &lead.CreatedAt, &lead.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Lead{}, fmt.Errorf("lead not found: %w", err)
		}
		return models.Lead{}, fmt.Errorf("scan lead: %w", err)
	}

	if err := json.Unmarshal(rawJSON, &lead.RawPayload); err != nil {
		return models.Lead{}, fmt.Errorf("unmarshal raw payload: %w", err)
	}
	if err := json.Unmarshal(headersJSON, &lead.SourceHeaders); err != nil {
		return models.Lead{}, fmt.Errorf("unmarshal source headers: %w", err)
	}
	if rejection.Valid {
		lead.RejectionReason = &rejection.String
	}
	if normalizedJSON != nil {
		if err := json.Unmarshal(normalizedJSON, &lead.NormalizedPayload); err != nil {
			return models.Lead{}, fmt.Errorf("unmarshal normalized payload: %w", err)
		}
	}
	if customerJSON != nil {
		if err := json.Unmarshal(customerJSON, &lead.CustomerPayload); err != nil {
			return models.Lead{}, fmt.Errorf("unmarshal customer payload: %w", err)
		}
	}
	return lead, nil
}

// RejectLead transitions RECEIVED -> REJECTED, recording the rejection code.
func (s *Store) RejectLead(ctx context.Context, id int64, code string) error {
	if err := models.Transition(models.StatusReceived, models.StatusRejected); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE leads SET status = $2, rejection_reason = $3, updated_at = NOW() WHERE id = $1
	`, id, models.StatusRejected, code)
	return err
}

// MarkMappingFailed transitions RECEIVED -> PERMANENTLY_FAILED when the
// mapper rejects a lead outright (a required attribute is missing or
// invalid). The normalized payload is stored for diagnostics even though
// the lead never reaches READY.
func (s *Store) MarkMappingFailed(ctx context.Context, id int64, normalized map[string]any) error {
	if err := models.Transition(models.StatusReceived, models.StatusPermanentlyFailed); err != nil {
		return err
	}
	normalizedJSON, err := json.Marshal(normalized)
	if err != nil {
		return fmt.Errorf("marshal normalized payload: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE leads SET status = $2, normalized_payload = $3, updated_at = NOW() WHERE id = $1
	`, id, models.StatusPermanentlyFailed, normalizedJSON)
	return err
}

// MarkReady transitions RECEIVED -> READY, storing the normalized and mapped
// payloads produced before the lead is handed to the delivery worker.
func (s *Store) MarkReady(ctx context.Context, id int64, normalized, customerPayload map[string]any) error {
	if err := models.Transition(models.StatusReceived, models.StatusReady); err != nil {
		return err
	}
	normalizedJSON, err := json.Marshal(normalized)
	if err != nil {
		return fmt.Errorf("marshal normalized payload: %w", err)
	}
	customerJSON, err := json.Marshal(customerPayload)
	if err != nil {
		return fmt.Errorf("marshal customer payload: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE leads SET status = $2, normalized_payload = $3, customer_payload = $4, updated_at = NOW()
		WHERE id = $1
	`, id, models.StatusReady, normalizedJSON, customerJSON)
	return err
}

// ListRecentLeads returns the most recently received leads, optionally
// filtered by status, newest first.
func (s *Store) ListRecentLeads(ctx context.Context, status string, limit int) ([]models.Lead, error) {
	var rows pgx.Rows
	var err error
	if status != "" {
		rows, err = s.pool.Query(ctx, `
			SELECT id, received_at, raw_payload, source_headers, status, rejection_reason,
			       normalized_payload, customer_payload, created_at, updated_at
			FROM leads WHERE status = $1 ORDER BY received_at DESC LIMIT $2
		`, status, limit)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT id, received_at, raw_payload, source_headers, status, rejection_reason,
			       normalized_payload, customer_payload, created_at, updated_at
			FROM leads ORDER BY received_at DESC LIMIT $1
		`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query leads: %w", err)
	}
	defer rows.Close()

	var leads []models.Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}
	return leads, rows.Err()
}

// MarkDeliveryExhausted transitions a lead straight to PERMANENTLY_FAILED
// without recording a new delivery attempt, for the case where the attempt
// budget was already spent before this job was even picked up.
func (s *Store) MarkDeliveryExhausted(ctx context.Context, id int64, from string) error {
	if err := models.Transition(from, models.StatusPermanentlyFailed); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE leads SET status = $2, updated_at = NOW() WHERE id = $1 AND status = $3
	`, id, models.StatusPermanentlyFailed, from)
	if err != nil {
		return fmt.Errorf("mark delivery exhausted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("lead %d was not in expected status %q", id, from)
	}
	return nil
}

// FindOrphanLeads returns RECEIVED leads older than grace with no job row
// referencing them, resolving the "ingest-time queue failure" open question
// from §9: the enqueue can fail after the lead row commits, leaving it
// stranded. The sweeper re-enqueues whatever this returns.
func (s *Store) FindOrphanLeads(ctx context.Context, grace time.Duration, limit int) ([]models.Lead, error) {
	cutoff := time.Now().UTC().Add(-grace)
	rows, err := s.pool.Query(ctx, `
		SELECT l.id, l.received_at, l.raw_payload, l.source_headers, l.status, l.rejection_reason,
		       l.normalized_payload, l.customer_payload, l.created_at, l.updated_at
		FROM leads l
		WHERE l.status = $1 AND l.received_at < $2
		  AND NOT EXISTS (
		      SELECT 1 FROM jobs j WHERE (j.payload ->> 'lead_id')::bigint = l.id
		  )
		ORDER BY l.received_at ASC
		LIMIT $3
	`, models.StatusReceived, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("query orphan leads: %w", err)
	}
	defer rows.Close()

	var leads []models.Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}
	return leads, rows.Err()
}

// CountLeadsByStatus returns the number of leads in each status, used by
// the stats endpoint.
func (s *Store) CountLeadsByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM leads GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count leads by status: %w", err)
	}
	defer rows.Close()

	counts := map[string]int64{}
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}
