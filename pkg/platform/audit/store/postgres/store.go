package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	audit "provenance/pkg/platform/audit"
)

// Store persists audit events in PostgreSQL through database/sql, so it works
// with any registered driver (lib/pq in production wiring).
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append inserts an audit event. The generated event ID makes replays from a
// downstream mirror idempotent via ON CONFLICT DO NOTHING.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	category := event.Category
	if category == "" {
		category = audit.AuditEvent(event.Action).Category()
	}

	query := `
		INSERT INTO audit_events (
			id, category, timestamp, document_id, actor, action,
			decision, reason, tx_id, request_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.New(),
		string(category),
		event.Timestamp,
		event.DocumentID,
		event.Actor,
		event.Action,
		event.Decision,
		event.Reason,
		event.TxID,
		event.RequestID,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *Store) ListByDocument(ctx context.Context, documentID string) ([]audit.Event, error) {
	query := `
		SELECT category, timestamp, document_id, actor, action,
		       decision, reason, tx_id, request_id
		FROM audit_events
		WHERE document_id = $1
		ORDER BY timestamp
	`
	rows, err := s.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return s.scanEvents(rows)
}

// ListRecent returns the N most recent events.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	query := `
		SELECT category, timestamp, document_id, actor, action,
		       decision, reason, tx_id, request_id
		FROM audit_events
		ORDER BY timestamp DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return s.scanEvents(rows)
}

func (s *Store) scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event
	for rows.Next() {
		var (
			event    audit.Event
			category string
		)
		err := rows.Scan(
			&category,
			&event.Timestamp,
			&event.DocumentID,
			&event.Actor,
			&event.Action,
			&event.Decision,
			&event.Reason,
			&event.TxID,
			&event.RequestID,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Category = audit.EventCategory(category)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
