package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"provenance/internal/document/models"
	"provenance/pkg/platform/sentinel"
)

// PostgresRecordStore persists document records in PostgreSQL. The conditional
// write is a row lock plus status check inside one transaction, so exactly one
// concurrent claimant can win.
type PostgresRecordStore struct {
	pool *pgxpool.Pool
}

func NewPostgresRecordStore(pool *pgxpool.Pool) *PostgresRecordStore {
	return &PostgresRecordStore{pool: pool}
}

const recordColumns = `
	id, content_ref, declared_type, metadata, uploader_id, created_at,
	status, rejection_reason, reviewer_id, review_started_at, last_updated_at, proof
`

func (s *PostgresRecordStore) Create(ctx context.Context, record models.DocumentRecord) error {
	metadata, proof, err := encodeRecord(record)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO document_records (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		record.ID, record.ContentRef, record.DeclaredType, metadata,
		record.UploaderID, record.CreatedAt, string(record.Status),
		nullable(record.RejectionReason), nullable(record.ReviewerID),
		record.ReviewStartedAt, record.LastUpdatedAt, proof,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrAlreadyExists
		}
		return fmt.Errorf("insert document record: %w", err)
	}
	return nil
}

func (s *PostgresRecordStore) Get(ctx context.Context, id string) (models.DocumentRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM document_records WHERE id = $1
	`, id)
	return scanRecord(row)
}

func (s *PostgresRecordStore) ListByStatus(ctx context.Context, statuses ...models.Status) ([]models.DocumentRecord, error) {
	raw := make([]string, 0, len(statuses))
	for _, st := range statuses {
		raw = append(raw, string(st))
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+recordColumns+`
		FROM document_records
		WHERE cardinality($1::text[]) = 0 OR status = ANY($1)
		ORDER BY created_at
	`, raw)
	if err != nil {
		return nil, fmt.Errorf("list document records: %w", err)
	}
	defer rows.Close()

	var out []models.DocumentRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document records: %w", err)
	}
	return out, nil
}

func (s *PostgresRecordStore) UpdateIfStatus(ctx context.Context, id string, expected models.Status, apply func(*models.DocumentRecord) error) (models.DocumentRecord, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.DocumentRecord{}, fmt.Errorf("begin update tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	row := tx.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM document_records WHERE id = $1
		FOR UPDATE
	`, id)
	record, err := scanRecord(row)
	if err != nil {
		return models.DocumentRecord{}, err
	}
	if record.Status != expected {
		return models.DocumentRecord{}, sentinel.ErrConflict
	}

	if err := apply(&record); err != nil {
		return models.DocumentRecord{}, err
	}

	metadata, proof, err := encodeRecord(record)
	if err != nil {
		return models.DocumentRecord{}, err
	}
	_, err = tx.Exec(ctx, `
		UPDATE document_records
		SET declared_type = $2, metadata = $3, status = $4, rejection_reason = $5,
		    reviewer_id = $6, review_started_at = $7, last_updated_at = $8, proof = $9
		WHERE id = $1
	`,
		record.ID, record.DeclaredType, metadata, string(record.Status),
		nullable(record.RejectionReason), nullable(record.ReviewerID),
		record.ReviewStartedAt, record.LastUpdatedAt, proof,
	)
	if err != nil {
		return models.DocumentRecord{}, fmt.Errorf("update document record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.DocumentRecord{}, fmt.Errorf("commit update tx: %w", err)
	}
	return record, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (models.DocumentRecord, error) {
	var (
		record          models.DocumentRecord
		status          string
		metadata        []byte
		proof           []byte
		rejectionReason *string
		reviewerID      *string
		reviewStartedAt *time.Time
	)
	err := row.Scan(
		&record.ID, &record.ContentRef, &record.DeclaredType, &metadata,
		&record.UploaderID, &record.CreatedAt, &status,
		&rejectionReason, &reviewerID, &reviewStartedAt,
		&record.LastUpdatedAt, &proof,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.DocumentRecord{}, sentinel.ErrNotFound
		}
		return models.DocumentRecord{}, fmt.Errorf("scan document record: %w", err)
	}

	parsed, err := models.ParseStatus(status)
	if err != nil {
		return models.DocumentRecord{}, err
	}
	record.Status = parsed
	record.ReviewStartedAt = reviewStartedAt
	if rejectionReason != nil {
		record.RejectionReason = *rejectionReason
	}
	if reviewerID != nil {
		record.ReviewerID = *reviewerID
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &record.Metadata); err != nil {
			return models.DocumentRecord{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	if len(proof) > 0 {
		record.VerificationProof = &models.VerificationProof{}
		if err := json.Unmarshal(proof, record.VerificationProof); err != nil {
			return models.DocumentRecord{}, fmt.Errorf("decode proof: %w", err)
		}
	}
	return record, nil
}

func encodeRecord(record models.DocumentRecord) (metadata, proof []byte, err error) {
	if record.Metadata != nil {
		metadata, err = json.Marshal(record.Metadata)
		if err != nil {
			return nil, nil, fmt.Errorf("encode metadata: %w", err)
		}
	}
	if record.VerificationProof != nil {
		proof, err = json.Marshal(record.VerificationProof)
		if err != nil {
			return nil, nil, fmt.Errorf("encode proof: %w", err)
		}
	}
	return metadata, proof, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// PostgresLogStore appends status transitions to an append-only table.
type PostgresLogStore struct {
	pool *pgxpool.Pool
}

func NewPostgresLogStore(pool *pgxpool.Pool) *PostgresLogStore {
	return &PostgresLogStore{pool: pool}
}

func (s *PostgresLogStore) Append(ctx context.Context, entry models.StatusLogEntry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO status_log (document_id, previous_status, new_status, reason, changed_by, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		entry.DocumentID, string(entry.PreviousStatus), string(entry.NewStatus),
		nullable(entry.Reason), entry.ChangedBy, entry.ChangedAt,
	)
	if err != nil {
		return fmt.Errorf("insert status log entry: %w", err)
	}
	return nil
}

func (s *PostgresLogStore) ListByDocument(ctx context.Context, documentID string) ([]models.StatusLogEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT document_id, previous_status, new_status, reason, changed_by, changed_at
		FROM status_log
		WHERE document_id = $1
		ORDER BY changed_at, id
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("query status log: %w", err)
	}
	defer rows.Close()

	var out []models.StatusLogEntry
	for rows.Next() {
		var (
			entry    models.StatusLogEntry
			previous string
			next     string
			reason   *string
		)
		if err := rows.Scan(&entry.DocumentID, &previous, &next, &reason, &entry.ChangedBy, &entry.ChangedAt); err != nil {
			return nil, fmt.Errorf("scan status log entry: %w", err)
		}
		entry.PreviousStatus = models.Status(previous)
		entry.NewStatus = models.Status(next)
		if reason != nil {
			entry.Reason = *reason
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status log: %w", err)
	}
	return out, nil
}
