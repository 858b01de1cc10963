package store

import (
	"context"

	"provenance/internal/document/models"
)

// Stores are interface-driven so the review state machine and reconciler stay
// testable against in-memory implementations while production runs postgres.

// RecordStore owns DocumentRecord persistence. Every mutation is a single-key
// conditional write: UpdateIfStatus succeeds only if the stored status still
// matches the expected one at write time, which is what makes claim races safe
// without multi-record transactions.
type RecordStore interface {
	Create(ctx context.Context, record models.DocumentRecord) error
	Get(ctx context.Context, id string) (models.DocumentRecord, error)

	// ListByStatus returns records currently in any of the given statuses,
	// oldest first. Used by the reconciliation sweep.
	ListByStatus(ctx context.Context, statuses ...models.Status) ([]models.DocumentRecord, error)

	// UpdateIfStatus applies the mutation atomically iff the stored status
	// equals expected. Returns sentinel.ErrNotFound for a missing record and
	// sentinel.ErrConflict when the condition no longer holds.
	UpdateIfStatus(ctx context.Context, id string, expected models.Status, apply func(*models.DocumentRecord) error) (models.DocumentRecord, error)
}

// LogStore owns the append-only status transition trail. Entries are written
// once and never mutated or deleted.
type LogStore interface {
	Append(ctx context.Context, entry models.StatusLogEntry) error
	ListByDocument(ctx context.Context, documentID string) ([]models.StatusLogEntry, error)
}
