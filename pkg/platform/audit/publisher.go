package audit

import (
	"context"
	"time"
)

// Store is the persistence surface for audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByDocument(ctx context.Context, documentID string) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

// Publisher captures structured audit events. It is append-only and uses the
// storage layer for persistence so tests can swap sinks easily.
type Publisher struct {
	store Store
}

func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store}
}

func (p *Publisher) Emit(ctx context.Context, base Event) error {
	if base.Timestamp.IsZero() {
		base.Timestamp = time.Now()
	}
	if base.Category == "" {
		base.Category = AuditEvent(base.Action).Category()
	}
	return p.store.Append(ctx, base)
}

func (p *Publisher) List(ctx context.Context, documentID string) ([]Event, error) {
	return p.store.ListByDocument(ctx, documentID)
}
