package worker

import (
	"context"
	"log/slog"

	audit "provenance/pkg/platform/audit"
)

// Worker drains queued audit events into the store. A failed append is logged
// and dropped rather than stopping the drain: a stalled worker would back the
// queue up until every Emit blocks on a full channel.
type Worker struct {
	store  audit.Store
	inbox  <-chan audit.Event
	logger *slog.Logger
}

func NewWorker(store audit.Store, inbox <-chan audit.Event, logger *slog.Logger) *Worker {
	return &Worker{store: store, inbox: inbox, logger: logger}
}

// Run consumes until the context is cancelled. Only cancellation ends it.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.store.Append(ctx, event); err != nil {
				w.logger.ErrorContext(ctx, "audit event dropped",
					"action", event.Action,
					"document_id", event.DocumentID,
					"error", err)
			}
		}
	}
}
