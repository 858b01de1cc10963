package audit

import "context"

// Queue decouples event capture from persistence: Append hands the event to a
// buffered channel that a worker drains into the real store. Reads go straight
// to the underlying store, so recently queued events may not be visible yet.
type Queue struct {
	next  Store
	inbox chan Event
}

func NewQueue(next Store, size int) *Queue {
	return &Queue{next: next, inbox: make(chan Event, size)}
}

func (q *Queue) Append(ctx context.Context, event Event) error {
	select {
	case q.inbox <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) ListByDocument(ctx context.Context, documentID string) ([]Event, error) {
	return q.next.ListByDocument(ctx, documentID)
}

func (q *Queue) ListRecent(ctx context.Context, limit int) ([]Event, error) {
	return q.next.ListRecent(ctx, limit)
}

// Inbox is the channel a worker consumes from.
func (q *Queue) Inbox() <-chan Event {
	return q.inbox
}
