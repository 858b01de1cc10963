package ledger

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"provenance/pkg/platform/sentinel"
)

// Channel is the in-process verification ledger. A single ordering goroutine
// drains submissions one at a time, runs the contract against committed state
// and appends the resulting version, so all writes are linearized without the
// callers coordinating.
//
// Submit decouples delivery from the caller's wait: once a proposal is
// accepted into the ordering queue it will be decided even if the caller's
// context expires first. That is what makes a caller-side timeout an unknown
// outcome rather than a guaranteed failure.
type Channel struct {
	contract Contract

	mu      sync.RWMutex
	history map[string][]Version

	submissions chan submission
	done        chan struct{}
	closeOnce   sync.Once

	commitIndex uint64
	openCursors atomic.Int64

	// orderingDelay holds each submission inside the ordering loop, used by
	// tests to force caller timeouts on in-flight proposals.
	orderingDelay time.Duration
}

type submission struct {
	proposal Proposal
	result   chan submitResult
}

type submitResult struct {
	version Version
	err     error
}

// ChannelOption configures a Channel at construction.
type ChannelOption func(*Channel)

// WithOrderingDelay makes every submission dwell in the ordering loop before
// it is decided.
func WithOrderingDelay(d time.Duration) ChannelOption {
	return func(ch *Channel) { ch.orderingDelay = d }
}

func NewChannel(opts ...ChannelOption) *Channel {
	ch := &Channel{
		history:     make(map[string][]Version),
		submissions: make(chan submission),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ch)
	}
	go ch.order()
	return ch
}

// Close stops the ordering loop. In-flight submissions already handed to the
// loop are decided before it exits; later Submit calls fail with ErrClosed.
func (ch *Channel) Close() {
	ch.closeOnce.Do(func() { close(ch.done) })
}

// Submit hands a proposal to the ordering loop and waits for its verdict. If
// ctx expires after the proposal was accepted for ordering the returned error
// wraps the context error and the proposal may still commit; callers must
// treat that as an unknown outcome, not a failure.
func (ch *Channel) Submit(ctx context.Context, p Proposal) (Version, error) {
	sub := submission{proposal: p, result: make(chan submitResult, 1)}

	select {
	case ch.submissions <- sub:
	case <-ch.done:
		return Version{}, sentinel.ErrClosed
	case <-ctx.Done():
		return Version{}, ctx.Err()
	}

	select {
	case res := <-sub.result:
		return res.version, res.err
	case <-ctx.Done():
		return Version{}, ctx.Err()
	}
}

// Status returns the committed current value for a document key.
func (ch *Channel) Status(_ context.Context, docID string) (Record, error) {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	versions := ch.history[docID]
	if len(versions) == 0 {
		return Record{}, sentinel.ErrNotFound
	}
	return versions[len(versions)-1].Record, nil
}

// History opens a cursor over the committed versions of a key, oldest first.
// The cursor reads a snapshot: versions committed after the cursor opens are
// not observed. Callers must Close it.
func (ch *Channel) History(_ context.Context, docID string) (*HistoryCursor, error) {
	ch.mu.RLock()
	versions := ch.history[docID]
	snapshot := make([]Version, len(versions))
	copy(snapshot, versions)
	ch.mu.RUnlock()

	if len(snapshot) == 0 {
		return nil, sentinel.ErrNotFound
	}

	ch.openCursors.Add(1)
	return &HistoryCursor{
		versions: snapshot,
		release:  func() { ch.openCursors.Add(-1) },
	}, nil
}

// OpenCursors reports cursors opened via History and not yet closed.
func (ch *Channel) OpenCursors() int64 {
	return ch.openCursors.Load()
}

func (ch *Channel) order() {
	for {
		select {
		case <-ch.done:
			return
		case sub := <-ch.submissions:
			if ch.orderingDelay > 0 {
				time.Sleep(ch.orderingDelay)
			}
			version, err := ch.commit(sub.proposal)
			sub.result <- submitResult{version: version, err: err}
		}
	}
}

// commit runs on the ordering goroutine only.
func (ch *Channel) commit(p Proposal) (Version, error) {
	decision, err := ch.contract.Decide(channelState{ch: ch}, p)
	if err != nil {
		return Version{}, err
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()

	if decision.Write == nil {
		// Absorbed duplicate: return the version already holding the value.
		versions := ch.history[p.DocID]
		return versions[len(versions)-1], nil
	}

	ch.commitIndex++
	version := Version{
		TxID:        uuid.NewString(),
		CommitIndex: ch.commitIndex,
		CommittedAt: time.Now().UTC(),
		Record:      *decision.Write,
	}
	ch.history[p.DocID] = append(ch.history[p.DocID], version)
	return version, nil
}

// channelState adapts the channel's committed history to the contract's view.
type channelState struct {
	ch *Channel
}

func (s channelState) Current(docID string) (Record, bool) {
	s.ch.mu.RLock()
	defer s.ch.mu.RUnlock()
	versions := s.ch.history[docID]
	if len(versions) == 0 {
		return Record{}, false
	}
	return versions[len(versions)-1].Record, true
}
