package ledger

import (
	"context"
	"errors"
	"sync/atomic"

	dErrors "provenance/pkg/domain-errors"
	"provenance/pkg/platform/sentinel"
)

// Client is what the rest of the system talks to the ledger through. Submit
// carries write proposals, Status and History are read-only evaluations.
type Client interface {
	Submit(ctx context.Context, p Proposal) (Version, error)
	Status(ctx context.Context, docID string) (Record, error)
	History(ctx context.Context, docID string) (*HistoryCursor, error)
}

// Gateway is the in-process Client. It fronts a Channel with an explicit
// connection lifecycle: every call on a closed gateway fails with a
// connectivity error so callers exercise the same retry paths a remote
// ledger would force on them.
type Gateway struct {
	channel   *Channel
	connected atomic.Bool
}

// Connect opens a gateway against a channel.
func Connect(channel *Channel) (*Gateway, error) {
	if channel == nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "no ledger channel to connect to")
	}
	g := &Gateway{channel: channel}
	g.connected.Store(true)
	return g, nil
}

// Close disconnects the gateway. The underlying channel keeps running; other
// gateways are unaffected.
func (g *Gateway) Close() error {
	g.connected.Store(false)
	return nil
}

func (g *Gateway) Submit(ctx context.Context, p Proposal) (Version, error) {
	if !g.connected.Load() {
		return Version{}, errDisconnected()
	}
	version, err := g.channel.Submit(ctx, p)
	if err != nil {
		return Version{}, translateChannelErr(err, "submit verification")
	}
	return version, nil
}

func (g *Gateway) Status(ctx context.Context, docID string) (Record, error) {
	if !g.connected.Load() {
		return Record{}, errDisconnected()
	}
	record, err := g.channel.Status(ctx, docID)
	if err != nil {
		return Record{}, translateChannelErr(err, "read document status")
	}
	return record, nil
}

func (g *Gateway) History(ctx context.Context, docID string) (*HistoryCursor, error) {
	if !g.connected.Load() {
		return nil, errDisconnected()
	}
	cursor, err := g.channel.History(ctx, docID)
	if err != nil {
		return nil, translateChannelErr(err, "read verification history")
	}
	return cursor, nil
}

func errDisconnected() error {
	return dErrors.New(dErrors.CodeUnavailable, "ledger gateway is not connected")
}

func translateChannelErr(err error, op string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, op+": document not on ledger")
	case errors.Is(err, sentinel.ErrClosed):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, op+": ledger channel closed")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		// The proposal may have been ordered after we stopped waiting.
		return dErrors.Wrap(err, dErrors.CodeUnknownOutcome, op+": gave up waiting for commit")
	default:
		return err
	}
}
