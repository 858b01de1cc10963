package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "provenance/pkg/domain-errors"
)

func TestGateway(t *testing.T) {
	channel := NewChannel()
	defer channel.Close()
	ctx := context.Background()

	t.Run("connect requires a channel", func(t *testing.T) {
		_, err := Connect(nil)
		require.Error(t, err)
		assert.True(t, dErrors.Is(err, dErrors.CodeUnavailable))
	})

	t.Run("round trip through a connected gateway", func(t *testing.T) {
		gateway, err := Connect(channel)
		require.NoError(t, err)
		defer gateway.Close()

		version, err := gateway.Submit(ctx, Proposal{
			DocID: "doc-1", DocHash: "h1", VerifiedBy: "alice", Timestamp: time.Now().UTC(),
		})
		require.NoError(t, err)
		assert.NotEmpty(t, version.TxID)

		record, err := gateway.Status(ctx, "doc-1")
		require.NoError(t, err)
		assert.Equal(t, "h1", record.DocHash)

		cursor, err := gateway.History(ctx, "doc-1")
		require.NoError(t, err)
		assert.Len(t, cursor.Collect(), 1)
	})

	t.Run("status of unknown document maps to not found", func(t *testing.T) {
		gateway, err := Connect(channel)
		require.NoError(t, err)
		defer gateway.Close()

		_, err = gateway.Status(ctx, "nope")
		require.Error(t, err)
		assert.True(t, dErrors.Is(err, dErrors.CodeNotFound))
	})

	t.Run("closed gateway refuses every call", func(t *testing.T) {
		gateway, err := Connect(channel)
		require.NoError(t, err)
		require.NoError(t, gateway.Close())

		_, err = gateway.Submit(ctx, Proposal{DocID: "doc-1"})
		assert.True(t, dErrors.Is(err, dErrors.CodeUnavailable))
		_, err = gateway.Status(ctx, "doc-1")
		assert.True(t, dErrors.Is(err, dErrors.CodeUnavailable))
		_, err = gateway.History(ctx, "doc-1")
		assert.True(t, dErrors.Is(err, dErrors.CodeUnavailable))
	})

	t.Run("caller timeout surfaces as unknown outcome", func(t *testing.T) {
		slow := NewChannel(WithOrderingDelay(50 * time.Millisecond))
		defer slow.Close()

		gateway, err := Connect(slow)
		require.NoError(t, err)
		defer gateway.Close()

		timeoutCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		_, err = gateway.Submit(timeoutCtx, Proposal{
			DocID: "doc-2", DocHash: "h1", VerifiedBy: "alice", Timestamp: time.Now().UTC(),
		})
		require.Error(t, err)
		assert.True(t, dErrors.Is(err, dErrors.CodeUnknownOutcome))
	})
}
