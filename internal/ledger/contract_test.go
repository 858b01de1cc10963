package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "provenance/pkg/domain-errors"
)

type fakeState map[string]Record

func (s fakeState) Current(docID string) (Record, bool) {
	r, ok := s[docID]
	return r, ok
}

func proposal(docID, hash, verifier string) Proposal {
	return Proposal{
		DocID:      docID,
		DocHash:    hash,
		VerifiedBy: verifier,
		Timestamp:  time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
	}
}

func TestContractDecide(t *testing.T) {
	var contract Contract

	t.Run("first verification commits", func(t *testing.T) {
		decision, err := contract.Decide(fakeState{}, proposal("doc-1", "h1", "alice"))
		require.NoError(t, err)
		require.NotNil(t, decision.Write)
		assert.Equal(t, "h1", decision.Write.DocHash)
		assert.Equal(t, StatusVerified, decision.Write.Status)
	})

	t.Run("identical resubmission is absorbed", func(t *testing.T) {
		p := proposal("doc-1", "h1", "alice")
		state := fakeState{"doc-1": {
			DocID: "doc-1", DocHash: "h1", VerifiedBy: "alice",
			Timestamp: p.Timestamp, Status: StatusVerified,
		}}
		decision, err := contract.Decide(state, p)
		require.NoError(t, err)
		assert.Nil(t, decision.Write)
		assert.Equal(t, "h1", decision.Current.DocHash)
	})

	t.Run("later re-verification by the same verifier appends", func(t *testing.T) {
		p := proposal("doc-1", "h1", "alice")
		state := fakeState{"doc-1": {
			DocID: "doc-1", DocHash: "h1", VerifiedBy: "alice",
			Timestamp: p.Timestamp.Add(-time.Hour), Status: StatusVerified,
		}}
		decision, err := contract.Decide(state, p)
		require.NoError(t, err)
		require.NotNil(t, decision.Write, "a fresh attestation is not a duplicate delivery")
		assert.Equal(t, p.Timestamp, decision.Write.Timestamp)
	})

	t.Run("differing hash is refused and state kept", func(t *testing.T) {
		state := fakeState{"doc-1": {DocID: "doc-1", DocHash: "h1", VerifiedBy: "alice", Status: StatusVerified}}
		_, err := contract.Decide(state, proposal("doc-1", "h2", "bob"))
		require.Error(t, err)
		assert.True(t, dErrors.Is(err, dErrors.CodeHashMismatch))

		current, ok := state.Current("doc-1")
		require.True(t, ok)
		assert.Equal(t, "h1", current.DocHash)
		assert.Equal(t, "alice", current.VerifiedBy)
	})

	t.Run("same hash from second verifier appends", func(t *testing.T) {
		state := fakeState{"doc-1": {DocID: "doc-1", DocHash: "h1", VerifiedBy: "alice", Status: StatusVerified}}
		decision, err := contract.Decide(state, proposal("doc-1", "h1", "bob"))
		require.NoError(t, err)
		require.NotNil(t, decision.Write)
		assert.Equal(t, "bob", decision.Write.VerifiedBy)
	})

	t.Run("supersede consents to a new hash", func(t *testing.T) {
		state := fakeState{"doc-1": {DocID: "doc-1", DocHash: "h1", VerifiedBy: "alice", Status: StatusVerified}}
		p := proposal("doc-1", "h2", "bob")
		p.Supersede = true
		decision, err := contract.Decide(state, p)
		require.NoError(t, err)
		require.NotNil(t, decision.Write)
		assert.Equal(t, "h2", decision.Write.DocHash)
	})

	t.Run("rejects incomplete proposals", func(t *testing.T) {
		cases := map[string]Proposal{
			"blank doc id":   proposal("  ", "h1", "alice"),
			"blank hash":     proposal("doc-1", "", "alice"),
			"blank verifier": proposal("doc-1", "h1", "\t"),
			"zero timestamp": {DocID: "doc-1", DocHash: "h1", VerifiedBy: "alice"},
		}
		for name, p := range cases {
			_, err := contract.Decide(fakeState{}, p)
			require.Error(t, err, name)
			assert.True(t, dErrors.Is(err, dErrors.CodeValidation), name)
		}
	})
}
