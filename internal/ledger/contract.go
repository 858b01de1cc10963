package ledger

import (
	"strings"

	dErrors "provenance/pkg/domain-errors"
)

// StateReader is the committed-state view the contract consults while
// deciding a proposal. The ordering loop passes its own store in; tests can
// pass a map-backed fake.
type StateReader interface {
	Current(docID string) (Record, bool)
}

// Contract is the verification decision logic. It is pure: given committed
// state and a proposal it decides whether a new record is written, the
// proposal is absorbed as a no-op, or the submission is refused.
type Contract struct{}

// Decision is the contract's verdict on a proposal.
type Decision struct {
	// Write is the record to commit, nil when the proposal is absorbed
	// without a state change.
	Write *Record
	// Current is the value for the key after the decision is applied.
	Current Record
}

// Decide validates a proposal against committed state.
//
// First write for a key commits. An identical resubmission (same hash,
// verifier, and timestamp) is absorbed: no new version, the committed value
// is returned unchanged. A differing hash without supersede consent is
// refused, leaving the committed value untouched.
func (Contract) Decide(state StateReader, p Proposal) (Decision, error) {
	if err := validateProposal(p); err != nil {
		return Decision{}, err
	}

	record := Record{
		DocID:      p.DocID,
		DocHash:    p.DocHash,
		VerifiedBy: p.VerifiedBy,
		Timestamp:  p.Timestamp.UTC(),
		Comments:   p.Comments,
		Status:     StatusVerified,
	}

	current, exists := state.Current(p.DocID)
	if !exists {
		return Decision{Write: &record, Current: record}, nil
	}

	if current.DocHash == p.DocHash && current.VerifiedBy == p.VerifiedBy &&
		current.Timestamp.Equal(p.Timestamp.UTC()) {
		// Duplicate delivery of the same verification. Absorb it so
		// retries cannot inflate history. A later re-verification by the
		// same reviewer carries a new timestamp and appends normally.
		return Decision{Current: current}, nil
	}

	if current.DocHash != p.DocHash && !p.Supersede {
		return Decision{}, dErrors.New(dErrors.CodeHashMismatch,
			"document already verified with a different fingerprint")
	}

	// Same hash from a different verifier, or an explicit supersede:
	// both append a fresh version.
	return Decision{Write: &record, Current: record}, nil
}

func validateProposal(p Proposal) error {
	switch {
	case strings.TrimSpace(p.DocID) == "":
		return dErrors.New(dErrors.CodeValidation, "document id is required")
	case strings.TrimSpace(p.DocHash) == "":
		return dErrors.New(dErrors.CodeValidation, "document hash is required")
	case strings.TrimSpace(p.VerifiedBy) == "":
		return dErrors.New(dErrors.CodeValidation, "verifier identity is required")
	case p.Timestamp.IsZero():
		return dErrors.New(dErrors.CodeValidation, "verification timestamp is required")
	}
	return nil
}
