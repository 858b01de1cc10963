// Package ledger holds the verification ledger: an append-only, key-versioned
// store whose writes are linearized by an ordering loop, the contract logic
// that controls which writes are permitted, and the client abstraction the
// rest of the system submits through.
//
// The ledger only ever records positive verification events. Rejection is an
// off-chain concept; there is no rejected state here.
package ledger

import (
	"time"
)

// StatusVerified is the only on-ledger status. New writes append versions; the
// externally visible current status stays VERIFIED.
const StatusVerified = "VERIFIED"

// Record is the current value held for a document key.
type Record struct {
	DocID      string    `json:"docId"`
	DocHash    string    `json:"docHash"`
	VerifiedBy string    `json:"verifiedBy"`
	Timestamp  time.Time `json:"timestamp"`
	Comments   string    `json:"comments,omitempty"`
	Status     string    `json:"status"`
}

// Version is one committed entry in a key's history. CommitIndex is assigned
// by the ordering loop and is strictly increasing across the whole channel, so
// per-key history order is also commit order.
type Version struct {
	TxID        string    `json:"transactionId"`
	CommitIndex uint64    `json:"commitIndex"`
	CommittedAt time.Time `json:"committedAt"`
	Record      Record    `json:"record"`
}

// Proposal is a verification submission before ordering. Supersede is the
// explicit administrative overwrite consent; without it a differing committed
// hash is a contradiction, not something to replace quietly.
type Proposal struct {
	DocID      string
	DocHash    string
	VerifiedBy string
	Timestamp  time.Time
	Comments   string
	Supersede  bool
}
