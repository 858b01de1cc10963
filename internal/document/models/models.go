package models

import (
	"time"

	dErrors "provenance/pkg/domain-errors"
)

// Status is the closed set of off-chain review states. Unknown values are
// rejected at the boundary by ParseStatus instead of defaulting silently.
type Status string

const (
	StatusPending     Status = "pending"
	StatusUnderReview Status = "under_review"
	StatusVerified    Status = "verified"
	StatusRejected    Status = "rejected"
)

// ParseStatus validates a raw status value coming from storage or transport.
func ParseStatus(raw string) (Status, error) {
	switch Status(raw) {
	case StatusPending, StatusUnderReview, StatusVerified, StatusRejected:
		return Status(raw), nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "unknown document status: "+raw)
}

// Terminal reports whether the reviewer flow has no further transition out of
// this status. Reopening is an administrative action, not a reviewer one.
func (s Status) Terminal() bool {
	return s == StatusVerified || s == StatusRejected
}

// VerificationProof is the immutable evidence that a specific document content
// was verified. It is only ever built from a confirmed ledger commit — never
// fabricated off-chain.
type VerificationProof struct {
	TransactionID string    `json:"transactionId"`
	DocHash       string    `json:"docHash"`
	VerifiedBy    string    `json:"verifiedBy"`
	Timestamp     time.Time `json:"timestamp"`
	Comments      string    `json:"comments,omitempty"`
}

// DocumentRecord is the mutable off-chain review record. It is owned by the
// record store and mutated only through the review state machine's conditional
// writes.
type DocumentRecord struct {
	ID           string            `json:"id"`
	ContentRef   string            `json:"contentRef"`
	DeclaredType string            `json:"declaredType"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	UploaderID   string            `json:"uploaderId"`
	CreatedAt    time.Time         `json:"createdAt"`

	Status          Status     `json:"status"`
	RejectionReason string     `json:"rejectionReason,omitempty"` // present iff rejected
	ReviewerID      string     `json:"reviewerId,omitempty"`
	ReviewStartedAt *time.Time `json:"reviewStartedAt,omitempty"`
	LastUpdatedAt   time.Time  `json:"lastUpdatedAt"`

	// VerificationProof is set only after a successful ledger commit and is
	// immutable once attached.
	VerificationProof *VerificationProof `json:"verificationProof,omitempty"`
}

// HashInput returns the metadata that participates in the fingerprint. The
// declared type is always part of it so a post-verification type change is
// detectable.
func (r DocumentRecord) HashInput() map[string]string {
	md := make(map[string]string, len(r.Metadata)+1)
	for k, v := range r.Metadata {
		md[k] = v
	}
	md["declaredType"] = r.DeclaredType
	return md
}

// StatusLogEntry is one append-only audit record per status transition. Written
// once, never mutated or deleted; the trail is independent of the ledger.
type StatusLogEntry struct {
	DocumentID     string    `json:"documentId"`
	PreviousStatus Status    `json:"previousStatus"`
	NewStatus      Status    `json:"newStatus"`
	Reason         string    `json:"reason,omitempty"`
	ChangedBy      string    `json:"changedBy"`
	ChangedAt      time.Time `json:"changedAt"`
}
