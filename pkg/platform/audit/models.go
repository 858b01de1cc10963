package audit

import "time"

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with evidentiary significance:
	// anything that changes what the system asserts about a document.
	// These require durable storage and long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers events useful for debugging and operational
	// visibility. These can be sampled with shorter retention.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category   EventCategory
	Timestamp  time.Time
	DocumentID string
	// Actor is the identity that caused the event: a reviewer ID, or
	// "system" for reconciliation findings.
	Actor    string
	Action   string
	Decision string
	Reason   string
	// TxID is the ledger transaction backing the event, when one exists.
	TxID string
	// RequestID is the correlation ID from HTTP request context.
	RequestID string
}

type AuditEvent string

const (
	// Registration events
	EventDocumentRegistered AuditEvent = "document_registered"

	// Review events
	EventDocumentClaimed  AuditEvent = "document_claimed"
	EventDocumentApproved AuditEvent = "document_approved"
	EventDocumentRejected AuditEvent = "document_rejected"
	EventDocumentReopened AuditEvent = "document_reopened"

	// Admin events
	EventDocumentReverified AuditEvent = "document_reverified"

	// Ledger events
	EventVerificationSubmitted AuditEvent = "verification_submitted"
	EventVerificationConfirmed AuditEvent = "verification_confirmed"
	EventVerificationUnknown   AuditEvent = "verification_unknown_outcome"
	EventHashMismatch          AuditEvent = "hash_mismatch"

	// Reconciliation events
	EventProofAdopted           AuditEvent = "reconcile_proof_adopted"
	EventIntegrityViolation     AuditEvent = "reconcile_integrity_violation"
	EventOrphanedVerification   AuditEvent = "reconcile_orphaned_verification"
	EventReconcileSweepFinished AuditEvent = "reconcile_sweep_finished"
)

// eventCategories maps each audit event to its category. Everything that
// changes or contradicts the verified state of a document is compliance.
var eventCategories = map[AuditEvent]EventCategory{
	EventDocumentRegistered:    CategoryOperations,
	EventDocumentClaimed:       CategoryOperations,
	EventDocumentApproved:      CategoryCompliance,
	EventDocumentRejected:      CategoryCompliance,
	EventDocumentReopened:      CategoryCompliance,
	EventDocumentReverified:    CategoryCompliance,
	EventVerificationSubmitted: CategoryOperations,
	EventVerificationConfirmed: CategoryCompliance,
	EventVerificationUnknown:   CategoryCompliance,
	EventHashMismatch:          CategoryCompliance,
	EventProofAdopted:          CategoryCompliance,
	EventIntegrityViolation:    CategoryCompliance,
	EventOrphanedVerification:  CategoryCompliance,

	EventReconcileSweepFinished: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}
