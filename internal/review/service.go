// Package review implements the reviewer workflow over document records:
// claim, approve, reject, and the administrative reopen. Every transition is
// a single conditional write plus one status log entry.
package review

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"provenance/internal/document/models"
	"provenance/internal/document/store"
	"provenance/internal/platform/metrics"
	"provenance/internal/verification/cache"
	dErrors "provenance/pkg/domain-errors"
	"provenance/pkg/platform/audit"
	"provenance/pkg/platform/sentinel"
	"provenance/pkg/requestcontext"
)

// Orchestrator is the ledger submission path. Approve never talks to the
// ledger directly; all commit semantics live in the verification service.
type Orchestrator interface {
	Submit(ctx context.Context, documentID, reviewerID, comments string) (*models.VerificationProof, error)
}

// Service drives the review state machine.
type Service struct {
	records      store.RecordStore
	logs         store.LogStore
	orchestrator Orchestrator
	proofs       cache.ProofCache
	audit        *audit.Publisher
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

func NewService(
	records store.RecordStore,
	logs store.LogStore,
	orchestrator Orchestrator,
	proofs cache.ProofCache,
	auditPublisher *audit.Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Service {
	return &Service{
		records:      records,
		logs:         logs,
		orchestrator: orchestrator,
		proofs:       proofs,
		audit:        auditPublisher,
		metrics:      m,
		logger:       logger,
	}
}

// Claim moves a pending document to under_review for exactly one reviewer.
// Losing the race is a claim conflict, not an internal error.
func (s *Service) Claim(ctx context.Context, documentID, reviewerID string) (models.DocumentRecord, error) {
	if strings.TrimSpace(reviewerID) == "" {
		return models.DocumentRecord{}, dErrors.New(dErrors.CodeValidation, "reviewer identity is required")
	}
	now := requestcontext.Now(ctx)

	record, err := s.records.UpdateIfStatus(ctx, documentID, models.StatusPending, func(r *models.DocumentRecord) error {
		r.Status = models.StatusUnderReview
		r.ReviewerID = reviewerID
		r.ReviewStartedAt = &now
		r.LastUpdatedAt = now
		return nil
	})
	if err != nil {
		return models.DocumentRecord{}, s.translateClaimErr(ctx, documentID, err)
	}

	s.logTransition(ctx, models.StatusLogEntry{
		DocumentID:     documentID,
		PreviousStatus: models.StatusPending,
		NewStatus:      models.StatusUnderReview,
		ChangedBy:      reviewerID,
		ChangedAt:      now,
	})
	s.emit(ctx, audit.Event{
		DocumentID: documentID,
		Actor:      reviewerID,
		Action:     string(audit.EventDocumentClaimed),
	})
	return record, nil
}

func (s *Service) translateClaimErr(ctx context.Context, documentID string, err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeNotFound, "document not registered")
	}
	if !errors.Is(err, sentinel.ErrConflict) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "claim document")
	}

	s.metrics.ClaimConflicts.Inc()
	record, getErr := s.records.Get(ctx, documentID)
	if getErr == nil && record.Status == models.StatusUnderReview {
		return dErrors.Wrap(err, dErrors.CodeAlreadyClaimed,
			"document is already claimed by another reviewer")
	}
	return dErrors.Wrap(err, dErrors.CodeInvalidState, "document is not pending review")
}

// Approve pushes the verification to the ledger and, only after the commit is
// confirmed, moves the record to verified with the proof attached. Any
// submission failure leaves the record under_review with no log entry, so the
// reviewer can retry or the reconciler can adopt a late commit.
func (s *Service) Approve(ctx context.Context, documentID, reviewerID, comments string) (models.DocumentRecord, error) {
	record, err := s.requireAssignedReviewer(ctx, documentID, reviewerID)
	if err != nil {
		return models.DocumentRecord{}, err
	}

	proof, err := s.orchestrator.Submit(ctx, documentID, reviewerID, comments)
	if err != nil {
		s.logger.WarnContext(ctx, "approval submission did not confirm",
			"document_id", documentID,
			"reviewer_id", reviewerID,
			"code", string(dErrors.CodeOf(err)),
		)
		return models.DocumentRecord{}, err
	}

	now := requestcontext.Now(ctx)
	record, err = s.records.UpdateIfStatus(ctx, documentID, models.StatusUnderReview, func(r *models.DocumentRecord) error {
		r.Status = models.StatusVerified
		r.VerificationProof = proof
		r.LastUpdatedAt = now
		return nil
	})
	if err != nil {
		// The ledger commit stands; only the off-chain transition lost a
		// race. The reconciler will adopt the proof.
		return models.DocumentRecord{}, dErrors.Wrap(err, dErrors.CodeInvalidState,
			"document left review while approval was committing")
	}

	s.logTransition(ctx, models.StatusLogEntry{
		DocumentID:     documentID,
		PreviousStatus: models.StatusUnderReview,
		NewStatus:      models.StatusVerified,
		ChangedBy:      reviewerID,
		ChangedAt:      now,
	})
	s.emit(ctx, audit.Event{
		DocumentID: documentID,
		Actor:      reviewerID,
		Action:     string(audit.EventDocumentApproved),
		TxID:       proof.TransactionID,
	})
	return record, nil
}

// Reject closes the review negatively. The reason is mandatory; nothing is
// written anywhere until it validates.
func (s *Service) Reject(ctx context.Context, documentID, reviewerID, reason string) (models.DocumentRecord, error) {
	if strings.TrimSpace(reason) == "" {
		return models.DocumentRecord{}, dErrors.New(dErrors.CodeValidation, "rejection reason is required")
	}
	if _, err := s.requireAssignedReviewer(ctx, documentID, reviewerID); err != nil {
		return models.DocumentRecord{}, err
	}

	now := requestcontext.Now(ctx)
	record, err := s.records.UpdateIfStatus(ctx, documentID, models.StatusUnderReview, func(r *models.DocumentRecord) error {
		r.Status = models.StatusRejected
		r.RejectionReason = reason
		r.LastUpdatedAt = now
		return nil
	})
	if err != nil {
		return models.DocumentRecord{}, s.translateTransitionErr(err, "reject document")
	}

	s.logTransition(ctx, models.StatusLogEntry{
		DocumentID:     documentID,
		PreviousStatus: models.StatusUnderReview,
		NewStatus:      models.StatusRejected,
		Reason:         reason,
		ChangedBy:      reviewerID,
		ChangedAt:      now,
	})
	s.emit(ctx, audit.Event{
		DocumentID: documentID,
		Actor:      reviewerID,
		Action:     string(audit.EventDocumentRejected),
		Reason:     reason,
	})
	return record, nil
}

// Reopen is the administrative escape hatch from a terminal state back to
// pending. The ledger keeps whatever it committed; only the off-chain review
// state is reset.
func (s *Service) Reopen(ctx context.Context, documentID, adminID, reason string) (models.DocumentRecord, error) {
	if strings.TrimSpace(reason) == "" {
		return models.DocumentRecord{}, dErrors.New(dErrors.CodeValidation, "reopen reason is required")
	}

	current, err := s.records.Get(ctx, documentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.DocumentRecord{}, dErrors.Wrap(err, dErrors.CodeNotFound, "document not registered")
		}
		return models.DocumentRecord{}, dErrors.Wrap(err, dErrors.CodeInternal, "load document record")
	}
	if !current.Status.Terminal() {
		return models.DocumentRecord{}, dErrors.New(dErrors.CodeInvalidState,
			"only verified or rejected documents can be reopened")
	}

	now := requestcontext.Now(ctx)
	previous := current.Status
	record, err := s.records.UpdateIfStatus(ctx, documentID, previous, func(r *models.DocumentRecord) error {
		r.Status = models.StatusPending
		r.ReviewerID = ""
		r.ReviewStartedAt = nil
		r.RejectionReason = ""
		r.VerificationProof = nil
		r.LastUpdatedAt = now
		return nil
	})
	if err != nil {
		return models.DocumentRecord{}, s.translateTransitionErr(err, "reopen document")
	}

	if err := s.proofs.Invalidate(ctx, documentID); err != nil {
		s.logger.WarnContext(ctx, "proof cache invalidation failed",
			"document_id", documentID, "error", err)
	}

	s.logTransition(ctx, models.StatusLogEntry{
		DocumentID:     documentID,
		PreviousStatus: previous,
		NewStatus:      models.StatusPending,
		Reason:         reason,
		ChangedBy:      adminID,
		ChangedAt:      now,
	})
	s.emit(ctx, audit.Event{
		DocumentID: documentID,
		Actor:      adminID,
		Action:     string(audit.EventDocumentReopened),
		Reason:     reason,
	})
	return record, nil
}

// StatusLog returns the append-only transition trail for a document.
func (s *Service) StatusLog(ctx context.Context, documentID string) ([]models.StatusLogEntry, error) {
	if _, err := s.records.Get(ctx, documentID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "document not registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load document record")
	}
	entries, err := s.logs.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list status log")
	}
	return entries, nil
}

func (s *Service) requireAssignedReviewer(ctx context.Context, documentID, reviewerID string) (models.DocumentRecord, error) {
	if strings.TrimSpace(reviewerID) == "" {
		return models.DocumentRecord{}, dErrors.New(dErrors.CodeValidation, "reviewer identity is required")
	}
	record, err := s.records.Get(ctx, documentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.DocumentRecord{}, dErrors.Wrap(err, dErrors.CodeNotFound, "document not registered")
		}
		return models.DocumentRecord{}, dErrors.Wrap(err, dErrors.CodeInternal, "load document record")
	}
	if record.Status != models.StatusUnderReview {
		return models.DocumentRecord{}, dErrors.New(dErrors.CodeInvalidState, "document is not under review")
	}
	if record.ReviewerID != reviewerID {
		return models.DocumentRecord{}, dErrors.New(dErrors.CodeAlreadyClaimed,
			"document is claimed by another reviewer")
	}
	return record, nil
}

func (s *Service) translateTransitionErr(err error, op string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "document not registered")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeInvalidState, op+": document state changed concurrently")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, op)
	}
}

func (s *Service) logTransition(ctx context.Context, entry models.StatusLogEntry) {
	if err := s.logs.Append(ctx, entry); err != nil {
		// The transition itself committed; a lost log entry is loud, not fatal.
		s.logger.ErrorContext(ctx, "status log append failed",
			"document_id", entry.DocumentID,
			"new_status", string(entry.NewStatus),
			"error", err)
	}
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	event.RequestID = requestcontext.RequestID(ctx)
	if err := s.audit.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed",
			"action", event.Action, "error", err)
	}
}
