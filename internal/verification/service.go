// Package verification orchestrates ledger submissions: fingerprinting, the
// bounded retry loop, outcome classification, and proof construction.
package verification

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"provenance/internal/document/models"
	"provenance/internal/document/store"
	"provenance/internal/hashing"
	"provenance/internal/ledger"
	"provenance/internal/platform/metrics"
	"provenance/internal/verification/cache"
	dErrors "provenance/pkg/domain-errors"
	"provenance/pkg/platform/audit"
	"provenance/pkg/platform/sentinel"
	"provenance/pkg/requestcontext"
)

// Service coordinates off-chain records with the ledger. All ledger writes in
// the system flow through Submit so retry and outcome semantics live in one
// place.
type Service struct {
	records store.RecordStore
	ledger  ledger.Client
	proofs  cache.ProofCache
	audit   *audit.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer

	submitTimeout  time.Duration
	submitAttempts int
}

func NewService(
	records store.RecordStore,
	ledgerClient ledger.Client,
	proofs cache.ProofCache,
	auditPublisher *audit.Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
	submitTimeout time.Duration,
	submitAttempts int,
) *Service {
	if submitAttempts < 1 {
		submitAttempts = 1
	}
	return &Service{
		records:        records,
		ledger:         ledgerClient,
		proofs:         proofs,
		audit:          auditPublisher,
		metrics:        m,
		logger:         logger,
		tracer:         otel.Tracer("provenance/verification"),
		submitTimeout:  submitTimeout,
		submitAttempts: submitAttempts,
	}
}

// RegisterRequest describes a document entering the pipeline.
type RegisterRequest struct {
	DocumentID   string
	ContentRef   string
	DeclaredType string
	Metadata     map[string]string
	UploaderID   string
}

// Register creates the off-chain record in pending state. Nothing touches the
// ledger until a reviewer approves.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (models.DocumentRecord, error) {
	if strings.TrimSpace(req.ContentRef) == "" {
		return models.DocumentRecord{}, dErrors.New(dErrors.CodeValidation, "content reference is required")
	}
	if strings.TrimSpace(req.DeclaredType) == "" {
		return models.DocumentRecord{}, dErrors.New(dErrors.CodeValidation, "declared type is required")
	}
	if strings.TrimSpace(req.UploaderID) == "" {
		return models.DocumentRecord{}, dErrors.New(dErrors.CodeValidation, "uploader identity is required")
	}

	id := req.DocumentID
	if id == "" {
		id = uuid.NewString()
	}
	now := requestcontext.Now(ctx)

	record := models.DocumentRecord{
		ID:            id,
		ContentRef:    req.ContentRef,
		DeclaredType:  req.DeclaredType,
		Metadata:      req.Metadata,
		UploaderID:    req.UploaderID,
		CreatedAt:     now,
		Status:        models.StatusPending,
		LastUpdatedAt: now,
	}
	if err := s.records.Create(ctx, record); err != nil {
		if dErrors.Is(err, dErrors.CodeValidation) {
			return models.DocumentRecord{}, err
		}
		if errorsIsAlreadyExists(err) {
			return models.DocumentRecord{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "document already registered")
		}
		return models.DocumentRecord{}, dErrors.Wrap(err, dErrors.CodeInternal, "register document")
	}

	s.emit(ctx, audit.Event{
		DocumentID: record.ID,
		Actor:      req.UploaderID,
		Action:     string(audit.EventDocumentRegistered),
	})
	return record, nil
}

// Submit fingerprints the document and pushes the verification onto the
// ledger. Connectivity failures and unknown outcomes are retried with the
// exact same payload, which the ledger contract absorbs, so retrying can
// never double-commit. After the attempt budget the last classification
// stands: connectivity failure or unknown outcome, never silently dropped.
func (s *Service) Submit(ctx context.Context, documentID, reviewerID, comments string) (*models.VerificationProof, error) {
	ctx, span := s.tracer.Start(ctx, "verification.Submit",
		trace.WithAttributes(attribute.String("document.id", documentID)))
	defer span.End()

	if strings.TrimSpace(reviewerID) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "reviewer identity is required")
	}

	record, err := s.records.Get(ctx, documentID)
	if err != nil {
		if errorsIsNotFound(err) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "document not registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load document record")
	}

	fingerprint, err := hashing.Fingerprint(record.ContentRef, record.HashInput())
	if err != nil {
		return nil, err
	}

	// The proposal is built once: every retry carries the identical payload.
	proposal := ledger.Proposal{
		DocID:      documentID,
		DocHash:    fingerprint,
		VerifiedBy: reviewerID,
		Timestamp:  requestcontext.Now(ctx).UTC(),
		Comments:   comments,
	}

	s.metrics.VerificationsSubmitted.Inc()
	s.emit(ctx, audit.Event{
		DocumentID: documentID,
		Actor:      reviewerID,
		Action:     string(audit.EventVerificationSubmitted),
	})

	version, err := s.submitWithRetry(ctx, proposal)
	if err != nil {
		s.classifyFailure(ctx, documentID, reviewerID, err)
		return nil, err
	}

	proof := models.VerificationProof{
		TransactionID: version.TxID,
		DocHash:       version.Record.DocHash,
		VerifiedBy:    version.Record.VerifiedBy,
		Timestamp:     version.Record.Timestamp,
		Comments:      version.Record.Comments,
	}

	s.metrics.VerificationsConfirmed.Inc()
	if err := s.proofs.Save(ctx, documentID, proof); err != nil {
		s.logger.WarnContext(ctx, "proof cache save failed",
			"document_id", documentID, "error", err)
	}
	s.emit(ctx, audit.Event{
		DocumentID: documentID,
		Actor:      reviewerID,
		Action:     string(audit.EventVerificationConfirmed),
		TxID:       version.TxID,
	})
	return &proof, nil
}

func (s *Service) submitWithRetry(ctx context.Context, proposal ledger.Proposal) (ledger.Version, error) {
	var lastErr error
	for attempt := 1; attempt <= s.submitAttempts; attempt++ {
		if attempt > 1 {
			s.metrics.LedgerSubmitRetries.Inc()
			s.logger.WarnContext(ctx, "retrying ledger submission",
				"document_id", proposal.DocID,
				"attempt", attempt,
				"error", lastErr)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, s.submitTimeout)
		started := time.Now()
		version, err := s.ledger.Submit(attemptCtx, proposal)
		cancel()

		if err == nil {
			s.metrics.LedgerSubmitDuration.Observe(time.Since(started).Seconds())
			return version, nil
		}
		if !retryable(err) {
			return ledger.Version{}, err
		}
		lastErr = err

		// Give up early if the caller's own context is gone.
		if ctx.Err() != nil {
			break
		}
	}
	return ledger.Version{}, lastErr
}

// retryable reports whether resubmitting the identical payload can help.
// Unknown outcomes are retryable precisely because the payload is identical:
// if the first attempt did commit, the contract absorbs the duplicate and
// returns the committed version.
func retryable(err error) bool {
	return dErrors.Is(err, dErrors.CodeUnavailable) || dErrors.Is(err, dErrors.CodeUnknownOutcome)
}

func (s *Service) classifyFailure(ctx context.Context, documentID, reviewerID string, err error) {
	switch {
	case dErrors.Is(err, dErrors.CodeHashMismatch):
		s.metrics.HashMismatches.Inc()
		s.emit(ctx, audit.Event{
			DocumentID: documentID,
			Actor:      reviewerID,
			Action:     string(audit.EventHashMismatch),
			Reason:     err.Error(),
		})
	case dErrors.Is(err, dErrors.CodeUnknownOutcome):
		s.metrics.UnknownOutcomes.Inc()
		s.emit(ctx, audit.Event{
			DocumentID: documentID,
			Actor:      reviewerID,
			Action:     string(audit.EventVerificationUnknown),
			Reason:     err.Error(),
		})
	}
}

// Reverify commits the document's current fingerprint with explicit supersede
// consent, for content that legitimately changed after verification. The
// reviewer flow never supersedes; this is the administrative escape hatch.
func (s *Service) Reverify(ctx context.Context, documentID, adminID, comments string) (*models.VerificationProof, error) {
	ctx, span := s.tracer.Start(ctx, "verification.Reverify",
		trace.WithAttributes(attribute.String("document.id", documentID)))
	defer span.End()

	if strings.TrimSpace(adminID) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "admin identity is required")
	}

	record, err := s.records.Get(ctx, documentID)
	if err != nil {
		if errorsIsNotFound(err) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "document not registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load document record")
	}

	fingerprint, err := hashing.Fingerprint(record.ContentRef, record.HashInput())
	if err != nil {
		return nil, err
	}

	proposal := ledger.Proposal{
		DocID:      documentID,
		DocHash:    fingerprint,
		VerifiedBy: adminID,
		Timestamp:  requestcontext.Now(ctx).UTC(),
		Comments:   comments,
		Supersede:  true,
	}

	s.metrics.VerificationsSubmitted.Inc()
	version, err := s.submitWithRetry(ctx, proposal)
	if err != nil {
		s.classifyFailure(ctx, documentID, adminID, err)
		return nil, err
	}

	proof := models.VerificationProof{
		TransactionID: version.TxID,
		DocHash:       version.Record.DocHash,
		VerifiedBy:    version.Record.VerifiedBy,
		Timestamp:     version.Record.Timestamp,
		Comments:      version.Record.Comments,
	}

	s.metrics.VerificationsConfirmed.Inc()
	if err := s.proofs.Save(ctx, documentID, proof); err != nil {
		s.logger.WarnContext(ctx, "proof cache save failed",
			"document_id", documentID, "error", err)
	}

	// A verified record carries the proof it was approved with; refresh it so
	// the attached proof matches the new committed hash.
	if record.Status == models.StatusVerified {
		_, err := s.records.UpdateIfStatus(ctx, documentID, models.StatusVerified, func(r *models.DocumentRecord) error {
			r.VerificationProof = &proof
			r.LastUpdatedAt = requestcontext.Now(ctx)
			return nil
		})
		if err != nil {
			s.logger.WarnContext(ctx, "record proof refresh failed",
				"document_id", documentID, "error", err)
		}
	}

	s.emit(ctx, audit.Event{
		DocumentID: documentID,
		Actor:      adminID,
		Action:     string(audit.EventDocumentReverified),
		TxID:       version.TxID,
	})
	return &proof, nil
}

// StatusView combines the off-chain record with what the ledger asserts.
type StatusView struct {
	Document models.DocumentRecord     `json:"document"`
	Proof    *models.VerificationProof `json:"proof,omitempty"`
	Ledger   *ledger.Record            `json:"ledger,omitempty"`
}

// Status reports the document's current state. The proof cache is consulted
// first; the ledger read is authoritative for on-chain presence.
func (s *Service) Status(ctx context.Context, documentID string) (StatusView, error) {
	record, err := s.records.Get(ctx, documentID)
	if err != nil {
		if errorsIsNotFound(err) {
			return StatusView{}, dErrors.Wrap(err, dErrors.CodeNotFound, "document not registered")
		}
		return StatusView{}, dErrors.Wrap(err, dErrors.CodeInternal, "load document record")
	}
	view := StatusView{Document: record}

	proof, err := s.proofs.Find(ctx, documentID)
	if err != nil {
		s.logger.WarnContext(ctx, "proof cache read failed",
			"document_id", documentID, "error", err)
	}
	if proof == nil && record.VerificationProof != nil {
		proof = record.VerificationProof
		if err := s.proofs.Save(ctx, documentID, *proof); err != nil {
			s.logger.WarnContext(ctx, "proof cache backfill failed",
				"document_id", documentID, "error", err)
		}
	}
	view.Proof = proof

	ledgerRecord, err := s.ledger.Status(ctx, documentID)
	switch {
	case err == nil:
		view.Ledger = &ledgerRecord
	case dErrors.Is(err, dErrors.CodeNotFound):
		// Not on the ledger yet; nothing to report.
	default:
		return StatusView{}, err
	}
	return view, nil
}

// History returns the committed versions for a document, oldest first.
func (s *Service) History(ctx context.Context, documentID string) ([]ledger.Version, error) {
	cursor, err := s.ledger.History(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return cursor.Collect(), nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	event.RequestID = requestcontext.RequestID(ctx)
	if err := s.audit.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed",
			"action", event.Action, "error", err)
	}
}

func errorsIsNotFound(err error) bool {
	return dErrors.Is(err, dErrors.CodeNotFound) || errors.Is(err, sentinel.ErrNotFound)
}

func errorsIsAlreadyExists(err error) bool {
	return errors.Is(err, sentinel.ErrAlreadyExists)
}
