// Package reconcile compares off-chain review state against the ledger and
// classifies every divergence. The only repair it performs on its own is
// adopting a confirmed commit the orchestrator never saw; contradictions are
// surfaced, never auto-corrected.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"provenance/internal/document/models"
	"provenance/internal/document/store"
	"provenance/internal/hashing"
	"provenance/internal/ledger"
	"provenance/internal/platform/metrics"
	"provenance/internal/verification/cache"
	dErrors "provenance/pkg/domain-errors"
	"provenance/pkg/platform/audit"
	"provenance/pkg/platform/sentinel"
)

// Finding classifies the relationship between a document's off-chain state
// and the ledger.
type Finding string

const (
	// FindingConsistent: both sides agree; nothing to do.
	FindingConsistent Finding = "consistent"

	// FindingProofAdopted: the ledger holds a commit matching the current
	// content and the off-chain record lacked it. The record was repaired.
	FindingProofAdopted Finding = "proof_adopted"

	// FindingIntegrityViolation: the committed hash contradicts the current
	// content or the stored proof. Surfaced for manual resolution.
	FindingIntegrityViolation Finding = "integrity_violation"

	// FindingOrphanedVerification: one side asserts a verification the other
	// does not own — a ledger commit no review accepted, or a verified record
	// the ledger has no commit for. The record must not be trusted.
	FindingOrphanedVerification Finding = "orphaned_verification"
)

// Result is the outcome of reconciling one document.
type Result struct {
	DocumentID string         `json:"documentId"`
	Finding    Finding        `json:"finding"`
	Detail     string         `json:"detail,omitempty"`
	Ledger     *ledger.Record `json:"ledger,omitempty"`
}

// Service is the reconciliation layer.
type Service struct {
	records store.RecordStore
	logs    store.LogStore
	ledger  ledger.Client
	proofs  cache.ProofCache
	audit   *audit.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger

	// sweepConcurrency bounds parallel reconciliations during a sweep.
	sweepConcurrency int
}

func NewService(
	records store.RecordStore,
	logs store.LogStore,
	ledgerClient ledger.Client,
	proofs cache.ProofCache,
	auditPublisher *audit.Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Service {
	return &Service{
		records:          records,
		logs:             logs,
		ledger:           ledgerClient,
		proofs:           proofs,
		audit:            auditPublisher,
		metrics:          m,
		logger:           logger,
		sweepConcurrency: 4,
	}
}

// Reconcile classifies one document. Connectivity errors abort with an error;
// every divergence is returned as a finding, not an error, so sweeps keep
// going.
func (s *Service) Reconcile(ctx context.Context, documentID string) (Result, error) {
	record, err := s.records.Get(ctx, documentID)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			return Result{}, dErrors.Wrap(err, dErrors.CodeInternal, "load document record")
		}
		return s.reconcileMissingRecord(ctx, documentID)
	}

	ledgerRecord, err := s.ledger.Status(ctx, documentID)
	onLedger := true
	if err != nil {
		if !dErrors.Is(err, dErrors.CodeNotFound) {
			return Result{}, err
		}
		onLedger = false
	}

	fingerprint, err := hashing.Fingerprint(record.ContentRef, record.HashInput())
	if err != nil {
		return Result{}, err
	}

	result, err := s.classify(ctx, record, fingerprint, ledgerRecord, onLedger)
	if err != nil {
		return Result{}, err
	}
	s.report(ctx, result)
	return result, nil
}

// reconcileMissingRecord handles a document the store has never seen. A
// ledger entry without any off-chain record is an orphaned verification.
func (s *Service) reconcileMissingRecord(ctx context.Context, documentID string) (Result, error) {
	ledgerRecord, err := s.ledger.Status(ctx, documentID)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeNotFound) {
			return Result{}, dErrors.New(dErrors.CodeNotFound, "document unknown to both store and ledger")
		}
		return Result{}, err
	}
	result := Result{
		DocumentID: documentID,
		Finding:    FindingOrphanedVerification,
		Detail:     "ledger commit exists for a document with no off-chain record",
		Ledger:     &ledgerRecord,
	}
	s.report(ctx, result)
	return result, nil
}

func (s *Service) classify(ctx context.Context, record models.DocumentRecord, fingerprint string, ledgerRecord ledger.Record, onLedger bool) (Result, error) {
	result := Result{DocumentID: record.ID, Finding: FindingConsistent}
	if onLedger {
		result.Ledger = &ledgerRecord
	}

	switch record.Status {
	case models.StatusPending:
		if onLedger {
			result.Finding = FindingOrphanedVerification
			result.Detail = "ledger asserts a verification but no review owns it"
		}

	case models.StatusUnderReview:
		switch {
		case !onLedger:
			// Approval has not committed yet.
		case ledgerRecord.DocHash == fingerprint:
			// The unknown-outcome window: the commit landed after the
			// orchestrator stopped waiting. Adopt it.
			return s.adopt(ctx, record, ledgerRecord)
		default:
			result.Finding = FindingIntegrityViolation
			result.Detail = "committed hash does not match current content"
		}

	case models.StatusVerified:
		switch {
		case !onLedger:
			result.Finding = FindingOrphanedVerification
			result.Detail = "record claims verified but the ledger has no commit"
		case record.VerificationProof == nil:
			if ledgerRecord.DocHash == fingerprint {
				return s.adopt(ctx, record, ledgerRecord)
			}
			result.Finding = FindingIntegrityViolation
			result.Detail = "verified record has no proof and content does not match the ledger"
		case record.VerificationProof.DocHash != ledgerRecord.DocHash:
			result.Finding = FindingIntegrityViolation
			result.Detail = "stored proof contradicts the committed hash"
		case ledgerRecord.DocHash != fingerprint:
			result.Finding = FindingIntegrityViolation
			result.Detail = "content changed after verification"
		}

	case models.StatusRejected:
		if onLedger {
			result.Finding = FindingOrphanedVerification
			result.Detail = "ledger asserts a verification for a rejected document"
		}
	}

	return result, nil
}

// adopt repairs the off-chain record from a confirmed commit: attach the
// proof, move to verified, log the transition.
func (s *Service) adopt(ctx context.Context, record models.DocumentRecord, ledgerRecord ledger.Record) (Result, error) {
	proof, err := s.proofFromHistory(ctx, record.ID, ledgerRecord)
	if err != nil {
		return Result{}, err
	}

	now := time.Now()
	previous := record.Status
	_, err = s.records.UpdateIfStatus(ctx, record.ID, previous, func(r *models.DocumentRecord) error {
		r.Status = models.StatusVerified
		r.VerificationProof = &proof
		r.LastUpdatedAt = now
		return nil
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// Someone else moved the record while we reconciled; the next
			// sweep will see the new state.
			return Result{DocumentID: record.ID, Finding: FindingConsistent,
				Detail: "record changed during reconciliation"}, nil
		}
		return Result{}, dErrors.Wrap(err, dErrors.CodeInternal, "adopt ledger proof")
	}

	if err := s.logs.Append(ctx, models.StatusLogEntry{
		DocumentID:     record.ID,
		PreviousStatus: previous,
		NewStatus:      models.StatusVerified,
		Reason:         "adopted confirmed ledger commit " + proof.TransactionID,
		ChangedBy:      "system",
		ChangedAt:      now,
	}); err != nil {
		s.logger.ErrorContext(ctx, "status log append failed",
			"document_id", record.ID, "error", err)
	}
	if err := s.proofs.Save(ctx, record.ID, proof); err != nil {
		s.logger.WarnContext(ctx, "proof cache save failed",
			"document_id", record.ID, "error", err)
	}

	result := Result{
		DocumentID: record.ID,
		Finding:    FindingProofAdopted,
		Detail:     "commit " + proof.TransactionID + " adopted",
		Ledger:     &ledgerRecord,
	}
	s.report(ctx, result)
	return result, nil
}

// proofFromHistory walks the version history to recover the transaction ID
// behind the current committed value.
func (s *Service) proofFromHistory(ctx context.Context, documentID string, current ledger.Record) (models.VerificationProof, error) {
	cursor, err := s.ledger.History(ctx, documentID)
	if err != nil {
		return models.VerificationProof{}, err
	}
	defer cursor.Close()

	var match *ledger.Version
	for {
		version, ok := cursor.Next()
		if !ok {
			break
		}
		if version.Record.DocHash == current.DocHash {
			v := version
			match = &v
		}
	}
	if match == nil {
		return models.VerificationProof{}, dErrors.New(dErrors.CodeIntegrityViolation,
			"committed value missing from version history")
	}
	return models.VerificationProof{
		TransactionID: match.TxID,
		DocHash:       match.Record.DocHash,
		VerifiedBy:    match.Record.VerifiedBy,
		Timestamp:     match.Record.Timestamp,
		Comments:      match.Record.Comments,
	}, nil
}

func (s *Service) report(ctx context.Context, result Result) {
	s.metrics.RecordReconcileFinding(string(result.Finding))

	var action audit.AuditEvent
	switch result.Finding {
	case FindingProofAdopted:
		action = audit.EventProofAdopted
	case FindingIntegrityViolation:
		action = audit.EventIntegrityViolation
	case FindingOrphanedVerification:
		action = audit.EventOrphanedVerification
	default:
		return
	}
	if err := s.audit.Emit(ctx, audit.Event{
		DocumentID: result.DocumentID,
		Actor:      "system",
		Action:     string(action),
		Reason:     result.Detail,
	}); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed",
			"action", string(action), "error", err)
	}
}

// Sweep reconciles every known document. Findings never abort the sweep;
// only infrastructure errors do.
func (s *Service) Sweep(ctx context.Context) (map[Finding]int, error) {
	records, err := s.records.ListByStatus(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list documents for sweep")
	}

	var (
		mu       sync.Mutex
		findings = make(map[Finding]int)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.sweepConcurrency)

	for _, record := range records {
		g.Go(func() error {
			result, err := s.Reconcile(gctx, record.ID)
			if err != nil {
				return err
			}
			mu.Lock()
			findings[result.Finding]++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := s.audit.Emit(ctx, audit.Event{
		Actor:  "system",
		Action: string(audit.EventReconcileSweepFinished),
	}); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed",
			"action", string(audit.EventReconcileSweepFinished), "error", err)
	}
	return findings, nil
}

// RunPeriodic sweeps on the given interval until the context is cancelled.
func (s *Service) RunPeriodic(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			findings, err := s.Sweep(ctx)
			if err != nil {
				s.logger.ErrorContext(ctx, "reconciliation sweep failed", "error", err)
				continue
			}
			attrs := make([]any, 0, len(findings)*2)
			for finding, count := range findings {
				attrs = append(attrs, string(finding), count)
			}
			s.logger.InfoContext(ctx, "reconciliation sweep finished", attrs...)
		}
	}
}
