package verification_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"provenance/internal/document/models"
	"provenance/internal/document/store"
	"provenance/internal/ledger"
	"provenance/internal/platform/logger"
	"provenance/internal/platform/metrics"
	"provenance/internal/verification"
	"provenance/internal/verification/cache"
	dErrors "provenance/pkg/domain-errors"
	"provenance/pkg/requestcontext"
	"provenance/pkg/platform/audit"
	auditmemory "provenance/pkg/platform/audit/store/memory"
)

// scriptedLedger scripts Submit outcomes per call while delegating reads to a
// real channel, so history cursors behave exactly like production ones.
type scriptedLedger struct {
	mu      sync.Mutex
	channel *ledger.Channel
	submits int
	// script holds per-call errors; nil means delegate to the channel.
	script []error
}

func newScriptedLedger(script ...error) *scriptedLedger {
	return &scriptedLedger{channel: ledger.NewChannel(), script: script}
}

func (f *scriptedLedger) Submit(ctx context.Context, p ledger.Proposal) (ledger.Version, error) {
	f.mu.Lock()
	call := f.submits
	f.submits++
	f.mu.Unlock()

	if call < len(f.script) && f.script[call] != nil {
		return ledger.Version{}, f.script[call]
	}
	return f.channel.Submit(ctx, p)
}

func (f *scriptedLedger) Status(ctx context.Context, docID string) (ledger.Record, error) {
	record, err := f.channel.Status(ctx, docID)
	if err != nil {
		return ledger.Record{}, dErrors.Wrap(err, dErrors.CodeNotFound, "document not on ledger")
	}
	return record, nil
}

func (f *scriptedLedger) History(ctx context.Context, docID string) (*ledger.HistoryCursor, error) {
	cursor, err := f.channel.History(ctx, docID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "document not on ledger")
	}
	return cursor, nil
}

func (f *scriptedLedger) submitCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits
}

type VerificationServiceSuite struct {
	suite.Suite
	ctx        context.Context
	records    *store.InMemoryRecordStore
	ledger     *scriptedLedger
	proofs     *cache.MemoryCache
	auditStore *auditmemory.InMemoryStore
	service    *verification.Service
}

func TestVerificationServiceSuite(t *testing.T) {
	suite.Run(t, new(VerificationServiceSuite))
}

func (s *VerificationServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.records = store.NewInMemoryRecordStore()
	s.proofs = cache.NewMemoryCache()
	s.auditStore = auditmemory.NewInMemoryStore()
	s.newService()
}

func (s *VerificationServiceSuite) newService(script ...error) {
	s.ledger = newScriptedLedger(script...)
	s.service = verification.NewService(
		s.records,
		s.ledger,
		s.proofs,
		audit.NewPublisher(s.auditStore),
		metrics.NewWithRegistry(prometheus.NewRegistry()),
		logger.New(),
		time.Second,
		3,
	)
}

func (s *VerificationServiceSuite) register(id string) models.DocumentRecord {
	record, err := s.service.Register(s.ctx, verification.RegisterRequest{
		DocumentID:   id,
		ContentRef:   "blob://bucket/" + id,
		DeclaredType: "passport",
		Metadata:     map[string]string{"country": "NL"},
		UploaderID:   "uploader-1",
	})
	s.Require().NoError(err)
	return record
}

func (s *VerificationServiceSuite) TestRegister() {
	s.Run("creates a pending record and audits it", func() {
		record := s.register("doc-1")
		s.Equal(models.StatusPending, record.Status)

		events, err := s.auditStore.ListByDocument(s.ctx, "doc-1")
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal(string(audit.EventDocumentRegistered), events[0].Action)
	})

	s.Run("rejects a blank content reference", func() {
		_, err := s.service.Register(s.ctx, verification.RegisterRequest{
			DeclaredType: "passport", UploaderID: "uploader-1",
		})
		s.True(dErrors.Is(err, dErrors.CodeValidation))
	})

	s.Run("rejects a duplicate registration", func() {
		s.register("doc-dup")
		_, err := s.service.Register(s.ctx, verification.RegisterRequest{
			DocumentID: "doc-dup", ContentRef: "blob://x", DeclaredType: "passport", UploaderID: "u",
		})
		s.True(dErrors.Is(err, dErrors.CodeBadRequest))
	})
}

func (s *VerificationServiceSuite) TestSubmit() {
	s.Run("commits and returns a proof", func() {
		s.register("doc-1")
		proof, err := s.service.Submit(s.ctx, "doc-1", "alice", "checked against source")
		s.Require().NoError(err)
		s.NotEmpty(proof.TransactionID)
		s.NotEmpty(proof.DocHash)
		s.Equal("alice", proof.VerifiedBy)

		cached, err := s.proofs.Find(s.ctx, "doc-1")
		s.Require().NoError(err)
		s.Require().NotNil(cached)
		s.Equal(proof.TransactionID, cached.TransactionID)
	})

	s.Run("redelivery of the same request is idempotent", func() {
		s.register("doc-2")
		// Pin the request time: a redelivered request carries the original
		// attestation time, unlike a fresh re-verification.
		ctx := requestcontext.WithTime(s.ctx, time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC))
		first, err := s.service.Submit(ctx, "doc-2", "alice", "")
		s.Require().NoError(err)
		second, err := s.service.Submit(ctx, "doc-2", "alice", "")
		s.Require().NoError(err)
		s.Equal(first.TransactionID, second.TransactionID)
	})

	s.Run("unknown document", func() {
		_, err := s.service.Submit(s.ctx, "missing", "alice", "")
		s.True(dErrors.Is(err, dErrors.CodeNotFound))
	})

	s.Run("blank reviewer", func() {
		s.register("doc-3")
		_, err := s.service.Submit(s.ctx, "doc-3", "  ", "")
		s.True(dErrors.Is(err, dErrors.CodeValidation))
	})
}

func (s *VerificationServiceSuite) TestSubmitRetriesOnConnectivityFailure() {
	unavailable := dErrors.New(dErrors.CodeUnavailable, "ledger gateway is not connected")
	s.newService(unavailable, unavailable)

	s.register("doc-1")
	proof, err := s.service.Submit(s.ctx, "doc-1", "alice", "")
	s.Require().NoError(err)
	s.NotEmpty(proof.TransactionID)
	s.Equal(3, s.ledger.submitCalls(), "two failures then one successful attempt")
}

func (s *VerificationServiceSuite) TestSubmitExhaustsAttempts() {
	unavailable := dErrors.New(dErrors.CodeUnavailable, "ledger gateway is not connected")
	s.newService(unavailable, unavailable, unavailable)

	s.register("doc-1")
	_, err := s.service.Submit(s.ctx, "doc-1", "alice", "")
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeUnavailable))
	s.Equal(3, s.ledger.submitCalls())
}

func (s *VerificationServiceSuite) TestSubmitUnknownOutcomeSurfaced() {
	unknown := dErrors.New(dErrors.CodeUnknownOutcome, "gave up waiting for commit")
	s.newService(unknown, unknown, unknown)

	s.register("doc-1")
	_, err := s.service.Submit(s.ctx, "doc-1", "alice", "")
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeUnknownOutcome), "unknown outcome is not reported as failure")

	events, err := s.auditStore.ListByDocument(s.ctx, "doc-1")
	s.Require().NoError(err)
	var sawUnknown bool
	for _, e := range events {
		if e.Action == string(audit.EventVerificationUnknown) {
			sawUnknown = true
		}
	}
	s.True(sawUnknown)
}

func (s *VerificationServiceSuite) TestSubmitHashMismatch() {
	s.register("doc-1")
	_, err := s.service.Submit(s.ctx, "doc-1", "alice", "")
	s.Require().NoError(err)

	// Content drift after verification: mutate the stored record's metadata
	// so the recomputed fingerprint no longer matches the committed one.
	_, err = s.records.UpdateIfStatus(s.ctx, "doc-1", models.StatusPending, func(r *models.DocumentRecord) error {
		r.Metadata = map[string]string{"country": "DE"}
		return nil
	})
	s.Require().NoError(err)

	_, err = s.service.Submit(s.ctx, "doc-1", "bob", "")
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeHashMismatch))

	// The committed value is untouched.
	record, err := s.ledger.channel.Status(s.ctx, "doc-1")
	s.Require().NoError(err)
	s.Equal("alice", record.VerifiedBy)
}

func (s *VerificationServiceSuite) TestReverifySupersedesCommittedHash() {
	s.register("doc-1")
	first, err := s.service.Submit(s.ctx, "doc-1", "alice", "")
	s.Require().NoError(err)

	// Content legitimately changed after the first commit.
	_, err = s.records.UpdateIfStatus(s.ctx, "doc-1", models.StatusPending, func(r *models.DocumentRecord) error {
		r.Metadata = map[string]string{"country": "DE"}
		return nil
	})
	s.Require().NoError(err)

	// The reviewer flow refuses the new fingerprint.
	_, err = s.service.Submit(s.ctx, "doc-1", "bob", "")
	s.True(dErrors.Is(err, dErrors.CodeHashMismatch))

	// The administrative path supersedes explicitly.
	proof, err := s.service.Reverify(s.ctx, "doc-1", "ops", "content re-checked")
	s.Require().NoError(err)
	s.NotEqual(first.DocHash, proof.DocHash)
	s.Equal("ops", proof.VerifiedBy)

	record, err := s.ledger.channel.Status(s.ctx, "doc-1")
	s.Require().NoError(err)
	s.Equal(proof.DocHash, record.DocHash)

	cached, err := s.proofs.Find(s.ctx, "doc-1")
	s.Require().NoError(err)
	s.Require().NotNil(cached)
	s.Equal(proof.TransactionID, cached.TransactionID)

	s.Run("blank admin identity", func() {
		_, err := s.service.Reverify(s.ctx, "doc-1", " ", "")
		s.True(dErrors.Is(err, dErrors.CodeValidation))
	})
}

func (s *VerificationServiceSuite) TestStatus() {
	s.register("doc-1")

	s.Run("before any verification", func() {
		view, err := s.service.Status(s.ctx, "doc-1")
		s.Require().NoError(err)
		s.Equal(models.StatusPending, view.Document.Status)
		s.Nil(view.Proof)
		s.Nil(view.Ledger)
	})

	s.Run("after a confirmed verification", func() {
		proof, err := s.service.Submit(s.ctx, "doc-1", "alice", "")
		s.Require().NoError(err)

		view, err := s.service.Status(s.ctx, "doc-1")
		s.Require().NoError(err)
		s.Require().NotNil(view.Proof)
		s.Equal(proof.TransactionID, view.Proof.TransactionID)
		s.Require().NotNil(view.Ledger)
		s.Equal(ledger.StatusVerified, view.Ledger.Status)
	})

	s.Run("unknown document", func() {
		_, err := s.service.Status(s.ctx, "missing")
		s.True(dErrors.Is(err, dErrors.CodeNotFound))
	})
}

func (s *VerificationServiceSuite) TestHistory() {
	s.register("doc-1")
	_, err := s.service.Submit(s.ctx, "doc-1", "alice", "")
	s.Require().NoError(err)
	_, err = s.service.Submit(s.ctx, "doc-1", "bob", "")
	s.Require().NoError(err)

	versions, err := s.service.History(s.ctx, "doc-1")
	s.Require().NoError(err)
	s.Require().Len(versions, 2)
	s.Equal("alice", versions[0].Record.VerifiedBy)
	s.Equal("bob", versions[1].Record.VerifiedBy)
	s.Equal(int64(0), s.ledger.channel.OpenCursors(), "history reads release their cursors")
}
