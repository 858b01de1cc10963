package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"

	"provenance/internal/document/store"
	"provenance/internal/ledger"
	"provenance/internal/platform/metrics"
	"provenance/internal/platform/middleware"
	"provenance/internal/verification"
	"provenance/internal/verification/cache"
	"provenance/pkg/platform/audit"
	auditmemory "provenance/pkg/platform/audit/store/memory"
)

const adminToken = "admin-secret"

// staticValidator accepts any non-empty bearer token and uses it as the
// reviewer ID, so tests can authenticate as arbitrary reviewers.
type staticValidator struct{}

func (staticValidator) ValidateToken(token string) (*middleware.JWTClaims, error) {
	if token == "" {
		return nil, errors.New("empty token")
	}
	return &middleware.JWTClaims{ReviewerID: token}, nil
}

func newVerificationRouter(t *testing.T) http.Handler {
	t.Helper()

	channel := ledger.NewChannel()
	t.Cleanup(channel.Close)
	gateway, err := ledger.Connect(channel)
	if err != nil {
		t.Fatalf("connect gateway: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	svc := verification.NewService(
		store.NewInMemoryRecordStore(),
		gateway,
		cache.NewMemoryCache(),
		audit.NewPublisher(auditmemory.NewInMemoryStore()),
		metrics.NewWithRegistry(prometheus.NewRegistry()),
		logger,
		time.Second,
		3,
	)

	hash, err := bcrypt.GenerateFromPassword([]byte(adminToken), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash admin token: %v", err)
	}

	h := New(svc, logger, staticValidator{}, string(hash))
	r := chi.NewRouter()
	h.Register(r)
	return r
}

func postJSON(t *testing.T, router http.Handler, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestAuthRequired(t *testing.T) {
	router := newVerificationRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/documents", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without bearer token, got %d", rec.Code)
	}
}

func TestRegisterVerifyStatusHistoryFlow(t *testing.T) {
	router := newVerificationRouter(t)

	rec := postJSON(t, router, "/api/documents", "alice", map[string]any{
		"documentId":   "doc-1",
		"contentRef":   "blob://bucket/doc-1",
		"declaredType": "passport",
		"metadata":     map[string]string{"country": "NL"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 registering document, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = postJSON(t, router, "/api/verify-document", "alice", map[string]any{
		"documentId": "doc-1",
		"comments":   "matches source",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 verifying document, got %d: %s", rec.Code, rec.Body.String())
	}
	var proof struct {
		TransactionID string `json:"transactionId"`
		VerifiedBy    string `json:"verifiedBy"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&proof); err != nil {
		t.Fatalf("decode proof: %v", err)
	}
	if proof.TransactionID == "" || proof.VerifiedBy != "alice" {
		t.Fatalf("unexpected proof: %+v", proof)
	}

	statusReq := httptest.NewRequest(http.MethodGet, "/api/document-status/doc-1", nil)
	statusRec := httptest.NewRecorder()
	router.ServeHTTP(statusRec, statusReq)
	if statusRec.Code != http.StatusOK {
		t.Fatalf("expected 200 for status, got %d", statusRec.Code)
	}
	var view struct {
		Proof  *struct{ TransactionID string } `json:"proof"`
		Ledger *struct{ DocHash string }       `json:"ledger"`
	}
	if err := json.NewDecoder(statusRec.Body).Decode(&view); err != nil {
		t.Fatalf("decode status view: %v", err)
	}
	if view.Proof == nil || view.Proof.TransactionID != proof.TransactionID {
		t.Fatalf("status view missing committed proof: %+v", view)
	}
	if view.Ledger == nil || view.Ledger.DocHash == "" {
		t.Fatalf("status view missing ledger record: %+v", view)
	}

	historyReq := httptest.NewRequest(http.MethodGet, "/api/verification-history/doc-1", nil)
	historyRec := httptest.NewRecorder()
	router.ServeHTTP(historyRec, historyReq)
	if historyRec.Code != http.StatusOK {
		t.Fatalf("expected 200 for history, got %d", historyRec.Code)
	}
	var history struct {
		Versions []struct {
			TxID string `json:"transactionId"`
		} `json:"versions"`
	}
	if err := json.NewDecoder(historyRec.Body).Decode(&history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history.Versions) != 1 || history.Versions[0].TxID != proof.TransactionID {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestStatusUnknownDocument(t *testing.T) {
	router := newVerificationRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/document-status/nope", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown document, got %d", rec.Code)
	}
}

func TestReverifyRequiresAdminToken(t *testing.T) {
	router := newVerificationRouter(t)

	rec := postJSON(t, router, "/api/documents", "alice", map[string]any{
		"documentId": "doc-1",
		"contentRef": "blob://bucket/doc-1", "declaredType": "passport",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register failed: %d", rec.Code)
	}
	if rec := postJSON(t, router, "/api/verify-document", "alice", map[string]any{"documentId": "doc-1"}); rec.Code != http.StatusOK {
		t.Fatalf("verify failed: %d", rec.Code)
	}

	body := []byte(`{"adminId":"ops","comments":"content re-checked"}`)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/documents/doc-1/reverify", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without admin token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/admin/documents/doc-1/reverify", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Token", adminToken)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 reverifying, got %d: %s", rec.Code, rec.Body.String())
	}
	var proof struct {
		VerifiedBy string `json:"verifiedBy"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&proof); err != nil {
		t.Fatalf("decode proof: %v", err)
	}
	if proof.VerifiedBy != "ops" {
		t.Fatalf("expected admin as verifier, got %q", proof.VerifiedBy)
	}
}

func TestVerifyRequiresDocumentID(t *testing.T) {
	router := newVerificationRouter(t)

	rec := postJSON(t, router, "/api/verify-document", "alice", map[string]any{"comments": "x"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without documentId, got %d", rec.Code)
	}
}
