package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"provenance/internal/document/models"
	"provenance/internal/ledger"
	"provenance/internal/platform/middleware"
	"provenance/internal/transport/http/shared"
	"provenance/internal/verification"
	dErrors "provenance/pkg/domain-errors"
)

// Service defines the verification operations the handler depends on.
type Service interface {
	Register(ctx context.Context, req verification.RegisterRequest) (models.DocumentRecord, error)
	Submit(ctx context.Context, documentID, reviewerID, comments string) (*models.VerificationProof, error)
	Reverify(ctx context.Context, documentID, adminID, comments string) (*models.VerificationProof, error)
	Status(ctx context.Context, documentID string) (verification.StatusView, error)
	History(ctx context.Context, documentID string) ([]ledger.Version, error)
}

// Handler exposes document registration and ledger read/write endpoints.
type Handler struct {
	logger         *slog.Logger
	service        Service
	jwtValidator   middleware.JWTValidator
	adminTokenHash string
}

func New(service Service, logger *slog.Logger, jwtValidator middleware.JWTValidator, adminTokenHash string) *Handler {
	return &Handler{
		logger:         logger,
		service:        service,
		jwtValidator:   jwtValidator,
		adminTokenHash: adminTokenHash,
	}
}

// Register mounts the verification routes. Reads are public; registration and
// direct verification require an authenticated reviewer.
func (h *Handler) Register(r chi.Router) {
	r.Get("/api/document-status/{docId}", h.handleStatus)
	r.Get("/api/verification-history/{docId}", h.handleHistory)

	r.Group(func(authed chi.Router) {
		authed.Use(middleware.ContentTypeJSON)
		authed.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		authed.Post("/api/documents", h.handleRegister)
		authed.Post("/api/verify-document", h.handleVerify)
	})

	r.Group(func(admin chi.Router) {
		admin.Use(middleware.ContentTypeJSON)
		admin.Use(middleware.RequireAdminToken(h.adminTokenHash, h.logger))
		admin.Post("/api/admin/documents/{docId}/reverify", h.handleReverify)
	})
}

type registerRequest struct {
	DocumentID   string            `json:"documentId,omitempty"`
	ContentRef   string            `json:"contentRef"`
	DeclaredType string            `json:"declaredType"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	record, err := h.service.Register(ctx, verification.RegisterRequest{
		DocumentID:   req.DocumentID,
		ContentRef:   req.ContentRef,
		DeclaredType: req.DeclaredType,
		Metadata:     req.Metadata,
		UploaderID:   middleware.GetReviewerID(ctx),
	})
	if err != nil {
		h.logAndWrite(ctx, w, "register document", err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, record)
}

type verifyRequest struct {
	DocumentID string `json:"documentId"`
	Comments   string `json:"comments,omitempty"`
}

// handleVerify submits a verification directly, outside the claim flow. The
// ledger contract still applies: a conflicting committed hash is refused.
func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.DocumentID == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "documentId is required"))
		return
	}

	proof, err := h.service.Submit(ctx, req.DocumentID, middleware.GetReviewerID(ctx), req.Comments)
	if err != nil {
		h.logAndWrite(ctx, w, "verify document", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, proof)
}

type reverifyRequest struct {
	AdminID  string `json:"adminId"`
	Comments string `json:"comments,omitempty"`
}

// handleReverify commits the document's current fingerprint with explicit
// supersede consent, replacing a contradicting committed hash.
func (h *Handler) handleReverify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req reverifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.AdminID == "" {
		req.AdminID = "admin"
	}

	proof, err := h.service.Reverify(ctx, chi.URLParam(r, "docId"), req.AdminID, req.Comments)
	if err != nil {
		h.logAndWrite(ctx, w, "reverify document", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, proof)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docID := chi.URLParam(r, "docId")

	view, err := h.service.Status(ctx, docID)
	if err != nil {
		h.logAndWrite(ctx, w, "document status", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, view)
}

type historyResponse struct {
	DocumentID string           `json:"documentId"`
	Versions   []ledger.Version `json:"versions"`
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docID := chi.URLParam(r, "docId")

	versions, err := h.service.History(ctx, docID)
	if err != nil {
		h.logAndWrite(ctx, w, "verification history", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, historyResponse{DocumentID: docID, Versions: versions})
}

func (h *Handler) logAndWrite(ctx context.Context, w http.ResponseWriter, op string, err error) {
	code := dErrors.CodeOf(err)
	switch code {
	case dErrors.CodeInternal:
		h.logger.ErrorContext(ctx, op+" failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
	default:
		h.logger.WarnContext(ctx, op+" rejected",
			"request_id", middleware.GetRequestID(ctx),
			"code", string(code),
			"error", err.Error(),
		)
	}
	shared.WriteError(w, err)
}
