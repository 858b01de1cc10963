package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"provenance/internal/document/models"
	"provenance/internal/platform/middleware"
	"provenance/internal/transport/http/shared"
	dErrors "provenance/pkg/domain-errors"
)

// Service defines the review operations the handler depends on.
type Service interface {
	Claim(ctx context.Context, documentID, reviewerID string) (models.DocumentRecord, error)
	Approve(ctx context.Context, documentID, reviewerID, comments string) (models.DocumentRecord, error)
	Reject(ctx context.Context, documentID, reviewerID, reason string) (models.DocumentRecord, error)
	Reopen(ctx context.Context, documentID, adminID, reason string) (models.DocumentRecord, error)
	StatusLog(ctx context.Context, documentID string) ([]models.StatusLogEntry, error)
}

// Handler exposes the reviewer workflow plus the admin reopen endpoint.
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

// Register mounts the review routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/api/documents/{docId}/status-log", h.handleStatusLog)

	r.Group(func(authed chi.Router) {
		authed.Use(middleware.ContentTypeJSON)
		authed.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		authed.Post("/api/documents/{docId}/claim", h.handleClaim)
		authed.Post("/api/documents/{docId}/approve", h.handleApprove)
		authed.Post("/api/documents/{docId}/reject", h.handleReject)
	})

	r.Group(func(admin chi.Router) {
		admin.Use(middleware.ContentTypeJSON)
		admin.Use(middleware.RequireAdminToken(h.adminTokenHash, h.logger))
		admin.Post("/api/admin/documents/{docId}/reopen", h.handleReopen)
	})
}

func (h *Handler) handleClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	record, err := h.service.Claim(ctx, chi.URLParam(r, "docId"), middleware.GetReviewerID(ctx))
	if err != nil {
		h.logAndWrite(ctx, w, "claim document", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, record)
}

type approveRequest struct {
	Comments string `json:"comments,omitempty"`
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req approveRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
			return
		}
	}

	record, err := h.service.Approve(ctx, chi.URLParam(r, "docId"), middleware.GetReviewerID(ctx), req.Comments)
	if err != nil {
		h.logAndWrite(ctx, w, "approve document", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, record)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	record, err := h.service.Reject(ctx, chi.URLParam(r, "docId"), middleware.GetReviewerID(ctx), req.Reason)
	if err != nil {
		h.logAndWrite(ctx, w, "reject document", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, record)
}

type reopenRequest struct {
	AdminID string `json:"adminId"`
	Reason  string `json:"reason"`
}

func (h *Handler) handleReopen(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req reopenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.AdminID == "" {
		req.AdminID = "admin"
	}

	record, err := h.service.Reopen(ctx, chi.URLParam(r, "docId"), req.AdminID, req.Reason)
	if err != nil {
		h.logAndWrite(ctx, w, "reopen document", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, record)
}

type statusLogResponse struct {
	DocumentID string                  `json:"documentId"`
	Entries    []models.StatusLogEntry `json:"entries"`
}

func (h *Handler) handleStatusLog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docID := chi.URLParam(r, "docId")

	entries, err := h.service.StatusLog(ctx, docID)
	if err != nil {
		h.logAndWrite(ctx, w, "status log", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, statusLogResponse{DocumentID: docID, Entries: entries})
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
