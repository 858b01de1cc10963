package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"provenance/internal/platform/middleware"
	"provenance/internal/reconcile"
	"provenance/internal/transport/http/shared"
	dErrors "provenance/pkg/domain-errors"
)

// Service defines the reconciliation operations the handler depends on.
type Service interface {
	Reconcile(ctx context.Context, documentID string) (reconcile.Result, error)
	Sweep(ctx context.Context) (map[reconcile.Finding]int, error)
}

// Handler exposes reconciliation as admin-only endpoints.
type Handler struct {
	logger         *slog.Logger
	service        Service
	adminTokenHash string
}

func New(service Service, logger *slog.Logger, adminTokenHash string) *Handler {
	return &Handler{logger: logger, service: service, adminTokenHash: adminTokenHash}
}

func (h *Handler) Register(r chi.Router) {
	r.Group(func(admin chi.Router) {
		admin.Use(middleware.RequireAdminToken(h.adminTokenHash, h.logger))
		admin.Post("/api/admin/reconcile/{docId}", h.handleReconcile)
		admin.Post("/api/admin/reconcile", h.handleSweep)
	})
}

func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	result, err := h.service.Reconcile(ctx, chi.URLParam(r, "docId"))
	if err != nil {
		h.logAndWrite(ctx, w, "reconcile document", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, result)
}

type sweepResponse struct {
	Findings map[reconcile.Finding]int `json:"findings"`
}

func (h *Handler) handleSweep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	findings, err := h.service.Sweep(ctx)
	if err != nil {
		h.logAndWrite(ctx, w, "reconciliation sweep", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, sweepResponse{Findings: findings})
}

func (h *Handler) logAndWrite(ctx context.Context, w http.ResponseWriter, op string, err error) {
	code := dErrors.CodeOf(err)
	if code == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, op+" failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
	} else {
		h.logger.WarnContext(ctx, op+" rejected",
			"request_id", middleware.GetRequestID(ctx),
			"code", string(code),
			"error", err.Error(),
		)
	}
	shared.WriteError(w, err)
}
