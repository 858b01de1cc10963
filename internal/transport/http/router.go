// Package httptransport assembles the HTTP surface: common middleware, health
// and metrics endpoints, and the feature handlers.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"provenance/internal/platform/middleware"
	"provenance/internal/transport/http/shared"
)

// Registrar is implemented by feature handlers that mount their own routes.
type Registrar interface {
	Register(r chi.Router)
}

// NewRouter builds the service router. Feature handlers attach their routes
// under the shared middleware stack; auth is applied per route group by the
// handlers themselves.
func NewRouter(logger *slog.Logger, handlers ...Registrar) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		shared.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	for _, h := range handlers {
		h.Register(r)
	}
	return r
}
