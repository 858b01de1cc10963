package httpserver

import (
	"net/http"

	"provenance/internal/platform/config"
)

// New builds the API server with its timeouts taken from configuration, so a
// deployment can tighten them without a rebuild.
func New(cfg config.Server, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}
