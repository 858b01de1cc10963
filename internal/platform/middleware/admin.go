package middleware

import (
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// RequireAdminToken gates administrative endpoints behind an X-Admin-Token
// header checked against a bcrypt hash, so the plaintext token never lives in
// configuration.
func RequireAdminToken(tokenHash string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get("X-Admin-Token")
			if tokenHash == "" || bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(token)) != nil {
				ctx := r.Context()
				logger.WarnContext(ctx, "admin token mismatch",
					"request_id", GetRequestID(ctx),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"admin token required"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
