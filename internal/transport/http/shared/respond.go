// Package shared centralizes JSON response encoding and domain error
// translation so every handler returns the same envelopes.
package shared

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "provenance/pkg/domain-errors"
)

// WriteJSON encodes v with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WriteError maps a domain error to its HTTP status and writes the envelope.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	message := ""
	var dErr *dErrors.Error
	if errors.As(err, &dErr) {
		message = dErr.Message
	}
	WriteJSON(w, toHTTPStatus(code), ErrorResponse{
		Error:   string(code),
		Message: message,
	})
}

func toHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeValidation, dErrors.CodeBadRequest:
		return http.StatusBadRequest
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeAlreadyClaimed, dErrors.CodeInvalidState:
		return http.StatusConflict
	case dErrors.CodeHashMismatch, dErrors.CodeIntegrityViolation:
		return http.StatusConflict
	case dErrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case dErrors.CodeUnknownOutcome:
		// The write may or may not have committed; 502 tells the client to
		// check status before retrying blindly.
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
