// Package httputil provides HTTP handler utilities for consistent error handling
// and JSON encoding.
package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/platinummonkey/tenantguard/pkg/apperr"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteErrorMessage writes a JSON error response with a custom message
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	_ = WriteJSON(w, status, ErrorResponse{Error: message})
}

// StatusFor maps an error to its HTTP status by kind
func StatusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindPermissionDenied:
		return http.StatusForbidden
	case apperr.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// WriteAppError writes err with the status StatusFor chooses. Internal
// errors are reported without their message.
func WriteAppError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	resp := ErrorResponse{
		Error: http.StatusText(status),
		Kind:  string(apperr.KindOf(err)),
	}
	if status != http.StatusInternalServerError {
		resp.Message = err.Error()
	}
	_ = WriteJSON(w, status, resp)
}
