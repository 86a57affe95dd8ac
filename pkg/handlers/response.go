package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/semlens/semlens-engine/pkg/apperrors"
)

// ApiResponse wraps data in the envelope consumed by resolver clients.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// resolutionStatus maps resolver errors to HTTP status codes and stable
// error codes. Identifier-level failures are client errors; everything
// else is a 500.
func resolutionStatus(err error) (int, string) {
	var unknownNode *apperrors.UnknownNodeError
	var noPath *apperrors.NoPathError
	var noConcept *apperrors.NoApplicableConceptError
	var ambiguous *apperrors.AmbiguousResolutionError

	switch {
	case errors.As(err, &unknownNode):
		return http.StatusNotFound, "unknown_node"
	case errors.As(err, &noPath):
		return http.StatusNotFound, "no_join_path"
	case errors.As(err, &noConcept):
		return http.StatusNotFound, "no_applicable_concept"
	case errors.As(err, &ambiguous):
		return http.StatusConflict, "ambiguous_resolution"
	default:
		return http.StatusInternalServerError, "resolution_failed"
	}
}
