// Package handler contains the JSON HTTP handlers for PulseCheck.
//
// HANDLER RESPONSIBILITIES:
// 1. Decode and validate the request (path params, query, JSON body)
// 2. Call one service method with the caller's Principal
// 3. Write the response through writeJSON or writeError
//
// Handlers hold no business rules; authorization and invariants live in the
// service package.
package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON or writeError so the API has one
// success shape and one error shape:
//   {"error": "validation_error", "message": "invalid passkey", "field": "passKey"}
//
// The frontend can always rely on "error" and "message"; "field" is set when
// a single input caused the failure.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/pulsecheck/internal/apperror"
)

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`           // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"`         // Human-readable description
	Field   string `json:"field,omitempty"` // Input that caused it, when known
}

// writeJSON sends a JSON response with the given status code.
//
// Headers and status must be written before the body; once Encode starts
// writing, header changes are silently ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// errorBody maps a domain error to its status code and response body.
//
// ERROR MAPPING:
//
//	ErrValidation   → 400 validation_error
//	ErrConflict     → 400 conflict   (clients treat "already enrolled" as a bad request)
//	ErrUnauthorized → 401 unauthorized
//	ErrForbidden    → 403 forbidden
//	ErrNotFound     → 404 not_found
//	anything else   → 500 internal_error with a generic message
func errorBody(err error) (int, ErrorResponse) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		}
	}

	status, kind := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, apperror.ErrValidation):
		status, kind = http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrConflict):
		status, kind = http.StatusBadRequest, "conflict"
	case errors.Is(err, apperror.ErrUnauthorized):
		status, kind = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrForbidden):
		status, kind = http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		status, kind = http.StatusNotFound, "not_found"
	}
	if status == http.StatusInternalServerError {
		return status, ErrorResponse{Error: kind, Message: "An internal error occurred"}
	}
	return status, ErrorResponse{Error: kind, Message: appErr.Message, Field: appErr.Field}
}

// writeError sends err as an ErrorResponse. Internal errors are logged with
// the request id and never shown to the client: the raw message may contain
// SQL or file paths.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, body := errorBody(err)
	if status == http.StatusInternalServerError {
		logger.LogAttrs(r.Context(), slog.LevelError, "request failed",
			slog.String("request_id", chimiddleware.GetReqID(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	writeJSON(w, status, body)
}
