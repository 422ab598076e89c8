package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"threads/internal/apperr"
	"threads/internal/constants"
)

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

func badRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, constants.ErrCodeInvalidRequest, message)
}

func unauthorized(w http.ResponseWriter, code, message string) {
	writeError(w, http.StatusUnauthorized, code, message)
}

func internalError(w http.ResponseWriter) {
	writeError(w, http.StatusInternalServerError, constants.ErrCodeInternal, "An internal error occurred")
}

func statusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindAuth:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeAppError renders a service error. Classified errors keep their code and
// safe message; anything else is logged and reported as an internal error.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		slog.Error("error handling request", "component", "api", "method", r.Method, "path", r.URL.Path, "error", err)
		internalError(w)
		return
	}

	switch appErr.Kind {
	case apperr.KindInternal:
		slog.Error("error handling request", "component", "api", "method", r.Method, "path", r.URL.Path, "error", err)
		internalError(w)
		return
	case apperr.KindUpstream:
		slog.Error("upstream failure", "component", "api", "method", r.Method, "path", r.URL.Path, "error", err)
	}

	writeError(w, statusForKind(appErr.Kind), appErr.Code, appErr.Message)
}
