package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"log/slog"

	"github.com/oppboard/oppboard/internal/engage"
)

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("encode response", slog.Any("err", err))
	}
}

type errorResponse struct {
	Error      string   `json:"error"`
	Violations []string `json:"violations,omitempty"`
	Allowed    []string `json:"allowed_actions,omitempty"`
}

// writeDomainError maps the workflow error taxonomy onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	var vErr *engage.ValidationError
	if errors.As(err, &vErr) {
		writeJSON(w, errorResponse{Error: "validation failed", Violations: vErr.Violations}, http.StatusBadRequest)
		return
	}

	var tErr *engage.InvalidTransitionError
	if errors.As(err, &tErr) {
		allowed := make([]string, len(tErr.Allowed))
		for i, a := range tErr.Allowed {
			allowed[i] = string(a)
		}
		writeJSON(w, errorResponse{Error: tErr.Error(), Allowed: allowed}, http.StatusConflict)
		return
	}

	switch {
	case errors.Is(err, engage.ErrDuplicateEngagement):
		writeJSON(w, errorResponse{Error: err.Error()}, http.StatusConflict)
	case errors.Is(err, engage.ErrUnauthorized):
		writeJSON(w, errorResponse{Error: err.Error()}, http.StatusForbidden)
	case errors.Is(err, engage.ErrNotFound):
		writeJSON(w, errorResponse{Error: err.Error()}, http.StatusNotFound)
	case errors.Is(err, engage.ErrExpired):
		writeJSON(w, errorResponse{Error: err.Error()}, http.StatusGone)
	case errors.Is(err, engage.ErrConflictRetry):
		// Internal retries are exhausted; the conflict is transient.
		writeJSON(w, errorResponse{Error: "conflicting update, please retry"}, http.StatusServiceUnavailable)
	default:
		logger.Error("internal error", slog.Any("err", err))
		writeJSON(w, errorResponse{Error: "internal error"}, http.StatusInternalServerError)
	}
}
