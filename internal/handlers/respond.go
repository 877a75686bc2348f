// Package handlers implements the HTTP endpoints of the import API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"

	"github.com/blaug210/budget-app/internal/domain"
	"github.com/blaug210/budget-app/internal/pipeline"
	"github.com/blaug210/budget-app/internal/registry"
)

type errorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, logger *log.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "status", status, "error", err)
	}
}

func writeError(w http.ResponseWriter, logger *log.Logger, status int, msg string, details ...string) {
	writeJSON(w, logger, status, errorResponse{Error: msg, Details: details})
}

// writeFailure maps pipeline and storage errors onto HTTP statuses
func writeFailure(w http.ResponseWriter, logger *log.Logger, err error) {
	var parseErr *pipeline.ParseError
	switch {
	case errors.As(err, &parseErr):
		writeError(w, logger, http.StatusUnprocessableEntity, "File parsing errors", parseErr.Messages...)
	case errors.Is(err, pipeline.ErrNoTransactions):
		writeError(w, logger, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, registry.ErrUnsupported):
		writeError(w, logger, http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, logger, http.StatusNotFound, err.Error())
	default:
		logger.Error("request failed", "error", err)
		writeError(w, logger, http.StatusInternalServerError, "internal error")
	}
}

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
