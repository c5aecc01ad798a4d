package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tessera-ai/tessera/internal/agent"
	"github.com/tessera-ai/tessera/internal/knowledge"
	"github.com/tessera-ai/tessera/internal/log"
)

// writeJSON writes a JSON response with the given status code. Encoding
// failures after WriteHeader cannot reach the client; they are only
// logged.
func writeJSON(w http.ResponseWriter, logger log.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
	}
}

// ErrorResponse is the JSON body for error statuses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, logger log.Logger, status int, errName, message string) {
	writeJSON(w, logger, status, ErrorResponse{Error: errName, Message: message})
}

// writeDomainError maps knowledge and agent errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, logger log.Logger, err error) {
	switch {
	case errors.Is(err, knowledge.ErrValidation):
		writeError(w, logger, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, knowledge.ErrNotFound):
		writeError(w, logger, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, knowledge.ErrRetrievalUnavailable):
		writeError(w, logger, http.StatusBadGateway, "retrieval_unavailable", err.Error())
	case errors.Is(err, agent.ErrGenerationFailed):
		writeError(w, logger, http.StatusBadGateway, "generation_failed", agent.FallbackResponse)
	case errors.Is(err, knowledge.ErrStorage):
		writeError(w, logger, http.StatusServiceUnavailable, "storage_error", "storage is unavailable")
	default:
		logger.Error("unhandled request error", "error", err)
		writeError(w, logger, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
