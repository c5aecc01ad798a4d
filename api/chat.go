package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/tessera-ai/tessera/internal/agent"
	"github.com/tessera-ai/tessera/internal/log"
)

// ChatService runs one conversation turn for a tenant.
type ChatService interface {
	Converse(ctx context.Context, tenantID, systemPrompt, userMessage string, history []agent.Message) (string, error)
}

// ChatHandler serves the chat endpoint.
type ChatHandler struct {
	agent  ChatService
	logger log.Logger
}

// NewChatHandler creates a chat handler.
func NewChatHandler(agent ChatService, logger log.Logger) *ChatHandler {
	return &ChatHandler{agent: agent, logger: logger}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", h.handleChat)
}

// ChatRequest is the POST /api/chat body. History holds prior turns,
// oldest first; the current user message goes in Message. System, when
// set, replaces the default system prompt for this turn only.
type ChatRequest struct {
	TenantID string          `json:"tenant_id"`
	System   string          `json:"system,omitempty"`
	Message  string          `json:"message"`
	History  []agent.Message `json:"history,omitempty"`
}

// ChatResponse is the POST /api/chat reply.
type ChatResponse struct {
	Reply string `json:"reply"`
}

func (h *ChatHandler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	reply, err := h.agent.Converse(r.Context(), req.TenantID, req.System, req.Message, req.History)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, ChatResponse{Reply: reply})
}
