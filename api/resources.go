package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/tessera-ai/tessera/internal/knowledge"
	"github.com/tessera-ai/tessera/internal/log"
)

// KnowledgeService is the slice of the knowledge engine the REST
// endpoints need.
type KnowledgeService interface {
	Ingest(ctx context.Context, tenantID, content, category string) (knowledge.Resource, error)
	Reingest(ctx context.Context, tenantID string, id uuid.UUID, content string) (knowledge.Resource, error)
	Remove(ctx context.Context, tenantID string, id uuid.UUID) error
	Retrieve(ctx context.Context, tenantID, query string, opts ...knowledge.SearchOption) ([]knowledge.Match, error)
	ResourcesFor(ctx context.Context, tenantID string) ([]knowledge.Resource, error)
}

// ResourceHandler serves resource CRUD and similarity search.
type ResourceHandler struct {
	engine KnowledgeService
	logger log.Logger
}

// NewResourceHandler creates a resource handler.
func NewResourceHandler(engine KnowledgeService, logger log.Logger) *ResourceHandler {
	return &ResourceHandler{engine: engine, logger: logger}
}

// RegisterRoutes registers resource routes on the given mux.
func (h *ResourceHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/resources", h.create)
	mux.HandleFunc("GET /api/resources", h.list)
	mux.HandleFunc("PUT /api/resources/{id}", h.update)
	mux.HandleFunc("DELETE /api/resources/{id}", h.remove)
	mux.HandleFunc("GET /api/search", h.search)
}

// ResourceResponse is the JSON shape of a resource.
type ResourceResponse struct {
	ID        uuid.UUID `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Category  string    `json:"category"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toResourceResponse(res knowledge.Resource) ResourceResponse {
	return ResourceResponse{
		ID:        res.ID,
		TenantID:  res.TenantID,
		Category:  res.Category,
		Content:   res.Content,
		CreatedAt: res.CreatedAt,
		UpdatedAt: res.UpdatedAt,
	}
}

// CreateResourceRequest is the POST /api/resources body.
type CreateResourceRequest struct {
	TenantID string `json:"tenant_id"`
	Content  string `json:"content"`
	Category string `json:"category,omitempty"`
}

func (h *ResourceHandler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateResourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	res, err := h.engine.Ingest(r.Context(), req.TenantID, req.Content, req.Category)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, toResourceResponse(res))
}

func (h *ResourceHandler) list(w http.ResponseWriter, r *http.Request) {
	resources, err := h.engine.ResourcesFor(r.Context(), r.URL.Query().Get("tenant_id"))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	out := make([]ResourceResponse, 0, len(resources))
	for _, res := range resources {
		out = append(out, toResourceResponse(res))
	}
	writeJSON(w, h.logger, http.StatusOK, out)
}

// UpdateResourceRequest is the PUT /api/resources/{id} body.
type UpdateResourceRequest struct {
	TenantID string `json:"tenant_id"`
	Content  string `json:"content"`
}

func (h *ResourceHandler) update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_id", "resource id must be a UUID")
		return
	}

	var req UpdateResourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	res, err := h.engine.Reingest(r.Context(), req.TenantID, id, req.Content)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, toResourceResponse(res))
}

func (h *ResourceHandler) remove(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_id", "resource id must be a UUID")
		return
	}

	if err := h.engine.Remove(r.Context(), r.URL.Query().Get("tenant_id"), id); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MatchResponse is one similarity search hit.
type MatchResponse struct {
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

func (h *ResourceHandler) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var opts []knowledge.SearchOption
	if v := q.Get("top_k"); v != "" {
		k, err := strconv.Atoi(v)
		if err != nil || k <= 0 {
			writeError(w, h.logger, http.StatusBadRequest, "invalid_top_k", "top_k must be a positive integer")
			return
		}
		opts = append(opts, knowledge.WithTopK(k))
	}
	if v := q.Get("min_similarity"); v != "" {
		s, err := strconv.ParseFloat(v, 64)
		if err != nil || s < 0 || s > 1 {
			writeError(w, h.logger, http.StatusBadRequest, "invalid_min_similarity", "min_similarity must be between 0 and 1")
			return
		}
		opts = append(opts, knowledge.WithMinSimilarity(s))
	}

	matches, err := h.engine.Retrieve(r.Context(), q.Get("tenant_id"), q.Get("q"), opts...)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	out := make([]MatchResponse, 0, len(matches))
	for _, m := range matches {
		out = append(out, MatchResponse{Content: m.Content, Similarity: m.Similarity})
	}
	writeJSON(w, h.logger, http.StatusOK, out)
}
