package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/tessera-ai/tessera/internal/agent"
	"github.com/tessera-ai/tessera/internal/knowledge"
	"github.com/tessera-ai/tessera/internal/log"
)

// stubKnowledge is a canned KnowledgeService for handler tests.
type stubKnowledge struct {
	ingestFunc    func(ctx context.Context, tenantID, content, category string) (knowledge.Resource, error)
	reingestFunc  func(ctx context.Context, tenantID string, id uuid.UUID, content string) (knowledge.Resource, error)
	removeFunc    func(ctx context.Context, tenantID string, id uuid.UUID) error
	retrieveFunc  func(ctx context.Context, tenantID, query string, opts ...knowledge.SearchOption) ([]knowledge.Match, error)
	resourcesFunc func(ctx context.Context, tenantID string) ([]knowledge.Resource, error)
}

func (s *stubKnowledge) Ingest(ctx context.Context, tenantID, content, category string) (knowledge.Resource, error) {
	if s.ingestFunc != nil {
		return s.ingestFunc(ctx, tenantID, content, category)
	}
	return knowledge.Resource{ID: uuid.New(), TenantID: tenantID, Content: content, Category: category}, nil
}

func (s *stubKnowledge) Reingest(ctx context.Context, tenantID string, id uuid.UUID, content string) (knowledge.Resource, error) {
	if s.reingestFunc != nil {
		return s.reingestFunc(ctx, tenantID, id, content)
	}
	return knowledge.Resource{ID: id, TenantID: tenantID, Content: content}, nil
}

func (s *stubKnowledge) Remove(ctx context.Context, tenantID string, id uuid.UUID) error {
	if s.removeFunc != nil {
		return s.removeFunc(ctx, tenantID, id)
	}
	return nil
}

func (s *stubKnowledge) Retrieve(ctx context.Context, tenantID, query string, opts ...knowledge.SearchOption) ([]knowledge.Match, error) {
	if s.retrieveFunc != nil {
		return s.retrieveFunc(ctx, tenantID, query, opts...)
	}
	return nil, nil
}

func (s *stubKnowledge) ResourcesFor(ctx context.Context, tenantID string) ([]knowledge.Resource, error) {
	if s.resourcesFunc != nil {
		return s.resourcesFunc(ctx, tenantID)
	}
	return nil, nil
}

// stubChat is a canned ChatService.
type stubChat struct {
	converseFunc func(ctx context.Context, tenantID, systemPrompt, userMessage string, history []agent.Message) (string, error)
}

func (s *stubChat) Converse(ctx context.Context, tenantID, systemPrompt, userMessage string, history []agent.Message) (string, error) {
	if s.converseFunc != nil {
		return s.converseFunc(ctx, tenantID, systemPrompt, userMessage, history)
	}
	return "stub reply", nil
}

func newTestServer(engine KnowledgeService, chat ChatService) *httptest.Server {
	if engine == nil {
		engine = &stubKnowledge{}
	}
	if chat == nil {
		chat = &stubChat{}
	}
	s := NewServer(engine, chat, nil, log.NewNop())
	return httptest.NewServer(s.Handler())
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(nil, nil)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /health status = %d", resp.StatusCode)
	}
}

func TestReadyWithoutPool(t *testing.T) {
	ts := newTestServer(nil, nil)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/ready")
	if err != nil {
		t.Fatalf("GET /ready error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("GET /ready without a pool status = %d, want 503", resp.StatusCode)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	h := chain(panicking, recoveryMiddleware(log.NewNop()))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status after panic = %d, want 500", rec.Code)
	}
}
