package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/tessera-ai/tessera/internal/knowledge"
	"github.com/tessera-ai/tessera/internal/log"
	"github.com/tessera-ai/tessera/internal/testutil"
)

// mockEngine records tool-driven knowledge calls.
type mockEngine struct {
	retrieveFunc func(ctx context.Context, tenantID, query string, opts ...knowledge.SearchOption) ([]knowledge.Match, error)
	ingests      []string
	upserts      []string
	ingestErr    error
	upsertErr    error
}

func (m *mockEngine) Retrieve(ctx context.Context, tenantID, query string, opts ...knowledge.SearchOption) ([]knowledge.Match, error) {
	if m.retrieveFunc != nil {
		return m.retrieveFunc(ctx, tenantID, query, opts...)
	}
	return nil, nil
}

func (m *mockEngine) Ingest(ctx context.Context, tenantID, content, category string) (knowledge.Resource, error) {
	if m.ingestErr != nil {
		return knowledge.Resource{}, m.ingestErr
	}
	m.ingests = append(m.ingests, tenantID+"|"+content+"|"+category)
	return knowledge.Resource{TenantID: tenantID, Content: content, Category: category}, nil
}

func (m *mockEngine) Upsert(ctx context.Context, tenantID, content, category string) (knowledge.Resource, error) {
	if m.upsertErr != nil {
		return knowledge.Resource{}, m.upsertErr
	}
	m.upserts = append(m.upserts, tenantID+"|"+content+"|"+category)
	return knowledge.Resource{TenantID: tenantID, Content: content, Category: category}, nil
}

func setupAgent(t *testing.T, llm *testutil.MockLLM, engine Engine, maxTurns int) *Agent {
	t.Helper()

	g := genkit.Init(context.Background())
	llm.RegisterModel(g)

	a, err := New(Config{
		Genkit:    g,
		Engine:    engine,
		Logger:    log.NewNop(),
		ModelName: "mock/test-model",
		MaxTurns:  maxTurns,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return a
}

func TestConversePlainAnswer(t *testing.T) {
	llm := testutil.NewMockLLM("fallback")
	llm.AddResponse("hello", "Hi there!")
	a := setupAgent(t, llm, &mockEngine{}, 5)

	got, err := a.Converse(context.Background(), "tenant-a", "", "hello", nil)
	if err != nil {
		t.Fatalf("Converse() error = %v", err)
	}
	if got != "Hi there!" {
		t.Errorf("Converse() = %q, want %q", got, "Hi there!")
	}
}

func TestConverseSearchTool(t *testing.T) {
	llm := testutil.NewMockLLM("I found: pizza")
	llm.AddToolResponseOnce("favorite food",
		[]*ai.ToolRequest{{
			Name:  "search",
			Ref:   "call-1",
			Input: map[string]any{"question": "favorite food"},
		}}, "")

	var gotQuery string
	engine := &mockEngine{
		retrieveFunc: func(ctx context.Context, tenantID, query string, opts ...knowledge.SearchOption) ([]knowledge.Match, error) {
			gotQuery = query
			return []knowledge.Match{{Content: "Likes pizza", Similarity: 0.9}}, nil
		},
	}
	a := setupAgent(t, llm, engine, 5)

	got, err := a.Converse(context.Background(), "tenant-a", "", "what is my favorite food?", nil)
	if err != nil {
		t.Fatalf("Converse() error = %v", err)
	}
	if gotQuery != "favorite food" {
		t.Errorf("search query = %q, want %q", gotQuery, "favorite food")
	}
	if got != "I found: pizza" {
		t.Errorf("Converse() = %q", got)
	}
}

func TestConverseSaveTool(t *testing.T) {
	llm := testutil.NewMockLLM("Saved it.")
	llm.AddToolResponseOnce("remember",
		[]*ai.ToolRequest{{
			Name:  "save",
			Ref:   "call-1",
			Input: map[string]any{"content": "Ada keeps bees", "category": "hobbies"},
		}}, "")

	engine := &mockEngine{}
	a := setupAgent(t, llm, engine, 5)

	if _, err := a.Converse(context.Background(), "tenant-a", "", "remember that I keep bees", nil); err != nil {
		t.Fatalf("Converse() error = %v", err)
	}
	if len(engine.ingests) != 1 || engine.ingests[0] != "tenant-a|Ada keeps bees|hobbies" {
		t.Errorf("ingests = %v", engine.ingests)
	}
}

func TestConverseUpdateTool(t *testing.T) {
	llm := testutil.NewMockLLM("Updated.")
	llm.AddToolResponseOnce("my name is",
		[]*ai.ToolRequest{{
			Name:  "update",
			Ref:   "call-1",
			Input: map[string]any{"content": "User's name is Grace", "category": "user_name"},
		}}, "")

	engine := &mockEngine{}
	a := setupAgent(t, llm, engine, 5)

	if _, err := a.Converse(context.Background(), "tenant-a", "", "actually my name is Grace", nil); err != nil {
		t.Fatalf("Converse() error = %v", err)
	}
	if len(engine.upserts) != 1 || engine.upserts[0] != "tenant-a|User's name is Grace|user_name" {
		t.Errorf("upserts = %v", engine.upserts)
	}
	if len(engine.ingests) != 0 {
		t.Errorf("update must not create, ingests = %v", engine.ingests)
	}
}

func TestConverseToolFailureRecovers(t *testing.T) {
	llm := testutil.NewMockLLM("The knowledge base is unavailable right now.")
	llm.AddToolResponseOnce("question",
		[]*ai.ToolRequest{{
			Name:  "search",
			Ref:   "call-1",
			Input: map[string]any{"question": "anything"},
		}}, "")

	engine := &mockEngine{
		retrieveFunc: func(ctx context.Context, tenantID, query string, opts ...knowledge.SearchOption) ([]knowledge.Match, error) {
			return nil, knowledge.ErrRetrievalUnavailable
		},
	}
	a := setupAgent(t, llm, engine, 5)

	// A failing tool must feed a textual fallback back to the model,
	// not surface as a request error.
	got, err := a.Converse(context.Background(), "tenant-a", "", "a question", nil)
	if err != nil {
		t.Fatalf("Converse() error = %v", err)
	}
	if got == "" {
		t.Error("Converse() returned empty text")
	}
}

func TestConverseTurnCeiling(t *testing.T) {
	llm := testutil.NewMockLLM("still thinking")
	// Every turn requests another tool call; the loop must stop at the
	// ceiling and return text without error.
	llm.AddToolResponse("loop",
		[]*ai.ToolRequest{{
			Name:  "search",
			Ref:   "call",
			Input: map[string]any{"question": "loop"},
		}}, "partial answer")

	a := setupAgent(t, llm, &mockEngine{}, 3)

	got, err := a.Converse(context.Background(), "tenant-a", "", "loop forever", nil)
	if err != nil {
		t.Fatalf("Converse() error = %v", err)
	}
	if got != "partial answer" {
		t.Errorf("Converse() = %q, want the last partial text", got)
	}
	if calls := len(llm.Calls()); calls != 3 {
		t.Errorf("model called %d times, want exactly the ceiling of 3", calls)
	}
}

func TestConverseGenerationFailure(t *testing.T) {
	llm := testutil.NewMockLLM("unused")
	llm.FailWith(errors.New("provider exploded"))
	a := setupAgent(t, llm, &mockEngine{}, 5)

	got, err := a.Converse(context.Background(), "tenant-a", "", "hello", nil)
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("Converse() err = %v, want ErrGenerationFailed", err)
	}
	if got != FallbackResponse {
		t.Errorf("Converse() = %q, want graceful fallback", got)
	}
}

func TestConverseValidation(t *testing.T) {
	llm := testutil.NewMockLLM("unused")
	a := setupAgent(t, llm, &mockEngine{}, 5)

	if _, err := a.Converse(context.Background(), "", "", "hello", nil); !errors.Is(err, knowledge.ErrValidation) {
		t.Errorf("empty tenant: err = %v, want ErrValidation", err)
	}
	if _, err := a.Converse(context.Background(), "tenant-a", "", "  ", nil); !errors.Is(err, knowledge.ErrValidation) {
		t.Errorf("blank message: err = %v, want ErrValidation", err)
	}
	if _, err := a.Converse(context.Background(), "tenant-a", "", "hi", []Message{{Role: "tool", Content: "x"}}); !errors.Is(err, knowledge.ErrValidation) {
		t.Errorf("bad history role: err = %v, want ErrValidation", err)
	}
}

func TestConverseHistoryPassedThrough(t *testing.T) {
	llm := testutil.NewMockLLM("default")
	llm.AddResponse("follow-up", "Answered with context.")
	a := setupAgent(t, llm, &mockEngine{}, 5)

	history := []Message{
		{Role: RoleUser, Content: "earlier question"},
		{Role: RoleAssistant, Content: "earlier answer"},
		{Role: RoleUser, Content: ""},
	}
	got, err := a.Converse(context.Background(), "tenant-a", "", "a follow-up", history)
	if err != nil {
		t.Fatalf("Converse() error = %v", err)
	}
	if got != "Answered with context." {
		t.Errorf("Converse() = %q", got)
	}
}

func TestParseToolCall(t *testing.T) {
	tests := []struct {
		name    string
		req     *ai.ToolRequest
		wantErr bool
	}{
		{
			name: "search",
			req:  &ai.ToolRequest{Name: "search", Input: map[string]any{"question": "q"}},
		},
		{
			name: "save without category",
			req:  &ai.ToolRequest{Name: "save", Input: map[string]any{"content": "c"}},
		},
		{
			name: "update",
			req:  &ai.ToolRequest{Name: "update", Input: map[string]any{"content": "c", "category": "k"}},
		},
		{
			name:    "unknown tool",
			req:     &ai.ToolRequest{Name: "delete_everything", Input: map[string]any{}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call, err := parseToolCall(tt.req)
			if tt.wantErr {
				if err == nil {
					t.Fatal("parseToolCall() succeeded, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseToolCall() error = %v", err)
			}
			if call.name != tt.req.Name {
				t.Errorf("call.name = %q, want %q", call.name, tt.req.Name)
			}
		})
	}
}

func TestExecSearchCapsResults(t *testing.T) {
	engine := &mockEngine{
		retrieveFunc: func(ctx context.Context, tenantID, query string, opts ...knowledge.SearchOption) ([]knowledge.Match, error) {
			return []knowledge.Match{
				{Content: "one"}, {Content: "two"}, {Content: "three"}, {Content: "four"},
			}, nil
		},
	}
	llm := testutil.NewMockLLM("unused")
	a := setupAgent(t, llm, engine, 5)

	out := a.execSearch(context.Background(), "tenant-a", SearchInput{Question: "q"})
	if strings.Contains(out, "four") {
		t.Errorf("result not capped: %q", out)
	}
	if !strings.Contains(out, "one") || !strings.Contains(out, "three") {
		t.Errorf("missing expected results: %q", out)
	}
}

func TestExecSearchNoResults(t *testing.T) {
	llm := testutil.NewMockLLM("unused")
	a := setupAgent(t, llm, &mockEngine{}, 5)

	if out := a.execSearch(context.Background(), "tenant-a", SearchInput{Question: "q"}); out != msgNoResults {
		t.Errorf("execSearch() = %q, want %q", out, msgNoResults)
	}
}
