package store

import (
	"context"
	"testing"

	"github.com/firebase/genkit/go/genkit"

	"github.com/tessera-ai/tessera/internal/knowledge"
	"github.com/tessera-ai/tessera/internal/log"
	"github.com/tessera-ai/tessera/internal/testutil"
)

// TestEngineIngestRetrieve drives the full pipeline against real storage:
// content is chunked and embedded on ingest, then comes back through
// similarity search, scoped to the ingesting tenant.
func TestEngineIngestRetrieve(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	mock := testutil.NewMockEmbedder(knowledge.VectorDim)
	g := genkit.Init(ctx)
	emb := mock.RegisterEmbedder(g)

	engine := knowledge.NewEngine(s, s, knowledge.NewEmbedder(emb), log.NewNop())

	// Pin vectors so the fact and the question score cosine 1 while the
	// unrelated fact stays orthogonal, below the relevance floor.
	fact := "The quarterly revenue grew 12%"
	question := "How did quarterly revenue change?"
	mock.SetVector(fact, unitVec(0))
	mock.SetVector(question, unitVec(0))
	mock.SetVector("The office plant needs watering", unitVec(1))

	if _, err := engine.Ingest(ctx, "analyst", fact+".", "finance"); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if _, err := engine.Ingest(ctx, "analyst", "The office plant needs watering.", "chores"); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	matches, err := engine.Retrieve(ctx, "analyst", question)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("Retrieve() = %+v, want exactly the revenue fact", matches)
	}
	if matches[0].Content != fact {
		t.Errorf("match content = %q, want %q", matches[0].Content, fact)
	}
	if matches[0].Similarity < knowledge.DefaultMinSimilarity {
		t.Errorf("similarity = %v, want >= %v", matches[0].Similarity, knowledge.DefaultMinSimilarity)
	}

	// Another tenant asking the same question sees nothing.
	foreign, err := engine.Retrieve(ctx, "other-tenant", question)
	if err != nil {
		t.Fatalf("Retrieve(other-tenant) error = %v", err)
	}
	if len(foreign) != 0 {
		t.Errorf("Retrieve(other-tenant) = %+v, want no cross-tenant results", foreign)
	}
}
