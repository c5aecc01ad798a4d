package knowledge

import (
	"context"
	"errors"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
)

// fakeEmbedder implements ai.Embedder with canned behavior.
type fakeEmbedder struct {
	embedFunc func(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error)
	lastReq   *ai.EmbedRequest
}

func (f *fakeEmbedder) Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	f.lastReq = req
	if f.embedFunc != nil {
		return f.embedFunc(ctx, req)
	}
	embeddings := make([]*ai.Embedding, len(req.Input))
	for i := range req.Input {
		embeddings[i] = &ai.Embedding{Embedding: []float32{0.1, 0.2, 0.3}}
	}
	return &ai.EmbedResponse{Embeddings: embeddings}, nil
}

func (f *fakeEmbedder) Name() string { return "fake/embedder" }

func (f *fakeEmbedder) Register(r api.Registry) {}

func TestEmbedQueryCleansNewlines(t *testing.T) {
	fake := &fakeEmbedder{}
	e := NewEmbedder(fake)

	vec, err := e.EmbedQuery(context.Background(), "what is\nmy favorite\\nfood?")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("EmbedQuery() vector length = %d, want 3", len(vec))
	}

	got := fake.lastReq.Input[0].Content[0].Text
	want := "what is my favorite food?"
	if got != want {
		t.Errorf("embedded text = %q, want %q", got, want)
	}
}

func TestEmbedQueryProviderFailure(t *testing.T) {
	fake := &fakeEmbedder{
		embedFunc: func(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
			return nil, errors.New("connection refused")
		},
	}
	e := NewEmbedder(fake)

	if _, err := e.EmbedQuery(context.Background(), "anything"); !errors.Is(err, ErrRetrievalUnavailable) {
		t.Fatalf("EmbedQuery() = %v, want ErrRetrievalUnavailable", err)
	}
}

func TestEmbedChunksPositional(t *testing.T) {
	fake := &fakeEmbedder{
		embedFunc: func(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
			embeddings := make([]*ai.Embedding, len(req.Input))
			for i := range req.Input {
				embeddings[i] = &ai.Embedding{Embedding: []float32{float32(i)}}
			}
			return &ai.EmbedResponse{Embeddings: embeddings}, nil
		},
	}
	e := NewEmbedder(fake)

	// Duplicate texts must still map back by position.
	vectors, err := e.EmbedChunks(context.Background(), []string{"same", "same", "other"})
	if err != nil {
		t.Fatalf("EmbedChunks() error = %v", err)
	}
	if len(vectors) != 3 {
		t.Fatalf("EmbedChunks() returned %d vectors, want 3", len(vectors))
	}
	for i, v := range vectors {
		if v[0] != float32(i) {
			t.Errorf("vector %d = %v, want position-encoded %d", i, v, i)
		}
	}
}

func TestEmbedChunksVerbatim(t *testing.T) {
	fake := &fakeEmbedder{}
	e := NewEmbedder(fake)

	if _, err := e.EmbedChunks(context.Background(), []string{"line with\nnewline"}); err != nil {
		t.Fatalf("EmbedChunks() error = %v", err)
	}
	if got := fake.lastReq.Input[0].Content[0].Text; got != "line with\nnewline" {
		t.Errorf("chunk text was altered before embedding: %q", got)
	}
}

func TestEmbedChunksCountMismatch(t *testing.T) {
	fake := &fakeEmbedder{
		embedFunc: func(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
			return &ai.EmbedResponse{Embeddings: []*ai.Embedding{{Embedding: []float32{1}}}}, nil
		},
	}
	e := NewEmbedder(fake)

	if _, err := e.EmbedChunks(context.Background(), []string{"a", "b"}); !errors.Is(err, ErrRetrievalUnavailable) {
		t.Fatalf("EmbedChunks() = %v, want ErrRetrievalUnavailable on count mismatch", err)
	}
}

func TestEmbedChunksEmptyInput(t *testing.T) {
	e := NewEmbedder(&fakeEmbedder{})

	vectors, err := e.EmbedChunks(context.Background(), nil)
	if err != nil {
		t.Fatalf("EmbedChunks(nil) error = %v", err)
	}
	if vectors != nil {
		t.Errorf("EmbedChunks(nil) = %v, want nil", vectors)
	}
}
