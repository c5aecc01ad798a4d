package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
)

// Embedder generates embedding vectors through a Genkit ai.Embedder.
//
// Chunk batches are embedded verbatim in a single provider round-trip;
// query text is cleaned before embedding. The asymmetry matters: corpus
// vectors must stay reproducible against previously stored chunks, while
// queries arrive with incidental newlines that would skew similarity.
type Embedder struct {
	embedder ai.Embedder
}

// NewEmbedder wraps a Genkit embedder.
func NewEmbedder(embedder ai.Embedder) *Embedder {
	return &Embedder{embedder: embedder}
}

// EmbedQuery embeds a single query string, cleaning newline noise first.
func (e *Embedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	resp, err := e.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(cleanQueryText(query), nil)},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: embedding query: %v", ErrRetrievalUnavailable, err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding returned for query", ErrRetrievalUnavailable)
	}
	return resp.Embeddings[0].Embedding, nil
}

// EmbedChunks embeds a batch of chunk texts in one provider round-trip.
// The result has exactly one vector per input, in input order; callers zip
// vectors with chunks by index since chunk texts may repeat.
func (e *Embedder) EmbedChunks(ctx context.Context, chunks []string) ([][]float32, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	docs := make([]*ai.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = ai.DocumentFromText(c, nil)
	}

	resp, err := e.embedder.Embed(ctx, &ai.EmbedRequest{Input: docs})
	if err != nil {
		return nil, fmt.Errorf("%w: embedding %d chunks: %v", ErrRetrievalUnavailable, len(chunks), err)
	}
	if len(resp.Embeddings) != len(chunks) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d chunks", ErrRetrievalUnavailable, len(resp.Embeddings), len(chunks))
	}

	vectors := make([][]float32, len(chunks))
	for i, emb := range resp.Embeddings {
		if len(emb.Embedding) == 0 {
			return nil, fmt.Errorf("%w: empty embedding at index %d", ErrRetrievalUnavailable, i)
		}
		vectors[i] = emb.Embedding
	}
	return vectors, nil
}

// cleanQueryText folds escaped and literal newlines into spaces.
func cleanQueryText(s string) string {
	s = strings.ReplaceAll(s, `\n`, " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}
