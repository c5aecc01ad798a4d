package knowledge

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// VectorDim is the embedding dimension used across the system. The pgvector
// column in db/migrations is declared with the same dimension; embedders
// that support output truncation (e.g. gemini-embedding-001) are configured
// to match.
const VectorDim = 768

// DefaultCategory is the catch-all category assigned when a caller saves
// knowledge without one.
const DefaultCategory = "general"

// Default search parameters.
const (
	DefaultTopK          = 4
	DefaultMinSimilarity = 0.5
)

// Sentinel errors for knowledge operations, checked with errors.Is().
var (
	// ErrValidation indicates a missing or empty required field.
	ErrValidation = errors.New("validation failed")

	// ErrRetrievalUnavailable indicates the embedding provider is
	// unreachable or returned an unusable response.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")

	// ErrNotFound indicates the referenced resource does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrStorage indicates a persistence-layer failure.
	ErrStorage = errors.New("storage failure")
)

// Resource is a canonical unit of tenant knowledge. Its embeddings are
// derived state owned exclusively by the resource: they are regenerated on
// every content change and removed when the resource is deleted.
type Resource struct {
	ID        uuid.UUID
	TenantID  string
	Category  string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Embedding is one retrieval unit derived from a resource: a chunk of its
// content plus the chunk's vector. TenantID is denormalized from the owning
// resource so scoped search needs no join.
type Embedding struct {
	ID         uuid.UUID
	ResourceID uuid.UUID
	TenantID   string
	Content    string
	Vector     []float32
}

// Match is a single search result.
type Match struct {
	Content    string
	Similarity float64
}

// SearchOption configures retrieval using the functional options pattern.
type SearchOption func(*searchConfig)

type searchConfig struct {
	topK          int
	minSimilarity float64
}

// WithTopK caps the number of results. Default is DefaultTopK.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		if k > 0 {
			c.topK = k
		}
	}
}

// WithMinSimilarity sets the relevance floor; results scoring below it are
// dropped. Default is DefaultMinSimilarity.
func WithMinSimilarity(s float64) SearchOption {
	return func(c *searchConfig) {
		c.minSimilarity = s
	}
}

func buildSearchConfig(base searchConfig, opts []SearchOption) *searchConfig {
	cfg := &base
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
