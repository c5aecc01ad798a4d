package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/tessera-ai/tessera/internal/log"
)

// ResourceStore persists canonical resources. Implementations report
// missing rows through the ok return, not an error, so callers can map
// absence to ErrNotFound themselves.
type ResourceStore interface {
	Create(ctx context.Context, res Resource) error
	Get(ctx context.Context, id uuid.UUID) (Resource, bool, error)
	ByTenant(ctx context.Context, tenantID string) ([]Resource, error)
	NewestInCategory(ctx context.Context, tenantID, category string) (Resource, bool, error)
	UpdateContent(ctx context.Context, id uuid.UUID, content string) (Resource, bool, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

// VectorStore persists and searches derived embeddings.
type VectorStore interface {
	Insert(ctx context.Context, rows []Embedding) error
	DeleteByResource(ctx context.Context, resourceID uuid.UUID) error
	Search(ctx context.Context, tenantID string, vector []float32, minSimilarity float64, limit int) ([]Match, error)
}

// Engine is the knowledge pipeline: it chunks and embeds content on the
// way in and answers similarity queries on the way out. Every operation
// is scoped to a single tenant.
type Engine struct {
	resources ResourceStore
	vectors   VectorStore
	embedder  *Embedder
	logger    log.Logger

	// searchDefaults apply to Retrieve calls that pass no options.
	searchDefaults searchConfig
}

// EngineOption configures optional Engine behavior.
type EngineOption func(*Engine)

// WithSearchDefaults overrides the engine-wide retrieval defaults. Callers
// of Retrieve can still override per call. Out-of-range values keep the
// package defaults.
func WithSearchDefaults(topK int, minSimilarity float64) EngineOption {
	return func(e *Engine) {
		if topK > 0 {
			e.searchDefaults.topK = topK
		}
		if minSimilarity >= 0 && minSimilarity <= 1 {
			e.searchDefaults.minSimilarity = minSimilarity
		}
	}
}

// NewEngine builds an Engine over the given stores and embedder.
func NewEngine(resources ResourceStore, vectors VectorStore, embedder *Embedder, logger log.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		resources: resources,
		vectors:   vectors,
		embedder:  embedder,
		logger:    logger,
		searchDefaults: searchConfig{
			topK:          DefaultTopK,
			minSimilarity: DefaultMinSimilarity,
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ingest creates a resource and its embeddings, returning the new
// resource. The resource row is written first so an embedding failure
// leaves retryable canonical content rather than nothing; the error is
// still returned so the caller knows retrieval will not see it yet.
func (e *Engine) Ingest(ctx context.Context, tenantID, content, category string) (Resource, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return Resource{}, fmt.Errorf("%w: tenant id is required", ErrValidation)
	}
	if strings.TrimSpace(content) == "" {
		return Resource{}, fmt.Errorf("%w: content is required", ErrValidation)
	}
	category = strings.TrimSpace(category)
	if category == "" {
		category = DefaultCategory
	}

	res := Resource{
		ID:       uuid.New(),
		TenantID: tenantID,
		Category: category,
		Content:  content,
	}
	if err := e.resources.Create(ctx, res); err != nil {
		return Resource{}, fmt.Errorf("creating resource: %w", err)
	}

	if err := e.embed(ctx, res); err != nil {
		return res, err
	}

	e.logger.Info("resource ingested",
		"resource_id", res.ID,
		"tenant_id", tenantID,
		"category", category)
	return res, nil
}

// Reingest replaces a resource's content and regenerates its embeddings.
// Old embeddings are deleted before new ones are generated, so a failure
// mid-way leaves the resource with no embeddings rather than stale ones.
func (e *Engine) Reingest(ctx context.Context, tenantID string, id uuid.UUID, content string) (Resource, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return Resource{}, fmt.Errorf("%w: tenant id is required", ErrValidation)
	}
	if strings.TrimSpace(content) == "" {
		return Resource{}, fmt.Errorf("%w: content is required", ErrValidation)
	}

	existing, ok, err := e.resources.Get(ctx, id)
	if err != nil {
		return Resource{}, fmt.Errorf("loading resource: %w", err)
	}
	if !ok || existing.TenantID != tenantID {
		return Resource{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	updated, ok, err := e.resources.UpdateContent(ctx, id, content)
	if err != nil {
		return Resource{}, fmt.Errorf("updating resource: %w", err)
	}
	if !ok {
		return Resource{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if err := e.vectors.DeleteByResource(ctx, id); err != nil {
		return Resource{}, fmt.Errorf("clearing embeddings: %w", err)
	}

	if err := e.embed(ctx, updated); err != nil {
		return updated, err
	}

	e.logger.Info("resource reingested",
		"resource_id", id,
		"tenant_id", tenantID)
	return updated, nil
}

// Remove deletes a resource and all of its embeddings.
func (e *Engine) Remove(ctx context.Context, tenantID string, id uuid.UUID) error {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return fmt.Errorf("%w: tenant id is required", ErrValidation)
	}

	existing, ok, err := e.resources.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("loading resource: %w", err)
	}
	if !ok || existing.TenantID != tenantID {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	deleted, err := e.resources.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("deleting resource: %w", err)
	}
	if !deleted {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	e.logger.Info("resource removed",
		"resource_id", id,
		"tenant_id", tenantID)
	return nil
}

// Upsert saves content into a category: if the tenant already has a
// resource in that category the most recently updated one is replaced,
// otherwise a new resource is created. One resource per category is the
// steady state this converges toward.
func (e *Engine) Upsert(ctx context.Context, tenantID, content, category string) (Resource, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return Resource{}, fmt.Errorf("%w: tenant id is required", ErrValidation)
	}
	if strings.TrimSpace(content) == "" {
		return Resource{}, fmt.Errorf("%w: content is required", ErrValidation)
	}
	category = strings.TrimSpace(category)
	if category == "" {
		category = DefaultCategory
	}

	existing, ok, err := e.resources.NewestInCategory(ctx, tenantID, category)
	if err != nil {
		return Resource{}, fmt.Errorf("finding category resource: %w", err)
	}
	if ok {
		return e.Reingest(ctx, tenantID, existing.ID, content)
	}
	return e.Ingest(ctx, tenantID, content, category)
}

// Retrieve embeds the query and returns the most similar chunks for the
// tenant, best first. No results is a normal outcome and yields an empty
// slice, not an error.
func (e *Engine) Retrieve(ctx context.Context, tenantID, query string, opts ...SearchOption) ([]Match, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant id is required", ErrValidation)
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is required", ErrValidation)
	}
	cfg := buildSearchConfig(e.searchDefaults, opts)

	vector, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	matches, err := e.vectors.Search(ctx, tenantID, vector, cfg.minSimilarity, cfg.topK)
	if err != nil {
		return nil, fmt.Errorf("searching embeddings: %w", err)
	}
	return matches, nil
}

// ResourcesFor lists a tenant's resources, newest first.
func (e *Engine) ResourcesFor(ctx context.Context, tenantID string) ([]Resource, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant id is required", ErrValidation)
	}
	return e.resources.ByTenant(ctx, tenantID)
}

// embed chunks the resource content, embeds the chunks, and stores the
// resulting rows. Content that chunks to nothing (for example ".") is
// skipped without error.
func (e *Engine) embed(ctx context.Context, res Resource) error {
	chunks := Chunk(res.Content)
	if len(chunks) == 0 {
		e.logger.Debug("no chunks produced, skipping embedding",
			"resource_id", res.ID)
		return nil
	}

	vectors, err := e.embedder.EmbedChunks(ctx, chunks)
	if err != nil {
		return err
	}

	rows := make([]Embedding, len(chunks))
	for i := range chunks {
		rows[i] = Embedding{
			ID:         uuid.New(),
			ResourceID: res.ID,
			TenantID:   res.TenantID,
			Content:    chunks[i],
			Vector:     vectors[i],
		}
	}
	if err := e.vectors.Insert(ctx, rows); err != nil {
		return fmt.Errorf("storing embeddings: %w", err)
	}
	return nil
}
