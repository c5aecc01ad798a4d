// Package store implements PostgreSQL persistence for resources and their
// embeddings using pgx and pgvector. It satisfies the knowledge package's
// ResourceStore and VectorStore interfaces.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/tessera-ai/tessera/internal/knowledge"
)

// Store wraps a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New builds a Store over an existing pool. The pool's lifecycle belongs
// to the caller.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: ping: %v", knowledge.ErrStorage, err)
	}
	return nil
}

// Create inserts a resource row. CreatedAt and UpdatedAt are assigned by
// the database.
func (s *Store) Create(ctx context.Context, res knowledge.Resource) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO resources (id, tenant_id, category, content)
		VALUES ($1, $2, $3, $4)`,
		res.ID, res.TenantID, res.Category, res.Content)
	if err != nil {
		return fmt.Errorf("%w: insert resource: %v", knowledge.ErrStorage, err)
	}
	return nil
}

// Get loads a resource by id. A missing row is (zero, false, nil).
func (s *Store) Get(ctx context.Context, id uuid.UUID) (knowledge.Resource, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, category, content, created_at, updated_at
		FROM resources WHERE id = $1`, id)

	res, err := scanResource(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return knowledge.Resource{}, false, nil
	}
	if err != nil {
		return knowledge.Resource{}, false, fmt.Errorf("%w: get resource: %v", knowledge.ErrStorage, err)
	}
	return res, true, nil
}

// ByTenant lists a tenant's resources, newest update first.
func (s *Store) ByTenant(ctx context.Context, tenantID string) ([]knowledge.Resource, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, category, content, created_at, updated_at
		FROM resources
		WHERE tenant_id = $1
		ORDER BY updated_at DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: list resources: %v", knowledge.ErrStorage, err)
	}
	defer rows.Close()

	var out []knowledge.Resource
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan resource: %v", knowledge.ErrStorage, err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list resources: %v", knowledge.ErrStorage, err)
	}
	return out, nil
}

// NewestInCategory returns the tenant's most recently updated resource in
// a category, if any.
func (s *Store) NewestInCategory(ctx context.Context, tenantID, category string) (knowledge.Resource, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, category, content, created_at, updated_at
		FROM resources
		WHERE tenant_id = $1 AND category = $2
		ORDER BY updated_at DESC
		LIMIT 1`, tenantID, category)

	res, err := scanResource(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return knowledge.Resource{}, false, nil
	}
	if err != nil {
		return knowledge.Resource{}, false, fmt.Errorf("%w: newest in category: %v", knowledge.ErrStorage, err)
	}
	return res, true, nil
}

// UpdateContent replaces a resource's content and bumps updated_at.
func (s *Store) UpdateContent(ctx context.Context, id uuid.UUID, content string) (knowledge.Resource, bool, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE resources
		SET content = $2, updated_at = now()
		WHERE id = $1
		RETURNING id, tenant_id, category, content, created_at, updated_at`,
		id, content)

	res, err := scanResource(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return knowledge.Resource{}, false, nil
	}
	if err != nil {
		return knowledge.Resource{}, false, fmt.Errorf("%w: update resource: %v", knowledge.ErrStorage, err)
	}
	return res, true, nil
}

// Delete removes a resource and its embeddings in one transaction. The
// embeddings FK also cascades at the schema level; deleting explicitly
// keeps the invariant visible and testable without relying on it.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: begin delete: %v", knowledge.ErrStorage, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM embeddings WHERE resource_id = $1`, id); err != nil {
		return false, fmt.Errorf("%w: delete embeddings: %v", knowledge.ErrStorage, err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM resources WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("%w: delete resource: %v", knowledge.ErrStorage, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("%w: commit delete: %v", knowledge.ErrStorage, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Insert writes embedding rows in a single batched transaction.
func (s *Store) Insert(ctx context.Context, rows []knowledge.Embedding) error {
	if len(rows) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(`
			INSERT INTO embeddings (id, resource_id, tenant_id, content, embedding)
			VALUES ($1, $2, $3, $4, $5)`,
			row.ID, row.ResourceID, row.TenantID, row.Content,
			pgvector.NewVector(row.Vector))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin insert: %v", knowledge.ErrStorage, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	br := tx.SendBatch(ctx, batch)
	for range rows {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("%w: insert embedding: %v", knowledge.ErrStorage, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("%w: close batch: %v", knowledge.ErrStorage, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit insert: %v", knowledge.ErrStorage, err)
	}
	return nil
}

// DeleteByResource removes all embedding rows derived from a resource.
func (s *Store) DeleteByResource(ctx context.Context, resourceID uuid.UUID) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM embeddings WHERE resource_id = $1`, resourceID); err != nil {
		return fmt.Errorf("%w: delete embeddings: %v", knowledge.ErrStorage, err)
	}
	return nil
}

// Search runs cosine similarity search scoped to one tenant. pgvector's
// <=> operator is cosine distance, so similarity is 1 - distance. Results
// at or above minSimilarity come back best first, capped at limit.
func (s *Store) Search(ctx context.Context, tenantID string, vector []float32, minSimilarity float64, limit int) ([]knowledge.Match, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT content, 1 - (embedding <=> $2) AS similarity
		FROM embeddings
		WHERE tenant_id = $1 AND 1 - (embedding <=> $2) >= $3
		ORDER BY similarity DESC
		LIMIT $4`,
		tenantID, pgvector.NewVector(vector), minSimilarity, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: similarity search: %v", knowledge.ErrStorage, err)
	}
	defer rows.Close()

	var out []knowledge.Match
	for rows.Next() {
		var m knowledge.Match
		if err := rows.Scan(&m.Content, &m.Similarity); err != nil {
			return nil, fmt.Errorf("%w: scan match: %v", knowledge.ErrStorage, err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: similarity search: %v", knowledge.ErrStorage, err)
	}
	return out, nil
}

func scanResource(row pgx.Row) (knowledge.Resource, error) {
	var res knowledge.Resource
	err := row.Scan(&res.ID, &res.TenantID, &res.Category, &res.Content,
		&res.CreatedAt, &res.UpdatedAt)
	return res, err
}
