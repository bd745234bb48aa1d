package retrieval

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/chatcart/chatcart/internal/log"
)

// EmbedFunc turns text into an embedding vector. Supplied by the embedding
// collaborator so the index stays independent of any particular model SDK.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// DocumentIndex searches a tenant's uploaded documents by vector similarity
// over a pgvector-backed table.
type DocumentIndex struct {
	pool   *pgxpool.Pool
	embed  EmbedFunc
	limit  int
	logger log.Logger
}

// NewDocumentIndex creates the document source. limit caps rows fetched per
// search (<=0 uses 10; the merger applies its own top-K afterwards).
func NewDocumentIndex(pool *pgxpool.Pool, embed EmbedFunc, limit int, logger log.Logger) *DocumentIndex {
	if limit <= 0 {
		limit = 10
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &DocumentIndex{pool: pool, embed: embed, limit: limit, logger: logger}
}

// Name implements Source.
func (d *DocumentIndex) Name() string { return "documents" }

// Search implements Source. Similarity is cosine; confidence is
// 1 - cosine distance, clamped to [0, 1].
func (d *DocumentIndex) Search(ctx context.Context, q Query) ([]Fact, error) {
	vec, err := d.embed(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	embedding := pgvector.NewVector(vec)

	rows, err := d.pool.Query(ctx, `
		SELECT id, entity_id, content, created_at,
		       1 - (embedding <=> $1) AS similarity
		FROM documents
		WHERE tenant_id = $2
		ORDER BY embedding <=> $1
		LIMIT $3`,
		embedding, q.TenantID, d.limit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var facts []Fact
	for rows.Next() {
		var f Fact
		var id string
		var similarity float64
		if err := rows.Scan(&id, &f.EntityID, &f.Content, &f.At, &similarity); err != nil {
			return nil, fmt.Errorf("scan document row: %w", err)
		}
		f.Source = d.Name()
		f.Confidence = min(max(similarity, 0), 1)
		f.Citation = Citation{Source: d.Name(), Ref: id}
		facts = append(facts, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document rows: %w", err)
	}
	return facts, nil
}
