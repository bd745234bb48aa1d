package retrieval

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatcart/chatcart/internal/log"
)

// Catalog searches a tenant's live products and services by keyword.
type Catalog struct {
	pool   *pgxpool.Pool
	limit  int
	logger log.Logger
}

// NewCatalog creates the catalog source. limit caps rows per search (<=0
// uses 10).
func NewCatalog(pool *pgxpool.Pool, limit int, logger log.Logger) *Catalog {
	if limit <= 0 {
		limit = 10
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Catalog{pool: pool, limit: limit, logger: logger}
}

// Name implements Source.
func (c *Catalog) Name() string { return "catalog" }

// Search implements Source. Name matches score higher than
// description-only matches; rows matching neither are excluded by the
// query.
func (c *Catalog) Search(ctx context.Context, q Query) ([]Fact, error) {
	patterns := likePatterns(q.Text)
	if len(patterns) == 0 {
		return nil, nil
	}

	rows, err := c.pool.Query(ctx, `
		SELECT id, kind, name, description, price_cents, currency, updated_at,
		       (name ILIKE ANY($2)) AS name_match
		FROM catalog_items
		WHERE tenant_id = $1
		  AND available
		  AND (name ILIKE ANY($2) OR description ILIKE ANY($2))
		ORDER BY name_match DESC, updated_at DESC
		LIMIT $3`,
		q.TenantID, patterns, c.limit)
	if err != nil {
		return nil, fmt.Errorf("catalog search: %w", err)
	}
	defer rows.Close()

	var facts []Fact
	for rows.Next() {
		var (
			f          Fact
			kind, name string
			desc       string
			priceCents int64
			currency   string
			nameMatch  bool
		)
		if err := rows.Scan(&f.EntityID, &kind, &name, &desc, &priceCents, &currency, &f.At, &nameMatch); err != nil {
			return nil, fmt.Errorf("scan catalog row: %w", err)
		}
		f.Source = c.Name()
		f.Content = fmt.Sprintf("%s %q: %s (%.2f %s)",
			kind, name, desc, float64(priceCents)/100, currency)
		if nameMatch {
			f.Confidence = 0.9
		} else {
			f.Confidence = 0.6
		}
		f.Citation = Citation{Source: c.Name(), Ref: f.EntityID}
		facts = append(facts, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate catalog rows: %w", err)
	}
	return facts, nil
}

// likePatterns turns free text into ILIKE patterns, one per meaningful
// token. Single-character tokens carry no search signal and are dropped.
func likePatterns(text string) []string {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var patterns []string
	for _, tok := range tokens {
		if len(tok) < 2 {
			continue
		}
		patterns = append(patterns, "%"+tok+"%")
	}
	return patterns
}
