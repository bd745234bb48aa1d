package retrieval

import (
	"context"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chatcart/chatcart/internal/log"
)

// DefaultSourceTimeout bounds each individual source call.
const DefaultSourceTimeout = 2 * time.Second

// DefaultTopK caps how many merged facts are forwarded to composition.
const DefaultTopK = 5

// MergerConfig tunes fan-out behavior.
type MergerConfig struct {
	SourceTimeout time.Duration // default: DefaultSourceTimeout
	TopK          int           // default: DefaultTopK
}

// Merger fans a query out to all enabled sources concurrently and merges
// the responses: de-duplicated by entity, ranked by confidence then
// recency, capped at top-K.
//
// Merger is stateless and safe for concurrent use.
type Merger struct {
	sourceTimeout time.Duration
	topK          int
	logger        log.Logger
}

// NewMerger creates a Merger. Zero-value config fields fall back to
// defaults.
func NewMerger(cfg MergerConfig, logger log.Logger) *Merger {
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = DefaultSourceTimeout
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Merger{
		sourceTimeout: cfg.SourceTimeout,
		topK:          cfg.TopK,
		logger:        logger,
	}
}

// Retrieve invokes every enabled source concurrently, each under its own
// timeout. A slow or failing source contributes nothing rather than
// blocking the turn; all sources failing yields an empty result, never an
// error. Facts referencing the same entity are collapsed to the
// higher-confidence one.
func (m *Merger) Retrieve(ctx context.Context, q Query, sources []Source) Result {
	if len(sources) == 0 {
		return Result{}
	}

	var (
		mu      sync.Mutex
		facts   []Fact
		partial bool
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, src := range sources {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(gctx, m.sourceTimeout)
			defer cancel()

			found, err := src.Search(sctx, q)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// Partial-result tolerance: log and degrade.
				partial = true
				m.logger.Warn("retrieval source failed",
					"source", src.Name(),
					"error", err,
				)
				return nil
			}
			facts = append(facts, found...)
			return nil
		})
	}
	// Goroutines never return errors; Wait only joins them.
	_ = g.Wait()

	merged := m.merge(facts)
	m.logger.Debug("retrieval merged",
		"sources", len(sources),
		"raw_facts", len(facts),
		"kept", len(merged),
		"partial", partial,
	)

	topK := m.topK
	if q.TopK > 0 {
		topK = q.TopK
	}
	if len(merged) > topK {
		merged = merged[:topK]
	}
	return Result{Facts: merged, Partial: partial}
}

// merge de-duplicates by entity id (keeping the higher-confidence fact and
// its citation) and sorts by confidence, then recency.
func (m *Merger) merge(facts []Fact) []Fact {
	best := make(map[string]Fact, len(facts))
	for _, f := range facts {
		key := f.EntityID
		if key == "" {
			// Facts without an entity id only collide within a source.
			key = f.Source + "\x00" + f.Content
		}
		cur, seen := best[key]
		if !seen || f.Confidence > cur.Confidence {
			best[key] = f
		}
	}

	merged := make([]Fact, 0, len(best))
	for _, f := range best {
		merged = append(merged, f)
	}
	slices.SortFunc(merged, func(a, b Fact) int {
		switch {
		case a.Confidence > b.Confidence:
			return -1
		case a.Confidence < b.Confidence:
			return 1
		case a.At.After(b.At):
			return -1
		case a.At.Before(b.At):
			return 1
		default:
			return 0
		}
	})
	return merged
}
