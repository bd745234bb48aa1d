// Package retrieval gathers candidate facts for one turn from heterogeneous
// sources and merges them into a ranked, attributable set.
//
// The merger orchestrates sources; it implements none. Two production
// sources ship with the platform (the uploaded-document index and the
// catalog query); web search or anything else is a collaborator-supplied
// Source.
package retrieval

import (
	"context"
	"time"
)

// Citation points a fact back to the source that supplied it, for later
// attribution in the generated reply.
type Citation struct {
	Source string // source name, e.g. "documents"
	Ref    string // source-scoped reference, e.g. a document or row id
}

// Fact is one candidate piece of supporting evidence.
type Fact struct {
	Source     string  // originating source name
	EntityID   string  // stable id of the referenced entity, for de-duplication
	Content    string  // the fact text forwarded to composition
	Confidence float64 // source-declared relevance, 0..1
	At         time.Time
	Citation   Citation
}

// Result is the merged retrieval outcome for one turn. Transient; discarded
// after composing.
type Result struct {
	Facts []Fact
	// Partial is set when at least one enabled source failed or timed out
	// and therefore contributed nothing.
	Partial bool
}

// Query describes what to retrieve.
type Query struct {
	Text     string
	TenantID string
	// TopK overrides the merger's fact cap when > 0.
	TopK int
}

// Source is an independently-invokable retrieval capability.
type Source interface {
	// Name identifies the source in citations and logs.
	Name() string

	// Search returns candidate facts for the query. Implementations must
	// honor ctx; the merger applies a per-source timeout.
	Search(ctx context.Context, q Query) ([]Fact, error)
}
