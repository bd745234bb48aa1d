// Package audit appends one immutable InteractionRecord per turn for the
// analytics and billing collaborators.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Record is the append-only audit row for one completed turn.
type Record struct {
	ID             uuid.UUID `json:"id"`
	TenantID       string    `json:"tenant_id"`
	ConversationID string    `json:"conversation_id"`
	TurnID         uuid.UUID `json:"turn_id"`

	Provider string `json:"provider"` // provider that ultimately succeeded; empty on exhaustion
	Attempts int    `json:"attempts"`

	Resolution     string `json:"resolution"` // resolved | ambiguous | not_found
	ResolvedItemID string `json:"resolved_item_id,omitempty"`

	Sources []string `json:"sources,omitempty"` // citation refs, "source:ref"

	CreatedAt time.Time `json:"created_at"`
}

// Recorder appends records. Implementations must treat records as
// immutable; there is no update or delete.
type Recorder interface {
	Append(ctx context.Context, rec Record) error
}

// MemoryRecorder keeps records in memory. Used in tests and single-node
// development setups.
//
// MemoryRecorder is safe for concurrent use.
type MemoryRecorder struct {
	mu      sync.Mutex
	records []Record
}

// NewMemoryRecorder creates an empty in-memory recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

// Append implements Recorder.
func (m *MemoryRecorder) Append(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

// Records returns a copy of everything appended so far.
func (m *MemoryRecorder) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}
