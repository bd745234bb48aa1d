// Package provider defines the completion-provider abstraction used by the
// failover router.
//
// A Provider is an interchangeable backend capable of producing a text
// completion from a structured request. Providers form a closed set selected
// by configuration-driven priority order; the router never inspects concrete
// types.
package provider

import (
	"context"
	"encoding/json"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
)

// Capability describes optional provider features as bit flags.
type Capability uint8

const (
	// CapStructuredOutput indicates the provider can return validated JSON
	// conforming to a requested schema.
	CapStructuredOutput Capability = 1 << iota
)

// Has reports whether c includes want.
func (c Capability) Has(want Capability) bool {
	return c&want == want
}

// Descriptor identifies a configured provider. Immutable; loaded from tenant
// configuration at session start.
type Descriptor struct {
	Name         string     // unique provider name, e.g. "openai-primary"
	Model        string     // model identifier, e.g. "gpt-4o"
	CostPerToken float64    // USD per token, for audit/reporting
	Capabilities Capability // advertised capability flags
	Priority     int        // fixed rank; lower tries first
}

// Request is the generation request handed to a provider. It carries the
// composed context bundle, never raw customer text.
type Request struct {
	System            string        // system directive (persona, language, tone)
	Messages          []*ai.Message // trimmed history + context + current turn
	MaxTokens         int
	Temperature       float32
	RequireStructured bool // request schema-validated JSON output

	// Routing metadata.
	TenantID string
	TurnID   uuid.UUID
}

// StructuredReply is the JSON shape requested from providers that support
// structured output: the reply text plus the indexes of the facts it cited.
type StructuredReply struct {
	Text      string `json:"text"`
	Citations []int  `json:"citations,omitempty"`
}

// Response is a completed generation.
type Response struct {
	Text       string          // final reply text
	Structured json.RawMessage // raw structured payload, if requested and returned
	Provider   string          // name of the provider that produced it
	Model      string
	Latency    time.Duration
}

// Provider is the single capability interface all backends implement.
type Provider interface {
	// Name returns the descriptor name, stable across the process lifetime.
	Name() string

	// Descriptor returns the immutable configuration for this provider.
	Descriptor() Descriptor

	// Complete produces a completion for req. Implementations must honor
	// ctx cancellation and must not retry internally; retry policy belongs
	// to the router.
	Complete(ctx context.Context, req *Request) (*Response, error)
}
