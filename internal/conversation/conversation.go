// Package conversation maintains per-conversation state for the fulfillment
// core: bounded message history, detected language and energy, and the link
// to the active reference window.
//
// State is keyed by conversation id in an explicit in-memory arena with
// eviction driven by the owning collaborator; the core never relies on an
// external cache's expiry semantics.
//
// Precondition (documented, not enforced): the transport collaborator
// serializes turns per conversation id, so at most one turn mutates a given
// State at a time. The arena itself is safe for concurrent use across
// conversations.
package conversation

import (
	"time"

	"golang.org/x/text/language"
)

// Energy describes how animated the customer's utterance reads. It drives a
// tone directive in composition so replies match the customer's register.
type Energy int

const (
	// EnergyNeutral is the default register.
	EnergyNeutral Energy = iota
	// EnergyLow reads flat or terse.
	EnergyLow
	// EnergyHigh reads excited: exclamations, caps, emoji.
	EnergyHigh
)

// String returns the directive keyword used in prompt composition.
func (e Energy) String() string {
	switch e {
	case EnergyLow:
		return "calm"
	case EnergyHigh:
		return "enthusiastic"
	default:
		return "neutral"
	}
}

// State is the per-(tenant, customer) conversation state. Created on the
// first inbound message, updated every turn, evicted by the owner after an
// idle period.
type State struct {
	TenantID       string
	ConversationID string

	History  *History
	Language language.Tag
	Energy   Energy

	// The active reference window for this conversation lives in the
	// reference.Store arena, keyed by ConversationID; it is not duplicated
	// here so TTL checks have a single owner.

	LastActive time.Time
}

// Touch records turn activity at the given instant.
func (s *State) Touch(now time.Time) {
	s.LastActive = now
}
