package conversation

import (
	"sync"

	"github.com/firebase/genkit/go/ai"
)

// DefaultMaxMessages bounds history length; oldest messages are trimmed
// first.
const DefaultMaxMessages = 100

// History encapsulates bounded conversation history with thread-safe access.
//
// The zero value is not useful; use NewHistory.
type History struct {
	mu       sync.RWMutex
	messages []*ai.Message
	max      int
}

// NewHistory creates a History bounded to max messages (<=0 uses
// DefaultMaxMessages).
func NewHistory(max int) *History {
	if max <= 0 {
		max = DefaultMaxMessages
	}
	return &History{
		messages: make([]*ai.Message, 0),
		max:      max,
	}
}

// Add appends a user message and the assistant's reply, trimming the oldest
// messages beyond the bound.
func (h *History) Add(userInput, assistantReply string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages,
		ai.NewUserMessage(ai.NewTextPart(userInput)),
		ai.NewModelMessage(ai.NewTextPart(assistantReply)),
	)
	h.trimLocked()
}

// AddMessage appends a single message. Nil messages are ignored.
func (h *History) AddMessage(msg *ai.Message) {
	if msg == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msg)
	h.trimLocked()
}

// SetMessages replaces all messages, keeping only the most recent within the
// bound. Makes a defensive copy.
func (h *History) SetMessages(messages []*ai.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(messages) > h.max {
		messages = messages[len(messages)-h.max:]
	}
	h.messages = make([]*ai.Message, len(messages))
	copy(h.messages, messages)
}

// Messages returns a copy of all messages for thread-safe access.
func (h *History) Messages() []*ai.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	result := make([]*ai.Message, len(h.messages))
	copy(result, h.messages)
	return result
}

// Count returns the number of messages.
func (h *History) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// Clear removes all messages.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = h.messages[:0]
}

// trimLocked drops the oldest messages beyond the bound. Caller holds h.mu.
func (h *History) trimLocked() {
	if len(h.messages) <= h.max {
		return
	}
	excess := len(h.messages) - h.max
	h.messages = append(h.messages[:0], h.messages[excess:]...)
}
