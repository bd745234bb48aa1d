package conversation

import (
	"sync"
	"time"

	"golang.org/x/text/language"

	"github.com/chatcart/chatcart/internal/log"
)

// Store is the in-memory arena of conversation states, keyed by
// conversation id. It holds working state for in-flight conversations; the
// durable copy is persisted by an external collaborator.
//
// Store is safe for concurrent use across conversations.
type Store struct {
	mu          sync.RWMutex
	states      map[string]*State
	maxMessages int
	logger      log.Logger
}

// NewStore creates an empty arena. maxMessages bounds each conversation's
// history (<=0 uses DefaultMaxMessages).
func NewStore(maxMessages int, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{
		states:      make(map[string]*State),
		maxMessages: maxMessages,
		logger:      logger,
	}
}

// LoadOrCreate returns the state for conversationID, creating it on the
// first inbound message of a conversation.
func (s *Store) LoadOrCreate(tenantID, conversationID string, now time.Time) *State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.states[conversationID]; ok {
		return st
	}

	st := &State{
		TenantID:       tenantID,
		ConversationID: conversationID,
		History:        NewHistory(s.maxMessages),
		Language:       language.English,
		LastActive:     now,
	}
	s.states[conversationID] = st
	s.logger.Debug("conversation state created",
		"tenant", tenantID,
		"conversation", conversationID,
	)
	return st
}

// Get returns the state for conversationID if present.
func (s *Store) Get(conversationID string) (*State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[conversationID]
	return st, ok
}

// Evict removes one conversation's state. Called by the owning collaborator
// when a conversation goes idle.
func (s *Store) Evict(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, conversationID)
}

// EvictIdle removes every conversation whose last activity is older than
// the idle threshold, returning the number evicted.
func (s *Store) EvictIdle(idle time.Duration, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, st := range s.states {
		if now.Sub(st.LastActive) > idle {
			delete(s.states, id)
			evicted++
		}
	}
	if evicted > 0 {
		s.logger.Debug("evicted idle conversations", "count", evicted)
	}
	return evicted
}

// Len returns the number of resident conversations.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}
