// Package reference resolves elliptical follow-up references ("1", "the
// blue one", "last one") against the short-lived window of items last
// presented to a customer.
package reference

import (
	"sync"
	"time"

	"github.com/chatcart/chatcart/internal/log"
)

// DefaultTTL is how long a presented item list stays resolvable.
const DefaultTTL = 5 * time.Minute

// Kind tags what a presented item is.
type Kind int

const (
	// KindProduct is a catalog product.
	KindProduct Kind = iota
	// KindService is a bookable service.
	KindService
)

// String returns the tag used when rendering entity detail.
func (k Kind) String() string {
	if k == KindService {
		return "service"
	}
	return "product"
}

// Item is one entry of a presented list.
type Item struct {
	ID    string // stable entity id
	Label string // customer-visible display label
	Kind  Kind
}

// Window records the last item list shown to a customer. Replaced wholesale
// whenever a new list is presented; never merged.
type Window struct {
	Items     []Item
	CreatedAt time.Time
	TTL       time.Duration
}

// Expired reports whether the window is older than its TTL at the given
// instant. An expired window is treated as absent, never resolved against.
func (w *Window) Expired(now time.Time) bool {
	return now.Sub(w.CreatedAt) >= w.TTL
}

// Store keeps at most one active window per conversation. Reads apply the
// TTL check explicitly so callers never see stale windows, independent of
// any external cache's expiry semantics.
//
// Store is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	windows map[string]*Window
	ttl     time.Duration
	logger  log.Logger
}

// NewStore creates a window store. ttl <= 0 uses DefaultTTL.
func NewStore(ttl time.Duration, logger log.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{
		windows: make(map[string]*Window),
		ttl:     ttl,
		logger:  logger,
	}
}

// SetWindow replaces the conversation's window with the given items,
// stamped at now. An empty item list clears the window.
func (s *Store) SetWindow(conversationID string, items []Item, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(items) == 0 {
		delete(s.windows, conversationID)
		return
	}

	copied := make([]Item, len(items))
	copy(copied, items)
	s.windows[conversationID] = &Window{
		Items:     copied,
		CreatedAt: now,
		TTL:       s.ttl,
	}
	s.logger.Debug("reference window set",
		"conversation", conversationID,
		"items", len(items),
	)
}

// Window returns the conversation's active window at the given instant.
// Expired or absent windows report ok=false and the expired entry is
// dropped.
func (s *Store) Window(conversationID string, now time.Time) (*Window, bool) {
	s.mu.RLock()
	w, ok := s.windows[conversationID]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if w.Expired(now) {
		s.mu.Lock()
		// Re-check under the write lock: a fresh window may have replaced
		// the expired one in between.
		if cur, stillThere := s.windows[conversationID]; stillThere && cur.Expired(now) {
			delete(s.windows, conversationID)
		}
		s.mu.Unlock()
		return nil, false
	}
	return w, true
}

// Clear drops the conversation's window.
func (s *Store) Clear(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, conversationID)
}
