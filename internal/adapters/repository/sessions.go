package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Default registry configuration constants.
const (
	defaultMaxSessions = 10_000
	defaultSessionTTL  = 2 * time.Hour
)

// Sessions maps session ids to their histories. Sessions expire after an
// idle TTL or when the registry is full; either way the history is dropped.
type Sessions struct {
	maxSessions int
	ttl         time.Duration
	onEnd       func(id string, records int, age time.Duration)

	cache *expirable.LRU[string, *History]
}

// NewSessions creates a session registry with configuration options.
func NewSessions(opts ...Option) *Sessions {
	s := &Sessions{
		maxSessions: defaultMaxSessions,
		ttl:         defaultSessionTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cache = expirable.NewLRU[string, *History](s.maxSessions, s.evicted, s.ttl)
	return s
}

func (s *Sessions) evicted(id string, h *History) {
	if s.onEnd != nil {
		s.onEnd(id, h.Len(), time.Since(h.Created()))
	}
}

// Open returns the history for id, creating a fresh session (with a new id)
// when id is empty, unknown or expired. The returned id is the one to hand
// back to the client. created reports whether a new session was started.
func (s *Sessions) Open(ctx context.Context, id string) (sid string, h *History, created bool) {
	if h, ok := s.Get(ctx, id); ok {
		return id, h, false
	}
	sid = uuid.NewString()
	h = NewHistory()
	s.cache.Add(sid, h)
	return sid, h, true
}

// Get returns the history for id and refreshes its idle timer.
func (s *Sessions) Get(_ context.Context, id string) (*History, bool) {
	if id == "" {
		return nil, false
	}
	h, ok := s.cache.Get(id)
	if !ok {
		return nil, false
	}
	// Re-adding an existing key resets its expiry.
	s.cache.Add(id, h)
	return h, true
}

// Close ends a session. It reports whether the session existed.
func (s *Sessions) Close(_ context.Context, id string) bool {
	return s.cache.Remove(id)
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	return s.cache.Len()
}

// TTL returns the configured idle timeout.
func (s *Sessions) TTL() time.Duration { return s.ttl }
