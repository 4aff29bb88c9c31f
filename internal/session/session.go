package session

import (
	"sync"
	"time"
)

// Session is a keyed value bag scoped to one browser session. The login flow
// uses two well-known keys: the pending challenge slot and the durable auth
// slot. A single browser session is assumed single-actor; the mutex only
// guards against racing requests corrupting the map, last write wins.
type Session struct {
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time

	mu   sync.RWMutex
	data map[string]any
}

// Well-known session keys.
const (
	// ChallengeKey is the single slot holding the pending login challenge.
	ChallengeKey = "auth:2fa:challenge"
	// AuthUserKey holds the authenticated user's ID once login completes.
	AuthUserKey = "auth:user_id"
	// RememberKey records whether the durable login asked to be remembered.
	RememberKey = "auth:remember"
)

// New creates an empty session with the given token and lifetime.
func New(token string, ttl time.Duration) *Session {
	now := time.Now()
	return &Session{
		Token:     token,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
		data:      make(map[string]any),
	}
}

// Put stores a value, overwriting any previous value under key.
func (s *Session) Put(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

// Get retrieves a value.
func (s *Session) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, ok := s.data[key]
	return val, ok
}

// Has reports whether key is populated.
func (s *Session) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[key]
	return ok
}

// Forget removes a value.
func (s *Session) Forget(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

// Expired reports whether the session lifetime has lapsed.
func (s *Session) Expired() bool {
	return time.Now().After(s.ExpiresAt)
}

// snapshot copies the bag for token rotation.
func (s *Session) snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	copied := make(map[string]any, len(s.data))
	for k, v := range s.data {
		copied[k] = v
	}
	return copied
}
