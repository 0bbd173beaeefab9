package userflow

import (
	"encoding/json"
	"sync"
)

// SessionState is the explicit per request session handle every operation
// receives. Implementations typically wrap a cookie backed or server side
// session from the embedding HTTP layer.
type SessionState interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string)
}

// Session keys. Explicit i18n choices and guessed values live under
// distinct keys so provenance survives; the explicit key wins on read.
const (
	sessionKeyUser            = "auth_id"
	sessionKeyLocale          = "locale"
	sessionKeyGuessedLocale   = "_locale"
	sessionKeyTimezone        = "tz"
	sessionKeyGuessedTimezone = "_tz"
	sessionKeyAuthProvider    = "auth_provider"
)

// MemorySession is a goroutine safe in-memory SessionState, suitable for
// tests and non-HTTP embeddings.
type MemorySession struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemorySession creates an empty session.
func NewMemorySession() *MemorySession {
	return &MemorySession{values: map[string]string{}}
}

// Get implements SessionState.
func (s *MemorySession) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Set implements SessionState.
func (s *MemorySession) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Delete implements SessionState.
func (s *MemorySession) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// pendingAssociations reads the provider association stash: a map of
// provider name to provider user id waiting for a local account to exist.
func pendingAssociations(s SessionState) map[string]string {
	raw, ok := s.Get(sessionKeyAuthProvider)
	if !ok || raw == "" {
		return map[string]string{}
	}

	stash := map[string]string{}
	if err := json.Unmarshal([]byte(raw), &stash); err != nil {
		return map[string]string{}
	}
	return stash
}

// stashAssociation records a pending provider association, keyed by
// provider name so a retried provider flow overwrites its own entry.
func stashAssociation(s SessionState, provider, providerUserID string) {
	stash := pendingAssociations(s)
	stash[provider] = providerUserID

	raw, err := json.Marshal(stash)
	if err != nil {
		return
	}
	s.Set(sessionKeyAuthProvider, string(raw))
}

// clearAssociations drops the stash. It must run once the stash is
// consumed so stale pairings cannot be replayed by a later registration.
func clearAssociations(s SessionState) {
	s.Delete(sessionKeyAuthProvider)
}
