// Package cache holds per-configuration token and bundle state. Entries
// are keyed by configuration fingerprint, created lazily, and live until
// Reset; there is no eviction.
package cache

import (
	"maps"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/oauth2"
)

// Entry is the cached state for one fingerprint. All methods are safe for
// concurrent use.
type Entry struct {
	mu     sync.Mutex
	token  *oauth2.Token
	bundle map[string]string
}

// Token returns a copy of the cached token, or nil.
func (e *Entry) Token() *oauth2.Token {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.token == nil {
		return nil
	}
	t := *e.token
	return &t
}

// SetToken replaces the cached token.
func (e *Entry) SetToken(t *oauth2.Token) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t == nil {
		e.token = nil
		return
	}
	cp := *t
	e.token = &cp
}

// Bundle returns a copy of the cached bundle and whether one is cached.
func (e *Entry) Bundle() (map[string]string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.bundle == nil {
		return nil, false
	}
	return maps.Clone(e.bundle), true
}

// SetBundle replaces the cached bundle with a copy of b.
func (e *Entry) SetBundle(b map[string]string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if b == nil {
		e.bundle = nil
		return
	}
	e.bundle = maps.Clone(b)
}

// Clear drops the token and bundle.
func (e *Entry) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.token = nil
	e.bundle = nil
}

// TokenValid reports whether the cached token is present and will not
// expire within skew of now.
func (e *Entry) TokenValid(now time.Time, skew time.Duration) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.token != nil && e.token.AccessToken != "" && e.token.Expiry.After(now.Add(skew))
}

// Store maps fingerprints to entries.
type Store struct {
	mu      sync.Mutex
	entries *gocache.Cache
}

// New returns an empty Store.
func New() *Store {
	return &Store{entries: gocache.New(gocache.NoExpiration, 0)}
}

// Entry returns the entry for fingerprint, creating an empty one on first
// access.
func (s *Store) Entry(fingerprint string) *Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.entries.Get(fingerprint); ok {
		return v.(*Entry)
	}
	e := &Entry{}
	s.entries.Set(fingerprint, e, gocache.NoExpiration)
	return e
}

// Len returns the number of entries.
func (s *Store) Len() int {
	return s.entries.ItemCount()
}

// Reset removes every entry.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries.Flush()
}
