// Package live tracks logged-in sessions and fans committed game states
// out to connected clients.
package live

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/playperu/territories/internal/game"
)

// Session binds an opaque token to a viewer.
type Session struct {
	Token     string
	Viewer    game.Viewer
	ExpiresAt time.Time
}

// Sessions is an in-memory token table. An expired token is dropped when
// it is next looked up.
type Sessions struct {
	mu     sync.Mutex
	tokens map[string]Session
	ttl    time.Duration
	now    func() time.Time
}

func NewSessions(ttl time.Duration) *Sessions {
	return &Sessions{
		tokens: make(map[string]Session),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Create issues a new token for v.
func (s *Sessions) Create(v game.Viewer) (Session, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return Session{}, fmt.Errorf("generating token: %w", err)
	}
	sess := Session{
		Token:     base64.RawURLEncoding.EncodeToString(b),
		Viewer:    v,
		ExpiresAt: s.now().Add(s.ttl),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[sess.Token] = sess
	return sess, nil
}

// Get returns the live session for token.
func (s *Sessions) Get(token string) (Session, bool) {
	if token == "" {
		return Session{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.tokens[token]
	if !ok {
		return Session{}, false
	}
	if !s.now().Before(sess.ExpiresAt) {
		delete(s.tokens, token)
		return Session{}, false
	}
	return sess, true
}

func (s *Sessions) Delete(token string) {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}
