package auth

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

// Session represents a bearer token bound to a verified wallet.
type Session struct {
	Token     string    `json:"token"`
	Wallet    string    `json:"wallet"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionValidator defines the minimal interface required by request auth.
type SessionValidator interface {
	Lookup(token string) (Session, bool)
}

// SessionIssuer allows creating new sessions after wallet verification.
type SessionIssuer interface {
	Issue(wallet string) (Session, error)
}

// SessionStore provides in-memory session validation/issuance.
type SessionStore struct {
	mu       sync.RWMutex
	ttl      time.Duration
	sessions map[string]Session
}

// NewSessionStore constructs an empty store with the given session TTL.
func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		ttl:      ttl,
		sessions: make(map[string]Session),
	}
}

// Issue creates and stores a new session for a verified wallet.
func (s *SessionStore) Issue(wallet string) (Session, error) {
	token, err := generateToken()
	if err != nil {
		return Session{}, err
	}
	now := time.Now()
	sess := Session{
		Token:     token,
		Wallet:    wallet,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	s.mu.Lock()
	s.sessions[token] = sess
	s.mu.Unlock()
	return sess, nil
}

// Lookup returns the session for a token if it exists and has not
// expired. Expired sessions are removed lazily.
func (s *SessionStore) Lookup(token string) (Session, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, false
	}
	s.mu.RLock()
	sess, ok := s.sessions[token]
	s.mu.RUnlock()
	if !ok {
		return Session{}, false
	}
	if time.Now().After(sess.ExpiresAt) {
		s.mu.Lock()
		delete(s.sessions, token)
		s.mu.Unlock()
		return Session{}, false
	}
	return sess, true
}

// Revoke removes a session by token.
func (s *SessionStore) Revoke(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}

func generateToken() (string, error) {
	b := make([]byte, 32) // 256-bit token
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
