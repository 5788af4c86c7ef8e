// Package session holds the identity the process acts under and the
// bootstrap sequence that establishes it.
package session

import (
	"sync"
	"time"
)

type Mode int

const (
	// ModeAnonymous: no identity. Reads still try the remote; writes stay local.
	ModeAnonymous Mode = iota
	// ModeLocal: identity verified against remembered credentials only. The
	// remote has not accepted this session.
	ModeLocal
	// ModeAuthenticated: the remote accepted the bearer token.
	ModeAuthenticated
)

func (m Mode) String() string {
	switch m {
	case ModeLocal:
		return "local"
	case ModeAuthenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

type Identity struct {
	UserID uint   `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
}

// Session is passed explicitly to everything that needs to know who the
// process acts for. It is safe for concurrent use.
type Session struct {
	mu        sync.RWMutex
	mode      Mode
	identity  Identity
	token     string
	expiresAt time.Time
	now       func() time.Time
}

func New() *Session {
	return &Session{now: time.Now}
}

// SignIn marks the session authenticated with a bearer token.
func (s *Session) SignIn(id Identity, token string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = ModeAuthenticated
	s.identity = id
	s.token = token
	s.expiresAt = expiresAt
}

// SignInLocal records an identity without remote authorization.
func (s *Session) SignInLocal(id Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = ModeLocal
	s.identity = id
	s.token = ""
	s.expiresAt = time.Time{}
}

func (s *Session) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = ModeAnonymous
	s.identity = Identity{}
	s.token = ""
	s.expiresAt = time.Time{}
}

func (s *Session) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.mode == ModeAuthenticated && s.expiredLocked() {
		return ModeLocal
	}
	return s.mode
}

// Authenticated reports whether remote writes may be attempted.
func (s *Session) Authenticated() bool {
	return s.Mode() == ModeAuthenticated
}

// Token returns the bearer token, or "" when the session is not authenticated.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.mode != ModeAuthenticated || s.expiredLocked() {
		return ""
	}
	return s.token
}

func (s *Session) Identity() Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

func (s *Session) expiredLocked() bool {
	return !s.expiresAt.IsZero() && !s.now().Before(s.expiresAt)
}
