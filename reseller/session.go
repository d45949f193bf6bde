package reseller

import (
	"context"
	"sync"
	"time"
)

// Credentials are the reseller account login and password
type Credentials struct {
	Login    string
	Password string
}

// exchangeFunc trades credentials for a bearer token
type exchangeFunc func(ctx context.Context, creds Credentials) (string, error)

// Session holds the bearer token for one client. The token is fetched on
// first use and refreshed once it is older than ttl or the API rejects it.
type Session struct {
	mu       sync.Mutex
	creds    Credentials
	ttl      time.Duration
	token    string
	issuedAt time.Time
	exchange exchangeFunc
	now      func() time.Time
}

func newSession(creds Credentials, ttl time.Duration, exchange exchangeFunc) *Session {
	return &Session{creds: creds, ttl: ttl, exchange: exchange, now: time.Now}
}

// Valid reports whether a token is held and has not expired
func (s *Session) Valid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validLocked()
}

func (s *Session) validLocked() bool {
	if s.token == "" {
		return false
	}
	return s.ttl <= 0 || s.now().Sub(s.issuedAt) < s.ttl
}

// ExpiresAt is the zero time when no token is held
func (s *Session) ExpiresAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" || s.ttl <= 0 {
		return time.Time{}
	}
	return s.issuedAt.Add(s.ttl)
}

// Token returns the current token, fetching a new one when needed
func (s *Session) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.validLocked() {
		return s.token, nil
	}
	return s.refreshLocked(ctx)
}

// Refresh always exchanges the credentials for a new token
func (s *Session) Refresh(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked(ctx)
}

func (s *Session) refreshLocked(ctx context.Context) (string, error) {
	token, err := s.exchange(ctx, s.creds)
	if err != nil {
		s.token = ""
		return "", err
	}
	s.token = token
	s.issuedAt = s.now()
	return token, nil
}
