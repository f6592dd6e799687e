package lockr

import (
	"sync"
	"time"

	"github.com/MrEthical07/lockr/jwt"
)

// Session is the in-memory bearer token and profile. It is never persisted.
// The transport reads the token from it and clears it when a refresh fails.
type Session struct {
	mu        sync.RWMutex
	token     string
	user      *UserProfile
	expiresAt time.Time

	// onExpired runs after the transport clears a live token.
	onExpired func()
}

func newSession() *Session {
	return &Session{}
}

// AccessToken returns the bearer token, or "" when none is held.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// SetAccessToken replaces the bearer token after a refresh hand-back.
func (s *Session) SetAccessToken(token string) {
	s.mu.Lock()
	s.token = token
	s.expiresAt = tokenExpiry(token)
	s.mu.Unlock()
}

// ClearAccessToken drops the token and profile. It is the transport's
// downgrade path after a failed refresh.
func (s *Session) ClearAccessToken() {
	s.mu.Lock()
	hadToken := s.token != ""
	s.token = ""
	s.user = nil
	s.expiresAt = time.Time{}
	cb := s.onExpired
	s.mu.Unlock()

	if hadToken && cb != nil {
		cb()
	}
}

func (s *Session) establish(token string, user *UserProfile) {
	s.mu.Lock()
	s.token = token
	s.user = user
	s.expiresAt = tokenExpiry(token)
	s.mu.Unlock()
}

func (s *Session) reset() {
	s.mu.Lock()
	s.token = ""
	s.user = nil
	s.expiresAt = time.Time{}
	s.mu.Unlock()
}

func (s *Session) setUser(user *UserProfile) {
	s.mu.Lock()
	s.user = user
	s.mu.Unlock()
}

// User returns a copy of the profile, or nil.
func (s *Session) User() *UserProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyProfile(s.user)
}

// Info returns a snapshot of the session.
func (s *Session) Info() SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SessionInfo{
		Authenticated: s.token != "",
		User:          copyProfile(s.user),
		ExpiresAt:     s.expiresAt,
	}
}

func copyProfile(u *UserProfile) *UserProfile {
	if u == nil {
		return nil
	}
	out := *u
	if u.MFAEnabled != nil {
		v := *u.MFAEnabled
		out.MFAEnabled = &v
	}
	if u.BackupCodesRemaining != nil {
		v := *u.BackupCodesRemaining
		out.BackupCodesRemaining = &v
	}
	return &out
}

func tokenExpiry(token string) time.Time {
	if token == "" {
		return time.Time{}
	}
	info, err := jwt.Inspect(token)
	if err != nil {
		return time.Time{}
	}
	return info.ExpiresAt
}
