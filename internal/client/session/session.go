// Package session holds the operator's authenticated state on the client.
//
// The state is an explicit value passed to whoever needs it. Callbacks
// registered with OnAuthenticated run once on every transition from
// signed-out to signed-in, never while signed out.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/photodrop/internal/common"
	"github.com/dmitrijs2005/photodrop/internal/logging"
	"github.com/golang-jwt/jwt/v5"
)

// Authenticator exchanges a passcode for a session token.
type Authenticator interface {
	Login(ctx context.Context, passcode string) (string, error)
}

type Session struct {
	log logging.Logger

	mu            sync.Mutex
	token         string
	expiresAt     time.Time
	authenticated bool
	hooks         []func(ctx context.Context)
}

func New(log logging.Logger) *Session {
	return &Session{log: log.With("module", "session")}
}

// OnAuthenticated registers fn for future false→true transitions.
func (s *Session) OnAuthenticated(fn func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// Login asks the backend for a token and, on success, signs the session in.
func (s *Session) Login(ctx context.Context, a Authenticator, passcode string) error {
	token, err := a.Login(ctx, passcode)
	if err != nil {
		s.log.Warn(ctx, "operator login failed", "error", err)
		return err
	}
	s.Authenticate(ctx, token)
	return nil
}

// Authenticate stores token and flips the flag. Hooks fire only when the
// session was signed out before.
func (s *Session) Authenticate(ctx context.Context, token string) {
	s.mu.Lock()
	s.token = token
	s.expiresAt = tokenExpiry(token)
	was := s.authenticated
	s.authenticated = true
	hooks := make([]func(context.Context), len(s.hooks))
	copy(hooks, s.hooks)
	s.mu.Unlock()

	if was {
		return
	}
	s.log.Info(ctx, "operator signed in")
	for _, fn := range hooks {
		fn(ctx)
	}
}

// Clear signs the session out.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.expiresAt = time.Time{}
	s.authenticated = false
}

// Invalidate signs out when err says the server no longer accepts the token.
// It reports whether it did.
func (s *Session) Invalidate(err error) bool {
	if !isAuthError(err) {
		return false
	}
	s.Clear()
	return true
}

func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// Token returns the bearer token, or "" when signed out.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// ExpiresAt is the token's exp claim; zero when unknown.
func (s *Session) ExpiresAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiresAt
}

// tokenExpiry reads exp without verifying the signature; the client does
// not hold the server key.
func tokenExpiry(token string) time.Time {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil || claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

func isAuthError(err error) bool {
	return err != nil && (errors.Is(err, common.ErrorUnauthorized) || errors.Is(err, common.ErrTokenExpired) || errors.Is(err, common.ErrInvalidToken))
}
