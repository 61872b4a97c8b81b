package auth

import (
	"context"
	"sync"
	"time"

	"github.com/fivetwenty-io/gia-client/internal/constants"
)

// TokenManager manages OAuth2 bearer tokens for the governance API.
type TokenManager interface {
	// GetToken returns a valid access token, acquiring one if necessary.
	GetToken(ctx context.Context) (string, error)
	// RefreshToken replaces rejected, the token the server refused, with a
	// new one. It does nothing when the cached token has already moved on.
	// An empty rejected forces a refresh.
	RefreshToken(ctx context.Context, rejected string) error
	// SetToken installs a token obtained elsewhere.
	SetToken(token string, expiresAt time.Time)
	// Invalidate drops the cached token so the next GetToken acquires a new one.
	Invalidate()
}

// Token represents an OAuth2 token.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int       `json:"expires_in"`
	Scope       string    `json:"scope,omitempty"`
	ExpiresAt   time.Time `json:"-"`
}

// Valid reports whether the token can still be used. A token without an
// expiry never expires; otherwise it must outlive the expiration buffer.
func (t *Token) Valid() bool {
	if t == nil || t.AccessToken == "" {
		return false
	}

	if t.ExpiresAt.IsZero() {
		return true
	}

	return time.Now().Add(constants.TokenExpirationBuffer).Before(t.ExpiresAt)
}

// TokenStore holds the current token and is safe for concurrent use.
type TokenStore struct {
	mu    sync.RWMutex
	token *Token
}

// NewTokenStore creates an empty token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{}
}

// Get returns the stored token, or nil.
func (s *TokenStore) Get() *Token {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.token
}

// Set replaces the stored token.
func (s *TokenStore) Set(token *Token) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = token
}

// ClearIf removes the stored token only while it is still accessToken.
func (s *TokenStore) ClearIf(accessToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != nil && s.token.AccessToken == accessToken {
		s.token = nil
	}
}

// Clear removes the stored token.
func (s *TokenStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = nil
}
