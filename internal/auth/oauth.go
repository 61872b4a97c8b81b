package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fivetwenty-io/gia-client/internal/constants"
	"github.com/fivetwenty-io/gia-client/internal/retry"
	"github.com/fivetwenty-io/gia-client/pkg/gia"
	"github.com/hashicorp/go-cleanhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"
)

// Static errors for err113 compliance.
var (
	ErrNoValidCredentials = errors.New("no valid credentials available")
	ErrTokenURLRequired   = errors.New("token URL is required for client credentials")
)

const refreshKey = "token"

// OAuth2Config configures an OAuth2TokenManager.
type OAuth2Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string

	// AccessToken and AccessTokenExpiresAt seed the cache, for example with
	// a token persisted in a CLI profile.
	AccessToken          string
	AccessTokenExpiresAt time.Time

	// AuthStyle defaults to sending credentials in the form body.
	AuthStyle oauth2.AuthStyle

	// HTTPClient is used for the token endpoint only.
	HTTPClient *http.Client

	// Retry governs transient token endpoint failures.
	Retry retry.Policy

	Logger gia.Logger
}

// OAuth2TokenManager acquires tokens with the client_credentials grant and
// caches them until shortly before expiry. Concurrent refreshes collapse
// into one token endpoint call.
type OAuth2TokenManager struct {
	config     *OAuth2Config
	store      *TokenStore
	group      singleflight.Group
	executor   *retry.Executor
	httpClient *http.Client
}

// NewOAuth2TokenManager creates a new OAuth2 token manager.
func NewOAuth2TokenManager(config *OAuth2Config) *OAuth2TokenManager {
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = cleanhttp.DefaultPooledClient()
		httpClient.Timeout = constants.TokenHTTPTimeout
	}

	var opts []retry.ExecutorOption
	if config.Logger != nil {
		opts = append(opts, retry.WithLogger(config.Logger))
	}

	manager := &OAuth2TokenManager{
		config:     config,
		store:      NewTokenStore(),
		executor:   retry.NewExecutor(config.Retry, opts...),
		httpClient: httpClient,
	}

	if config.AccessToken != "" {
		manager.SetToken(config.AccessToken, config.AccessTokenExpiresAt)
	}

	return manager
}

// NewStaticTokenManager returns a manager that always serves token and
// cannot refresh it.
func NewStaticTokenManager(token string, expiresAt time.Time) *OAuth2TokenManager {
	return NewOAuth2TokenManager(&OAuth2Config{
		AccessToken:          token,
		AccessTokenExpiresAt: expiresAt,
	})
}

// GetToken returns a valid access token, acquiring one if necessary.
func (m *OAuth2TokenManager) GetToken(ctx context.Context) (string, error) {
	token := m.store.Get()
	if token.Valid() {
		return token.AccessToken, nil
	}

	token, err := m.acquire(ctx)
	if err != nil {
		return "", err
	}

	return token.AccessToken, nil
}

// RefreshToken implements TokenManager.RefreshToken. Callers rejected with
// the same token share a single token endpoint call.
func (m *OAuth2TokenManager) RefreshToken(ctx context.Context, rejected string) error {
	if rejected == "" {
		m.Invalidate()
	} else {
		m.store.ClearIf(rejected)
	}

	if current := m.store.Get(); current.Valid() {
		return nil
	}

	_, err := m.acquire(ctx)

	return err
}

// SetToken manually sets the access token.
func (m *OAuth2TokenManager) SetToken(token string, expiresAt time.Time) {
	m.store.Set(&Token{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   expiresAt,
	})
}

// Invalidate drops the cached token.
func (m *OAuth2TokenManager) Invalidate() {
	m.store.Clear()
}

// Current returns the cached token without acquiring one.
func (m *OAuth2TokenManager) Current() *Token {
	return m.store.Get()
}

func (m *OAuth2TokenManager) canAcquire() bool {
	return m.config.ClientID != "" && m.config.ClientSecret != ""
}

func (m *OAuth2TokenManager) acquire(ctx context.Context) (*Token, error) {
	if !m.canAcquire() {
		return nil, &gia.AuthError{Err: ErrNoValidCredentials}
	}

	if m.config.TokenURL == "" {
		return nil, &gia.AuthError{Err: ErrTokenURLRequired}
	}

	result, err, _ := m.group.Do(refreshKey, func() (interface{}, error) {
		// Another caller may have refreshed while we were waiting.
		if current := m.store.Get(); current.Valid() {
			return current, nil
		}

		var token *Token

		err := m.executor.Do(ctx, func(ctx context.Context) error {
			fetched, fetchErr := m.fetch(ctx)
			if fetchErr != nil {
				return fetchErr
			}

			token = fetched

			return nil
		})
		if err != nil {
			return nil, wrapTokenError(err)
		}

		m.store.Set(token)

		return token, nil
	})
	if err != nil {
		return nil, err //nolint:wrapcheck // already a taxonomy error
	}

	token, _ := result.(*Token)

	return token, nil
}

func (m *OAuth2TokenManager) fetch(ctx context.Context) (*Token, error) {
	authStyle := m.config.AuthStyle
	if authStyle == oauth2.AuthStyleAutoDetect {
		authStyle = oauth2.AuthStyleInParams
	}

	ccConfig := &clientcredentials.Config{
		ClientID:     m.config.ClientID,
		ClientSecret: m.config.ClientSecret,
		TokenURL:     m.config.TokenURL,
		Scopes:       m.config.Scopes,
		AuthStyle:    authStyle,
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)

	oauthToken, err := ccConfig.Token(ctx)
	if err != nil {
		return nil, m.classifyTokenError(err)
	}

	expiresAt := oauthToken.Expiry
	if expiresAt.IsZero() {
		expiresAt = time.Now().Add(constants.DefaultTokenLifetime)
	}

	token := &Token{
		AccessToken: oauthToken.AccessToken,
		TokenType:   oauthToken.TokenType,
		ExpiresIn:   int(time.Until(expiresAt).Seconds()),
		ExpiresAt:   expiresAt,
	}

	if scope, ok := oauthToken.Extra("scope").(string); ok {
		token.Scope = scope
	}

	return token, nil
}

// classifyTokenError turns an oauth2 error into a taxonomy error so that
// the executor retries only transient token endpoint failures.
func (m *OAuth2TokenManager) classifyTokenError(err error) error {
	retrieveErr := &oauth2.RetrieveError{}
	if errors.As(err, &retrieveErr) {
		statusCode := 0
		if retrieveErr.Response != nil {
			statusCode = retrieveErr.Response.StatusCode
		}

		message := describeRetrieveError(retrieveErr)

		if statusCode == http.StatusTooManyRequests || statusCode >= http.StatusInternalServerError {
			remoteErr := gia.ParseRemoteError(statusCode, retrieveErr.Body)
			if retrieveErr.Response != nil {
				if wait, ok := retry.ParseRetryAfter(retrieveErr.Response.Header.Get("Retry-After"), time.Now()); ok {
					remoteErr.RetryAfter = wait
				}
			}

			return remoteErr
		}

		return &gia.AuthError{Message: message, StatusCode: statusCode}
	}

	return &gia.TransportError{Method: http.MethodPost, URL: m.config.TokenURL, Err: err}
}

func describeRetrieveError(err *oauth2.RetrieveError) string {
	parts := make([]string, 0, 2)
	if err.ErrorCode != "" {
		parts = append(parts, err.ErrorCode)
	}

	if err.ErrorDescription != "" {
		parts = append(parts, err.ErrorDescription)
	}

	if len(parts) == 0 {
		return strings.TrimSpace(string(err.Body))
	}

	return strings.Join(parts, ": ")
}

func wrapTokenError(err error) error {
	if gia.IsCancelled(err) {
		return err
	}

	authErr := &gia.AuthError{}
	if errors.As(err, &authErr) {
		return authErr
	}

	remoteErr := &gia.RemoteError{}
	if errors.As(err, &remoteErr) {
		return &gia.AuthError{Message: "token endpoint unavailable", StatusCode: remoteErr.StatusCode, Err: remoteErr}
	}

	return &gia.AuthError{Message: "requesting token", Err: fmt.Errorf("token endpoint: %w", err)}
}
