package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fivetwenty-io/gia-client/pkg/gia"
)

// Static errors for err113 compliance.
var (
	ErrNoConfigPersister = errors.New("no config persister configured")
)

// ConfigPersister defines the interface for persisting config changes.
type ConfigPersister interface {
	UpdateProfileToken(profile, token string, expiresAt time.Time) error
}

// ConfigTokenManager wraps OAuth2TokenManager and writes every newly
// acquired token back to the CLI profile it came from, so the next
// invocation can reuse it.
type ConfigTokenManager struct {
	oauth2Manager   *OAuth2TokenManager
	configPersister ConfigPersister
	profile         string
	logger          gia.Logger

	mutex         sync.Mutex
	lastPersisted string
}

// NewConfigTokenManager creates a new config-persisting token manager.
func NewConfigTokenManager(config *OAuth2Config, configPersister ConfigPersister, profile string) *ConfigTokenManager {
	return &ConfigTokenManager{
		oauth2Manager:   NewOAuth2TokenManager(config),
		configPersister: configPersister,
		profile:         profile,
		logger:          config.Logger,
		lastPersisted:   config.AccessToken,
	}
}

// GetToken returns a valid access token, acquiring one if necessary.
func (m *ConfigTokenManager) GetToken(ctx context.Context) (string, error) {
	token, err := m.oauth2Manager.GetToken(ctx)
	if err != nil {
		return "", err
	}

	m.persistIfChanged()

	return token, nil
}

// RefreshToken replaces a rejected token.
func (m *ConfigTokenManager) RefreshToken(ctx context.Context, rejected string) error {
	err := m.oauth2Manager.RefreshToken(ctx, rejected)
	if err != nil {
		return err
	}

	m.persistIfChanged()

	return nil
}

// SetToken manually sets the access token.
func (m *ConfigTokenManager) SetToken(token string, expiresAt time.Time) {
	m.oauth2Manager.SetToken(token, expiresAt)
}

// Invalidate drops the cached token.
func (m *ConfigTokenManager) Invalidate() {
	m.oauth2Manager.Invalidate()
}

// GetTokenExpiry returns the current token's expiration time.
func (m *ConfigTokenManager) GetTokenExpiry() time.Time {
	token := m.oauth2Manager.Current()
	if token == nil {
		return time.Time{}
	}

	return token.ExpiresAt
}

func (m *ConfigTokenManager) persistIfChanged() {
	token := m.oauth2Manager.Current()
	if token == nil {
		return
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if token.AccessToken == m.lastPersisted {
		return
	}

	err := m.persistToken(token)
	if err != nil {
		// The token is still usable for this process.
		if m.logger != nil {
			m.logger.Warn("Failed to persist refreshed token", map[string]interface{}{
				"profile": m.profile,
				"error":   err.Error(),
			})
		}

		return
	}

	m.lastPersisted = token.AccessToken
}

func (m *ConfigTokenManager) persistToken(token *Token) error {
	if m.configPersister == nil {
		return ErrNoConfigPersister
	}

	err := m.configPersister.UpdateProfileToken(m.profile, token.AccessToken, token.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to update profile token: %w", err)
	}

	return nil
}
