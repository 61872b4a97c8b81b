package commands

import (
	"fmt"
	"sync"
	"time"

	"github.com/fivetwenty-io/gia-client/internal/constants"
)

// ConfigPersister implements the auth.ConfigPersister interface.
type ConfigPersister struct {
	mutex sync.Mutex
}

// NewConfigPersister creates a new config persister.
func NewConfigPersister() *ConfigPersister {
	return &ConfigPersister{}
}

// UpdateProfileToken stores a freshly acquired token in the named profile.
func (p *ConfigPersister) UpdateProfileToken(profile, token string, expiresAt time.Time) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	config, err := loadConfig()
	if err != nil {
		return err
	}

	stored, exists := config.Profiles[profile]
	if !exists {
		return fmt.Errorf("profile '%s': %w", profile, constants.ErrProfileNotFound)
	}

	stored.Token = token
	stored.TokenExpiresAt = nil

	if !expiresAt.IsZero() {
		stored.TokenExpiresAt = &expiresAt
	}

	now := time.Now()
	stored.LastRefreshed = &now

	return saveConfig(config)
}
