package gia

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fivetwenty-io/gia-client/internal/constants"
)

// CacheType represents the type of cache backend.
type CacheType string

const (
	// CacheTypeMemory represents in-memory cache.
	CacheTypeMemory CacheType = "memory"

	// CacheTypeNATS represents NATS KV cache.
	CacheTypeNATS CacheType = "nats"

	// CacheTypeNone represents no caching.
	CacheTypeNone CacheType = "none"
)

// Static errors for err113 compliance.
var (
	ErrNATSConfigRequired    = errors.New("NATS configuration required for NATS cache")
	ErrUnsupportedCacheType  = errors.New("unsupported cache type")
	ErrKeyNotFoundInAnyCache = errors.New("key not found in any cache")
)

// CacheConfig configures the job snapshot cache backend.
type CacheConfig struct {
	// Type is the cache backend type
	Type CacheType `json:"type" yaml:"type"`

	// MaxSize is the maximum number of entries kept in memory
	MaxSize int `json:"max_size,omitempty" yaml:"max_size,omitempty"`

	// TTL is how long a snapshot is retained
	TTL time.Duration `json:"ttl,omitempty" yaml:"ttl,omitempty"`

	// NATS KV cache configuration
	NATS *NATSKVConfig `json:"nats,omitempty" yaml:"nats,omitempty"`
}

// NATSKVConfig configures the NATS JetStream key-value backend.
type NATSKVConfig struct {
	URL             string `json:"url"                        yaml:"url"`
	Bucket          string `json:"bucket,omitempty"           yaml:"bucket,omitempty"`
	CredentialsFile string `json:"credentials_file,omitempty" yaml:"credentials_file,omitempty"`
}

// DefaultCacheConfig returns default cache configuration.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Type:    CacheTypeMemory,
		MaxSize: constants.DefaultCacheSize,
		TTL:     constants.DefaultCacheTTL,
	}
}

// NewCacheFromConfig creates a cache backend from configuration. The NATS
// backend is fronted by a memory cache.
func NewCacheFromConfig(config *CacheConfig) (Cache, error) {
	if config == nil {
		config = DefaultCacheConfig()
	}

	maxSize := config.MaxSize
	if maxSize <= 0 {
		maxSize = constants.DefaultCacheSize
	}

	switch config.Type {
	case CacheTypeMemory, "":
		return NewMemoryCache(maxSize), nil

	case CacheTypeNATS:
		if config.NATS == nil || config.NATS.URL == "" {
			return nil, ErrNATSConfigRequired
		}

		ttl := config.TTL
		if ttl <= 0 {
			ttl = constants.DefaultCacheTTL
		}

		natsCache, err := NewNATSKVCache(config.NATS, ttl)
		if err != nil {
			return nil, err
		}

		return NewCacheChain(NewMemoryCache(maxSize), natsCache), nil

	case CacheTypeNone:
		return NewNoOpCache(), nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCacheType, config.Type)
	}
}

// NoOpCache is a cache that does nothing (no caching).
type NoOpCache struct{}

// NewNoOpCache creates a new no-op cache.
func NewNoOpCache() *NoOpCache {
	return &NoOpCache{}
}

// Get always returns an error (nothing cached).
func (c *NoOpCache) Get(ctx context.Context, key string) (*CacheEntry, error) {
	return nil, ErrCacheDisabled
}

// Set does nothing.
func (c *NoOpCache) Set(ctx context.Context, key string, entry *CacheEntry) error {
	return nil
}

// Delete does nothing.
func (c *NoOpCache) Delete(ctx context.Context, key string) error {
	return nil
}

// Close does nothing.
func (c *NoOpCache) Close() error {
	return nil
}

// CacheChain implements a chain of cache backends (L1, L2, etc.)
type CacheChain struct {
	caches []Cache
}

// NewCacheChain creates a new cache chain.
func NewCacheChain(caches ...Cache) *CacheChain {
	return &CacheChain{
		caches: caches,
	}
}

// Get retrieves an item from the cache chain.
func (c *CacheChain) Get(ctx context.Context, key string) (*CacheEntry, error) {
	for i, cache := range c.caches {
		entry, err := cache.Get(ctx, key)
		if err == nil {
			// Found in this cache, populate earlier caches
			for j := range i {
				_ = c.caches[j].Set(ctx, key, entry)
			}

			return entry, nil
		}
	}

	return nil, ErrKeyNotFoundInAnyCache
}

// Set stores an item in all caches.
func (c *CacheChain) Set(ctx context.Context, key string, entry *CacheEntry) error {
	var lastErr error

	for _, cache := range c.caches {
		err := cache.Set(ctx, key, entry)
		if err != nil {
			lastErr = err
		}
	}

	return lastErr
}

// Delete removes an item from all caches.
func (c *CacheChain) Delete(ctx context.Context, key string) error {
	var lastErr error

	for _, cache := range c.caches {
		err := cache.Delete(ctx, key)
		if err != nil {
			lastErr = err
		}
	}

	return lastErr
}

// Close closes every backend.
func (c *CacheChain) Close() error {
	var errs []error

	for _, cache := range c.caches {
		errs = append(errs, cache.Close())
	}

	return errors.Join(errs...)
}
