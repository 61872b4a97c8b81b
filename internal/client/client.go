package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/fivetwenty-io/gia-client/internal/auth"
	"github.com/fivetwenty-io/gia-client/internal/constants"
	"github.com/fivetwenty-io/gia-client/internal/http"
	"github.com/fivetwenty-io/gia-client/internal/retry"
	"github.com/fivetwenty-io/gia-client/pkg/gia"
)

// Client implements the gia.Client interface.
type Client struct {
	httpClient   *http.Client
	tokenManager auth.TokenManager
	baseURL      string
	logger       gia.Logger
	cache        gia.Cache

	// Resource clients
	applications *ApplicationsClient
	objectTypes  *ObjectTypesClient
	uploads      *UploadsClient
	records      *RecordsClient
	reconciler   *ReconcilerClient
	jobs         *JobTrackerClient
}

// createTokenManager creates the token manager matching the configured
// credentials. A nil manager means requests are sent unauthenticated.
func createTokenManager(config *gia.Config) auth.TokenManager {
	if config.ClientID != "" && config.ClientSecret != "" {
		return auth.NewOAuth2TokenManager(oauthConfig(config))
	}

	if config.AccessToken != "" {
		return auth.NewStaticTokenManager(config.AccessToken, config.AccessTokenExpiresAt)
	}

	return nil
}

func oauthConfig(config *gia.Config) *auth.OAuth2Config {
	return &auth.OAuth2Config{
		TokenURL:             config.TokenURL,
		ClientID:             config.ClientID,
		ClientSecret:         config.ClientSecret,
		Scopes:               config.Scopes,
		AccessToken:          config.AccessToken,
		AccessTokenExpiresAt: config.AccessTokenExpiresAt,
		Retry:                retryPolicy(config),
		Logger:               config.Logger,
	}
}

// retryPolicy builds the policy from config, keeping defaults for unset values.
func retryPolicy(config *gia.Config) retry.Policy {
	policy := retry.DefaultPolicy()

	if config.RetryMax > 0 {
		policy.MaxAttempts = config.RetryMax
	}

	if config.RetryWaitMin > 0 {
		policy.BaseDelay = config.RetryWaitMin
	}

	if config.RetryWaitMax > 0 {
		policy.MaxDelay = config.RetryWaitMax
	}

	return policy.Normalize()
}

// createHTTPClientOptions builds HTTP client options from config.
func createHTTPClientOptions(config *gia.Config) []http.Option {
	httpOpts := []http.Option{
		http.WithRetryPolicy(retryPolicy(config)),
	}

	if config.Logger != nil {
		httpOpts = append(httpOpts, http.WithLogger(config.Logger))
	}

	if config.Debug {
		httpOpts = append(httpOpts, http.WithDebug(true))
	}

	if config.UserAgent != "" {
		httpOpts = append(httpOpts, http.WithUserAgent(config.UserAgent))
	}

	if config.HTTPTimeout > 0 {
		httpOpts = append(httpOpts, http.WithTimeout(config.HTTPTimeout))
	}

	return httpOpts
}

// New creates a governance API client.
func New(ctx context.Context, config *gia.Config) (*Client, error) {
	if config == nil {
		return nil, gia.ErrConfigRequired
	}

	if ctx.Err() != nil {
		return nil, &gia.CancelledError{Err: ctx.Err()}
	}

	return NewWithTokenManager(config, createTokenManager(config))
}

// NewWithTokenPersister creates a client whose client_credentials tokens are
// written back through persister under profile.
func NewWithTokenPersister(config *gia.Config, persister auth.ConfigPersister, profile string) (*Client, error) {
	if config == nil {
		return nil, gia.ErrConfigRequired
	}

	if config.ClientID == "" || config.ClientSecret == "" {
		return NewWithTokenManager(config, createTokenManager(config))
	}

	return NewWithTokenManager(config, auth.NewConfigTokenManager(oauthConfig(config), persister, profile))
}

// NewWithTokenManager creates a client with a caller-supplied token manager,
// for example one that persists tokens into a CLI profile.
func NewWithTokenManager(config *gia.Config, tokenManager auth.TokenManager) (*Client, error) {
	if config == nil {
		return nil, gia.ErrConfigRequired
	}

	if config.BaseURL == "" {
		return nil, gia.ErrBaseURLRequired
	}

	cacheConfig := config.Cache
	if cacheConfig == nil {
		cacheConfig = gia.DefaultCacheConfig()
	}

	cache, err := gia.NewCacheFromConfig(cacheConfig)
	if err != nil {
		return nil, fmt.Errorf("creating job snapshot cache: %w", err)
	}

	baseURL := strings.TrimSuffix(config.BaseURL, "/")
	if !strings.HasSuffix(baseURL, constants.APIPrefix) {
		baseURL += constants.APIPrefix
	}

	client := &Client{
		httpClient:   http.NewClient(baseURL, tokenManager, createHTTPClientOptions(config)...),
		tokenManager: tokenManager,
		baseURL:      baseURL,
		logger:       config.Logger,
		cache:        cache,
	}

	client.initializeResourceClients(config)

	if client.logger != nil {
		client.logger.Debug("Client initialized", map[string]interface{}{
			"base_url":      baseURL,
			"authenticated": tokenManager != nil,
			"cache":         string(cacheConfig.Type),
		})
	}

	return client, nil
}

func (c *Client) initializeResourceClients(config *gia.Config) {
	paginator := NewPaginator(c.httpClient, config.PageSize, config.MaxPages)

	c.applications = NewApplicationsClient(c.httpClient, paginator)
	c.objectTypes = NewObjectTypesClient(c.httpClient)
	c.uploads = NewUploadsClient(c.httpClient, paginator)
	c.records = NewRecordsClient(c.httpClient, paginator)
	c.reconciler = NewReconciler(c.applications, c.objectTypes, c.logger)
	c.jobs = NewJobTracker(c.uploads, c.cache, c.logger)

	c.jobs.SetPollInterval(config.PollInterval)

	if config.Cache != nil && config.Cache.TTL > 0 {
		c.jobs.SetCacheTTL(config.Cache.TTL)
	}
}

// GetTokenManager returns the token manager used by the client.
func (c *Client) GetTokenManager() auth.TokenManager {
	return c.tokenManager
}

// BaseURL returns the API root every path is resolved against.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Close releases the job snapshot cache.
func (c *Client) Close() error {
	err := c.cache.Close()
	if err != nil {
		return fmt.Errorf("closing job snapshot cache: %w", err)
	}

	return nil
}

// Applications implements gia.Client.Applications.
func (c *Client) Applications() gia.ApplicationsClient {
	return c.applications
}

// ObjectTypes implements gia.Client.ObjectTypes.
func (c *Client) ObjectTypes() gia.ObjectTypesClient {
	return c.objectTypes
}

// Uploads implements gia.Client.Uploads.
func (c *Client) Uploads() gia.UploadsClient {
	return c.uploads
}

// Records implements gia.Client.Records.
func (c *Client) Records() gia.RecordsClient {
	return c.records
}

// Reconciler implements gia.Client.Reconciler.
func (c *Client) Reconciler() gia.Reconciler {
	return c.reconciler
}

// Jobs implements gia.Client.Jobs.
func (c *Client) Jobs() gia.JobTracker {
	return c.jobs
}
