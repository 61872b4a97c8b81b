package giaclient

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/fivetwenty-io/gia-client/internal/client"
	"github.com/fivetwenty-io/gia-client/internal/constants"
	"github.com/fivetwenty-io/gia-client/pkg/gia"
)

// New creates a governance API client.
func New(ctx context.Context, config *gia.Config) (gia.Client, error) {
	if config == nil {
		return nil, gia.ErrConfigRequired
	}

	baseURL, err := NormalizeBaseURL(config.BaseURL)
	if err != nil {
		return nil, err
	}

	config.BaseURL = baseURL

	if needsTokenURL(config) {
		config.TokenURL = DefaultTokenURL(baseURL)
	}

	client, err := client.New(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create new client: %w", err)
	}

	return client, nil
}

// NewWithToken creates a client that sends a fixed bearer token.
func NewWithToken(ctx context.Context, baseURL, token string) (gia.Client, error) {
	return New(ctx, &gia.Config{
		BaseURL:     baseURL,
		AccessToken: token,
	})
}

// NewWithClientCredentials creates a client using the client_credentials grant.
func NewWithClientCredentials(ctx context.Context, baseURL, clientID, clientSecret string) (gia.Client, error) {
	return New(ctx, &gia.Config{
		BaseURL:      baseURL,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes:       constants.DefaultScopes(),
	})
}

// NormalizeBaseURL trims a trailing slash and the API prefix, and adds
// "https://" when no scheme is present.
func NormalizeBaseURL(raw string) (string, error) {
	baseURL := strings.TrimSpace(raw)
	if baseURL == "" {
		return "", gia.ErrBaseURLRequired
	}

	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "https://" + baseURL
	}

	baseURL = strings.TrimSuffix(baseURL, "/")
	baseURL = strings.TrimSuffix(baseURL, constants.APIPrefix)

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	if parsed.Host == "" {
		return "", gia.ErrNoHostInURL
	}

	return baseURL, nil
}

// DefaultTokenURL returns the alpha realm token endpoint of the tenant.
func DefaultTokenURL(baseURL string) string {
	return strings.TrimSuffix(baseURL, "/") + constants.DefaultTokenPath
}

func needsTokenURL(config *gia.Config) bool {
	return config.TokenURL == "" && config.ClientID != "" && config.ClientSecret != ""
}
