package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/fivetwenty-io/gia-client/internal/client"
	"github.com/fivetwenty-io/gia-client/internal/constants"
	"github.com/fivetwenty-io/gia-client/internal/logging"
	"github.com/fivetwenty-io/gia-client/pkg/gia"
	"github.com/fivetwenty-io/gia-client/pkg/giaclient"
)

// Config represents the CLI configuration file.
type Config struct {
	CurrentProfile string              `json:"current_profile,omitempty" yaml:"current_profile,omitempty"`
	Output         string              `json:"output,omitempty"          yaml:"output,omitempty"`
	Profiles       map[string]*Profile `json:"profiles,omitempty"        yaml:"profiles,omitempty"`
	Cache          *gia.CacheConfig    `json:"cache,omitempty"           yaml:"cache,omitempty"`
}

// Profile holds the connection settings of one tenant.
type Profile struct {
	BaseURL        string     `json:"base_url"                   yaml:"base_url"`
	TokenEndpoint  string     `json:"token_endpoint,omitempty"   yaml:"token_endpoint,omitempty"`
	ClientID       string     `json:"client_id,omitempty"        yaml:"client_id,omitempty"`
	ClientSecret   string     `json:"client_secret,omitempty"    yaml:"client_secret,omitempty"`
	Scopes         []string   `json:"scopes,omitempty"           yaml:"scopes,omitempty"`
	Token          string     `json:"token,omitempty"            yaml:"token,omitempty"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty" yaml:"token_expires_at,omitempty"`
	LastRefreshed  *time.Time `json:"last_refreshed,omitempty"   yaml:"last_refreshed,omitempty"`
}

// configFilePath returns the --config path, or ~/.gia/config.yml.
func configFilePath() (string, error) {
	if path := viper.GetString("config"); path != "" {
		return path, nil
	}

	if path := viper.ConfigFileUsed(); path != "" {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(home, constants.ConfigDirName, constants.ConfigFileName+".yml"), nil
}

// loadConfig reads the config file. A missing file yields an empty config.
func loadConfig() (*Config, error) {
	path, err := configFilePath()
	if err != nil {
		return nil, err
	}

	config := &Config{Profiles: map[string]*Profile{}}

	// path is the user's own config file
	// #nosec G304
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return config, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	err = yaml.Unmarshal(data, config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if config.Profiles == nil {
		config.Profiles = map[string]*Profile{}
	}

	return config, nil
}

// saveConfig writes config with owner-only permissions.
func saveConfig(config *Config) error {
	path, err := configFilePath()
	if err != nil {
		return err
	}

	err = os.MkdirAll(filepath.Dir(path), constants.ConfigDirPerm)
	if err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	err = os.WriteFile(path, data, constants.ConfigFilePerm)
	if err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// profileName resolves --profile, then current_profile, then "default".
func profileName(config *Config) string {
	if name := viper.GetString("profile"); name != "" {
		return name
	}

	if config != nil && config.CurrentProfile != "" {
		return config.CurrentProfile
	}

	return constants.DefaultProfile
}

// resolveProfile returns the selected profile with GIA_* environment
// overrides applied on top.
func resolveProfile(config *Config) (string, *Profile, error) {
	name := profileName(config)

	profile := &Profile{}
	if stored, ok := config.Profiles[name]; ok {
		copied := *stored
		profile = &copied
	}

	applyEnvOverrides(profile)

	if profile.BaseURL == "" {
		if len(config.Profiles) == 0 {
			return "", nil, constants.ErrNoProfilesConfigured
		}

		return "", nil, fmt.Errorf("'%s': %w", name, constants.ErrProfileNotFound)
	}

	return name, profile, nil
}

func applyEnvOverrides(profile *Profile) {
	overrides := map[string]*string{
		"base_url":       &profile.BaseURL,
		"token_endpoint": &profile.TokenEndpoint,
		"client_id":      &profile.ClientID,
		"client_secret":  &profile.ClientSecret,
		"token":          &profile.Token,
	}

	for key, field := range overrides {
		if value := viper.GetString(key); value != "" {
			*field = value
		}
	}
}

// buildClientConfig turns a profile into a gia.Config.
func buildClientConfig(profile *Profile, cache *gia.CacheConfig) (*gia.Config, error) {
	baseURL, err := giaclient.NormalizeBaseURL(profile.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL in profile: %w", err)
	}

	verbose := viper.GetBool("verbose")

	config := &gia.Config{
		BaseURL:      baseURL,
		TokenURL:     profile.TokenEndpoint,
		ClientID:     profile.ClientID,
		ClientSecret: profile.ClientSecret,
		Scopes:       profile.Scopes,
		AccessToken:  profile.Token,
		Cache:        cache,
		Debug:        verbose,
		Logger:       logging.Stderr(verbose),
	}

	if profile.TokenExpiresAt != nil {
		config.AccessTokenExpiresAt = *profile.TokenExpiresAt
	}

	if config.TokenURL == "" {
		config.TokenURL = giaclient.DefaultTokenURL(baseURL)
	}

	if len(config.Scopes) == 0 {
		config.Scopes = constants.DefaultScopes()
	}

	return config, nil
}

// createClient builds a client for the selected profile. Tokens acquired
// with client credentials are persisted back into the profile.
func createClient(ctx context.Context) (gia.Client, error) {
	if ctx.Err() != nil {
		return nil, &gia.CancelledError{Err: ctx.Err()}
	}

	config, err := loadConfig()
	if err != nil {
		return nil, err
	}

	name, profile, err := resolveProfile(config)
	if err != nil {
		return nil, err
	}

	if profile.Token == "" && (profile.ClientID == "" || profile.ClientSecret == "") {
		return nil, fmt.Errorf("profile '%s': %w", name, constants.ErrProfileIncomplete)
	}

	clientConfig, err := buildClientConfig(profile, config.Cache)
	if err != nil {
		return nil, err
	}

	giaClient, err := client.NewWithTokenPersister(clientConfig, NewConfigPersister(), name)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return giaClient, nil
}

// NewConfigCommand creates the config command group.
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage CLI configuration",
		Long:  "Show, select and remove connection profiles",
	}

	cmd.AddCommand(newConfigShowCommand())
	cmd.AddCommand(newConfigUseCommand())
	cmd.AddCommand(newConfigDeleteCommand())

	return cmd
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show configured profiles",
		Long:  "Display every configured profile with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig()
			if err != nil {
				return err
			}

			masked := maskConfig(config)

			return render(cmd, masked, func() error {
				return displayProfilesTable(cmd, masked)
			})
		},
	}
}

func newConfigUseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "use PROFILE",
		Short: "Select the default profile",
		Long:  "Make PROFILE the profile used when --profile is not given",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig()
			if err != nil {
				return err
			}

			if _, ok := config.Profiles[args[0]]; !ok {
				return fmt.Errorf("'%s': %w", args[0], constants.ErrProfileNotFound)
			}

			config.CurrentProfile = args[0]

			err = saveConfig(config)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Using profile '%s'\n", args[0])

			return nil
		},
	}
}

func newConfigDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete PROFILE",
		Short: "Remove a profile",
		Long:  "Remove PROFILE and its cached token from the configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig()
			if err != nil {
				return err
			}

			if _, ok := config.Profiles[args[0]]; !ok {
				return fmt.Errorf("'%s': %w", args[0], constants.ErrProfileNotFound)
			}

			delete(config.Profiles, args[0])

			if config.CurrentProfile == args[0] {
				config.CurrentProfile = ""
			}

			err = saveConfig(config)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Removed profile '%s'\n", args[0])

			return nil
		},
	}
}

func maskConfig(config *Config) *Config {
	masked := &Config{
		CurrentProfile: config.CurrentProfile,
		Output:         config.Output,
		Cache:          config.Cache,
		Profiles:       make(map[string]*Profile, len(config.Profiles)),
	}

	for name, profile := range config.Profiles {
		copied := *profile
		if copied.ClientSecret != "" {
			copied.ClientSecret = constants.MaskedSecret
		}

		if copied.Token != "" {
			copied.Token = constants.MaskedSecret
		}

		masked.Profiles[name] = &copied
	}

	return masked
}

func displayProfilesTable(cmd *cobra.Command, config *Config) error {
	if len(config.Profiles) == 0 {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No profiles configured")

		return nil
	}

	names := make([]string, 0, len(config.Profiles))
	for name := range config.Profiles {
		names = append(names, name)
	}

	slices.Sort(names)

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.Header("Profile", "Current", "Base URL", "Client ID", "Token Expires")

	for _, name := range names {
		profile := config.Profiles[name]

		current := ""
		if name == profileName(config) {
			current = "*"
		}

		expires := constants.NotAvailable
		if profile.TokenExpiresAt != nil {
			expires = profile.TokenExpiresAt.Format(time.RFC3339)
		}

		_ = table.Append(name, current, profile.BaseURL, valueOrNA(profile.ClientID), expires)
	}

	return renderTable(table)
}

func valueOrNA(value string) string {
	if strings.TrimSpace(value) == "" {
		return constants.NotAvailable
	}

	return value
}
