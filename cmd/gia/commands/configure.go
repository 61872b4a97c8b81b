package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/fivetwenty-io/gia-client/internal/constants"
	"github.com/fivetwenty-io/gia-client/pkg/giaclient"
)

type configureOptions struct {
	baseURL       string
	tokenEndpoint string
	clientID      string
	clientSecret  string
	scopes        []string
}

// NewConfigureCommand creates the configure command.
func NewConfigureCommand() *cobra.Command {
	opts := &configureOptions{}

	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Create or update a connection profile",
		Long: `Store the tenant URL and service account credentials for a profile.

Values not given as flags are prompted for. The client secret is read
without echo when stdin is a terminal.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigure(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.baseURL, "base-url", "", "tenant base URL")
	cmd.Flags().StringVar(&opts.tokenEndpoint, "token-endpoint", "", "OAuth2 token endpoint (derived from the base URL if empty)")
	cmd.Flags().StringVar(&opts.clientID, "client-id", "", "service account client ID")
	cmd.Flags().StringVar(&opts.clientSecret, "client-secret", "", "service account client secret")
	cmd.Flags().StringSliceVar(&opts.scopes, "scopes", nil, "OAuth2 scopes (default fr:idm:*,fr:iga:*)")

	return cmd
}

func runConfigure(cmd *cobra.Command, opts *configureOptions) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}

	name := profileName(config)

	profile := &Profile{}
	if stored, ok := config.Profiles[name]; ok {
		profile = stored
	}

	reader := bufio.NewReader(cmd.InOrStdin())
	out := cmd.ErrOrStderr()

	err = promptForProfile(reader, out, profile, opts)
	if err != nil {
		return err
	}

	baseURL, err := giaclient.NormalizeBaseURL(profile.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}

	profile.BaseURL = baseURL

	if profile.TokenEndpoint == "" {
		profile.TokenEndpoint = giaclient.DefaultTokenURL(baseURL)
	}

	if len(profile.Scopes) == 0 {
		profile.Scopes = constants.DefaultScopes()
	}

	// New credentials invalidate any cached token.
	profile.Token = ""
	profile.TokenExpiresAt = nil

	config.Profiles[name] = profile
	if config.CurrentProfile == "" {
		config.CurrentProfile = name
	}

	err = saveConfig(config)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Profile '%s' saved\n", name)

	return nil
}

func promptForProfile(reader *bufio.Reader, out io.Writer, profile *Profile, opts *configureOptions) error {
	var err error

	profile.BaseURL, err = flagOrPrompt(reader, out, opts.baseURL, "Base URL", profile.BaseURL)
	if err != nil {
		return err
	}

	if profile.BaseURL == "" {
		return constants.ErrBaseURLRequired
	}

	profile.ClientID, err = flagOrPrompt(reader, out, opts.clientID, "Client ID", profile.ClientID)
	if err != nil {
		return err
	}

	if profile.ClientID == "" {
		return constants.ErrClientIDRequired
	}

	switch {
	case opts.clientSecret != "":
		profile.ClientSecret = opts.clientSecret
	default:
		secret, err := promptSecret(reader, out, "Client Secret")
		if err != nil {
			return err
		}

		if secret != "" {
			profile.ClientSecret = secret
		}
	}

	if profile.ClientSecret == "" {
		return constants.ErrClientSecretRequired
	}

	if opts.tokenEndpoint != "" {
		profile.TokenEndpoint = opts.tokenEndpoint
	}

	if len(opts.scopes) > 0 {
		profile.Scopes = opts.scopes
	}

	return nil
}

// flagOrPrompt returns the flag value, or prompts showing current as the
// default kept on an empty answer.
func flagOrPrompt(reader *bufio.Reader, out io.Writer, flagValue, label, current string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}

	if current != "" {
		_, _ = fmt.Fprintf(out, "%s [%s]: ", label, current)
	} else {
		_, _ = fmt.Fprintf(out, "%s: ", label)
	}

	line, err := reader.ReadString('\n')
	if err != nil && line == "" && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(label), err)
	}

	if answer := strings.TrimSpace(line); answer != "" {
		return answer, nil
	}

	return current, nil
}

func promptSecret(reader *bufio.Reader, out io.Writer, label string) (string, error) {
	_, _ = fmt.Fprintf(out, "%s: ", label)

	fd := int(os.Stdin.Fd()) //nolint:gosec // stdin descriptor fits in int
	if !term.IsTerminal(fd) {
		line, err := reader.ReadString('\n')
		if err != nil && line == "" && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("failed to read client secret: %w", err)
		}

		return strings.TrimSpace(line), nil
	}

	secretBytes, err := term.ReadPassword(fd)
	if err != nil {
		return "", fmt.Errorf("failed to read client secret: %w", err)
	}

	_, _ = fmt.Fprintln(out)

	return strings.TrimSpace(string(secretBytes)), nil
}
