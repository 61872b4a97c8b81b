package constants

import "time"

// File and directory permissions.
const (
	// ConfigDirPerm is the permission for configuration directories.
	ConfigDirPerm = 0750

	// ConfigFilePerm is the permission for configuration files.
	ConfigFilePerm = 0600
)

// HTTP and network timeouts.
const (
	// DefaultHTTPTimeout is the default timeout for a single HTTP attempt.
	DefaultHTTPTimeout = 60 * time.Second

	// TokenHTTPTimeout bounds a single call to the OAuth2 token endpoint.
	TokenHTTPTimeout = 30 * time.Second
)

// Retry limits.
const (
	// DefaultRetryAttempts is the default total number of attempts per call.
	DefaultRetryAttempts = 3

	// DefaultRetryWaitMin is the base delay of the exponential backoff.
	DefaultRetryWaitMin = 500 * time.Millisecond

	// DefaultRetryWaitMax caps a computed backoff delay.
	DefaultRetryWaitMax = 10 * time.Second

	// ExponentialBackoffBase is the multiplier between consecutive delays.
	ExponentialBackoffBase = 2

	// TokenExpirationBuffer is the buffer time before token expiration.
	TokenExpirationBuffer = 30 * time.Second

	// DefaultTokenLifetime is assumed when the token endpoint omits expires_in.
	DefaultTokenLifetime = 3600 * time.Second
)

// Time intervals and delays.
const (
	// DefaultPollInterval is used between upload status polls.
	DefaultPollInterval = 2 * time.Second

	// QuickPollInterval is used for fast polling in tests.
	QuickPollInterval = 10 * time.Millisecond

	// DefaultJobPollTimeout bounds WaitUntilTerminal when no timeout is given.
	DefaultJobPollTimeout = 5 * time.Minute
)

// Pagination limits.
const (
	// StandardPageSize is the page size requested from listing endpoints.
	StandardPageSize = 50

	// MaxPages is the hard cap on pages walked by a single fetch.
	MaxPages = 10000

	// FailurePreviewLimit is the number of failures printed before truncating.
	FailurePreviewLimit = 10
)

// Cache settings.
const (
	// DefaultCacheSize is the maximum number of job snapshots kept in memory.
	DefaultCacheSize = 1000

	// DefaultCacheBucket is the NATS KV bucket for job snapshots.
	DefaultCacheBucket = "gia-upload-jobs"

	// DefaultCacheTTL is how long a terminal job snapshot is kept.
	DefaultCacheTTL = 7 * 24 * time.Hour
)

// REST paths.
const (
	// APIPrefix is prepended to every governance path.
	APIPrefix = "/iga"

	// ApplicationsPath is the disconnected application collection.
	ApplicationsPath = "/governance/application"

	// DefaultTokenPath is the alpha realm token endpoint on the tenant host.
	DefaultTokenPath = "/am/oauth2/realms/root/realms/alpha/access_token"
)

// DefaultScopes returns the scopes requested when none are configured.
func DefaultScopes() []string {
	return []string{"fr:idm:*", "fr:iga:*"}
}

// Application payload constants.
const (
	// DisconnectedDatasourceID marks an application as not backed by a connector.
	DisconnectedDatasourceID = "disconnected"
)

// UI and display constants.
const (
	// NotAvailable is used when information is not available.
	NotAvailable = "N/A"

	// None is used when no value is present.
	None = "none"

	// MaskedSecret is used to hide sensitive information.
	MaskedSecret = "***"

	// TransientFailureHint follows errors the server or network may not repeat.
	TransientFailureHint = "The failure looks transient. Running the command again is safe."
)

// Format constants.
const (
	// FormatJSON for JSON output format.
	FormatJSON = "json"

	// FormatYAML for YAML output format.
	FormatYAML = "yaml"

	// FormatTable for table output format.
	FormatTable = "table"
)

// Profile constants.
const (
	// DefaultProfile is used when --profile is not given.
	DefaultProfile = "default"

	// ConfigDirName is the directory under $HOME holding the CLI config.
	ConfigDirName = ".gia"

	// ConfigFileName is the CLI config file name without extension.
	ConfigFileName = "config"

	// EnvPrefix is the environment variable prefix read by viper.
	EnvPrefix = "GIA"
)
