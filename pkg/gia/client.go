package gia

import (
	"context"
	"iter"
	"time"
)

// ApplicationsClient wraps the disconnected application endpoints.
type ApplicationsClient interface {
	List(ctx context.Context, opts *ListOptions) iter.Seq2[*Application, error]
	Get(ctx context.Context, id string) (*Application, error)
	Create(ctx context.Context, app *Application) (*Application, error)
	Update(ctx context.Context, id string, app *Application) (*Application, error)
	Delete(ctx context.Context, id string) error
	FindByName(ctx context.Context, name string) ([]*Application, error)
}

// ObjectTypesClient wraps the object type endpoints of one application.
type ObjectTypesClient interface {
	Add(ctx context.Context, applicationID string, objectType *ObjectType) (*ObjectType, error)
	Get(ctx context.Context, applicationID, objectTypeID string) (*ObjectType, error)
	Update(ctx context.Context, applicationID string, objectType *ObjectType) (*ObjectType, error)
	Delete(ctx context.Context, applicationID, objectTypeID string) error
	Schema(ctx context.Context, applicationID, objectTypeID string) (map[string]interface{}, error)
}

// UploadsClient wraps the bulk ingestion endpoints.
type UploadsClient interface {
	Upload(ctx context.Context, applicationID, objectTypeID string, dataset Dataset) (string, error)
	Status(ctx context.Context, applicationID, uploadID string) (*UploadStatus, error)
	Failures(ctx context.Context, applicationID, uploadID string) iter.Seq2[FailureRecord, error]
	Files(ctx context.Context, applicationID string) ([]UploadedFile, error)
}

// RecordsClient reads the accounts and resources loaded into an application.
type RecordsClient interface {
	ListAccounts(ctx context.Context, applicationID string) iter.Seq2[Record, error]
	GetAccount(ctx context.Context, applicationID, accountID string) (Record, error)
	ListResources(ctx context.Context, applicationID string) iter.Seq2[Record, error]
	GetResource(ctx context.Context, applicationID, resourceID string) (Record, error)
}

// Reconciler turns a desired state into remote operations.
type Reconciler interface {
	Plan(ctx context.Context, desired *DesiredState, upsert bool) (*Plan, error)
	Apply(ctx context.Context, plan *Plan) (*ReconcileResult, error)
	Reconcile(ctx context.Context, desired *DesiredState, upsert bool) (*ReconcileResult, error)
	DeleteObjectType(ctx context.Context, applicationID, objectTypeID string) (*ReconcileResult, error)
}

// JobTracker submits datasets and follows the resulting upload jobs.
type JobTracker interface {
	Submit(ctx context.Context, applicationID, objectTypeID string, dataset Dataset) (*UploadJob, error)
	Resume(applicationID, uploadID string) *UploadJob
	Poll(ctx context.Context, job *UploadJob) (*UploadJob, error)
	WaitUntilTerminal(ctx context.Context, job *UploadJob, timeout, pollInterval time.Duration) (*UploadJob, error)
	Failures(ctx context.Context, job *UploadJob) iter.Seq2[FailureRecord, error]
}

// Client is the entry point returned by giaclient.New.
type Client interface {
	Applications() ApplicationsClient
	ObjectTypes() ObjectTypesClient
	Uploads() UploadsClient
	Records() RecordsClient
	Reconciler() Reconciler
	Jobs() JobTracker
}

// ListOptions are the CREST query parameters accepted by list endpoints.
type ListOptions struct {
	QueryFilter string
	Fields      []string
	SortKeys    []string
	PageSize    int
}

// UploadStatus is the raw status document of an upload job.
type UploadStatus struct {
	ID           string `json:"id,omitempty"  yaml:"id,omitempty"`
	Status       string `json:"status"        yaml:"status"`
	TotalCount   *int   `json:"totalCount"    yaml:"totalCount"`
	SuccessCount *int   `json:"successCount"  yaml:"successCount"`
	FailureCount *int   `json:"failureCount"  yaml:"failureCount"`
}

// Logger interface for logging.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// Config represents client configuration for building a gia.Client.
//
// # Authentication
//
// The client authenticates with the OAuth2 client_credentials grant against
// TokenURL using ClientID and ClientSecret. AccessToken, when set, is used
// directly as a static Bearer token and is never refreshed. A token that is
// rejected with HTTP 401 is refreshed once; a second rejection is reported
// as an AuthError.
//
// # Timeouts and retries
//
// Per-call deadlines should be controlled via the context passed to client
// methods. Transient failures (connection errors, HTTP 429 and 5xx) are
// retried up to RetryMax attempts in total with exponential backoff between
// RetryWaitMin and RetryWaitMax; a Retry-After header overrides the computed
// delay. Upload requests are never retried once the server has received the
// body.
type Config struct {
	// BaseURL: tenant base URL (e.g., "https://openam-example.forgeblocks.com").
	// giaclient.New trims a trailing slash and adds "https://" if no scheme
	// is present. API paths are appended under "/iga".
	BaseURL string

	// TokenURL: full OAuth2 token endpoint.
	TokenURL string
	// ClientID: OAuth2 client ID for the client_credentials grant.
	ClientID string
	// ClientSecret: OAuth2 client secret used with ClientID.
	ClientSecret string
	// Scopes: OAuth2 scopes requested with the token.
	Scopes []string
	// AccessToken: if set, used directly as a Bearer token.
	AccessToken string
	// AccessTokenExpiresAt: optional expiry of AccessToken. When set together
	// with client credentials, the token is reused until it expires.
	AccessTokenExpiresAt time.Time

	// HTTPTimeout: timeout of a single HTTP attempt.
	HTTPTimeout time.Duration
	// RetryMax: total attempts per call, including the first. If 0 the default is used.
	RetryMax int
	// RetryWaitMin: base backoff delay.
	RetryWaitMin time.Duration
	// RetryWaitMax: maximum computed backoff delay.
	RetryWaitMax time.Duration

	// PageSize: page size hint sent to listing endpoints.
	PageSize int
	// MaxPages: cap on pages walked by one listing before failing.
	MaxPages int
	// PollInterval: default interval used by WaitUntilTerminal when zero is passed.
	PollInterval time.Duration

	// Cache: backend for terminal upload job snapshots. If nil, an in-memory cache is used.
	Cache *CacheConfig

	// Debug: enables verbose HTTP request/response logging when a Logger is provided.
	Debug bool
	// Logger: optional structured logger used by the HTTP layer and helpers.
	Logger Logger
	// UserAgent: overrides the default User-Agent header sent by the client.
	UserAgent string
}
