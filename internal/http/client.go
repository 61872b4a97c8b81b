// Package http is the authenticated JSON transport used by every governance
// API call. It adds bearer tokens, retries transient failures under a
// retry.Policy and maps error responses onto the gia error taxonomy.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"strings"
	"time"

	"github.com/fivetwenty-io/gia-client/internal/auth"
	"github.com/fivetwenty-io/gia-client/internal/constants"
	"github.com/fivetwenty-io/gia-client/internal/retry"
	"github.com/fivetwenty-io/gia-client/pkg/gia"
	"github.com/google/uuid"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
)

const (
	defaultUserAgent = "gia-client/1.0"

	headerAuthorization  = "Authorization"
	headerContentType    = "Content-Type"
	headerRequestID      = "X-Request-ID"
	headerIdempotencyKey = "Idempotency-Key"

	contentTypeJSON = "application/json"
	maxLoggedBody   = 4096
)

// Static errors for err113 compliance.
var (
	ErrNilRequest = errors.New("request is nil")
)

// Client is an authenticated HTTP client for the governance API.
type Client struct {
	baseURL      string
	tokenManager auth.TokenManager
	httpClient   *retryablehttp.Client
	policy       retry.Policy
	timeout      time.Duration
	userAgent    string
	logger       gia.Logger
	debug        bool
}

// Request is a single API call.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Body    interface{}
	Headers map[string]string

	// IdempotencyKey marks a POST as safe to repeat. It is sent as the
	// Idempotency-Key header.
	IdempotencyKey string

	// AckSensitive disables retries once the server may have received the
	// request, regardless of method.
	AckSensitive bool

	// BodyFunc supplies a fresh request body for every attempt. When set,
	// Body is ignored and ContentType is sent as-is.
	BodyFunc    func() (io.Reader, error)
	ContentType string
}

// Response is the result of an API call. Body is fully read.
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger gia.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithDebug logs every request and response.
func WithDebug(debug bool) Option {
	return func(c *Client) {
		c.debug = debug
	}
}

// WithRetryConfig sets the total number of attempts and the backoff bounds.
func WithRetryConfig(maxAttempts int, waitMin, waitMax time.Duration) Option {
	return func(c *Client) {
		c.policy.MaxAttempts = maxAttempts
		c.policy.BaseDelay = waitMin
		c.policy.MaxDelay = waitMax
	}
}

// WithRetryPolicy replaces the retry policy.
func WithRetryPolicy(policy retry.Policy) Option {
	return func(c *Client) {
		c.policy = policy
	}
}

// WithTimeout bounds a single attempt.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		if userAgent != "" {
			c.userAgent = userAgent
		}
	}
}

// NewClient creates a client for baseURL. tokenManager may be nil for
// unauthenticated use.
func NewClient(baseURL string, tokenManager auth.TokenManager, opts ...Option) *Client {
	client := &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		tokenManager: tokenManager,
		policy:       retry.DefaultPolicy(),
		timeout:      constants.DefaultHTTPTimeout,
		userAgent:    defaultUserAgent,
	}

	for _, opt := range opts {
		opt(client)
	}

	client.policy = client.policy.Normalize()

	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Timeout = client.timeout

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = httpClient
	retryClient.Logger = nil
	retryClient.RetryMax = client.policy.MaxAttempts - 1
	retryClient.RetryWaitMin = client.policy.BaseDelay
	retryClient.RetryWaitMax = client.policy.MaxDelay
	retryClient.CheckRetry = client.checkRetry
	retryClient.Backoff = client.backoff
	retryClient.RequestLogHook = client.beforeAttempt
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.httpClient = retryClient

	return client
}

// BaseURL returns the URL every path is resolved against.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do performs req. On an error status the response is returned together
// with the error.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, ErrNilRequest
	}

	if req.Method == http.MethodPost && req.IdempotencyKey == "" && req.Headers[headerIdempotencyKey] != "" {
		req.IdempotencyKey = req.Headers[headerIdempotencyKey]
	}

	requestID := uuid.NewString()

	resp, token, err := c.send(ctx, req, requestID)
	if err != nil {
		return resp, err
	}

	if resp.StatusCode == http.StatusUnauthorized && c.tokenManager != nil {
		refreshErr := c.tokenManager.RefreshToken(ctx, token)
		if refreshErr != nil {
			return resp, asAuthError(refreshErr)
		}

		resp, _, err = c.send(ctx, req, requestID)
		if err != nil {
			return resp, err
		}

		if resp.StatusCode == http.StatusUnauthorized {
			remoteErr := gia.ParseRemoteError(resp.StatusCode, resp.Body)

			return resp, &gia.AuthError{Message: remoteErr.Message, StatusCode: resp.StatusCode}
		}
	}

	return resp, c.statusError(req, resp)
}

// send performs one logical call and reports the bearer token it carried.
func (c *Client) send(ctx context.Context, req *Request, requestID string) (*Response, string, error) {
	fullURL, err := c.resolve(req.Path, req.Query)
	if err != nil {
		return nil, "", err
	}

	body, contentType, err := c.encodeBody(req)
	if err != nil {
		return nil, "", err
	}

	state := &attemptState{mode: modeFor(req)}
	ctx = context.WithValue(ctx, attemptStateKey{}, state)
	ctx = httptrace.WithClientTrace(ctx, &httptrace.ClientTrace{
		WroteRequest: func(info httptrace.WroteRequestInfo) {
			if info.Err == nil {
				state.written.Store(true)
			}
		},
	})

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, req.Method, fullURL, body)
	if err != nil {
		return nil, "", fmt.Errorf("creating request: %w", err)
	}

	token, err := c.setHeaders(ctx, httpReq, req, requestID, contentType)
	if err != nil {
		return nil, "", err
	}

	c.logRequest(req, fullURL, requestID)

	start := time.Now()

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if httpResp != nil && httpResp.Body != nil {
			_ = httpResp.Body.Close()
		}

		if ctx.Err() != nil {
			return nil, token, &gia.CancelledError{Err: fmt.Errorf("%s %s: %w", req.Method, req.Path, ctx.Err())}
		}

		return nil, token, &gia.TransportError{Method: req.Method, URL: fullURL, Err: err}
	}

	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, token, &gia.TransportError{Method: req.Method, URL: fullURL, Err: fmt.Errorf("reading response body: %w", err)}
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Body:       respBody,
		Headers:    httpResp.Header,
	}

	c.logResponse(req, resp, requestID, time.Since(start))

	return resp, token, nil
}

func (c *Client) resolve(path string, query url.Values) (string, error) {
	fullURL, err := url.Parse(c.baseURL + path)
	if err != nil {
		return "", fmt.Errorf("parsing request URL: %w", err)
	}

	if len(query) > 0 {
		merged := fullURL.Query()
		for key, values := range query {
			for _, value := range values {
				merged.Add(key, value)
			}
		}

		fullURL.RawQuery = merged.Encode()
	}

	return fullURL.String(), nil
}

func (c *Client) encodeBody(req *Request) (interface{}, string, error) {
	if req.BodyFunc != nil {
		return retryablehttp.ReaderFunc(req.BodyFunc), req.ContentType, nil
	}

	if req.Body == nil {
		return nil, "", nil
	}

	switch body := req.Body.(type) {
	case []byte:
		contentType := req.ContentType
		if contentType == "" {
			contentType = contentTypeJSON
		}

		return body, contentType, nil
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return nil, "", fmt.Errorf("marshaling request body: %w", err)
		}

		return data, contentTypeJSON, nil
	}
}

func (c *Client) setHeaders(
	ctx context.Context,
	httpReq *retryablehttp.Request,
	req *Request,
	requestID, contentType string,
) (string, error) {
	httpReq.Header.Set("Accept", contentTypeJSON)
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set(headerRequestID, requestID)

	if contentType != "" {
		httpReq.Header.Set(headerContentType, contentType)
	}

	if req.IdempotencyKey != "" {
		httpReq.Header.Set(headerIdempotencyKey, req.IdempotencyKey)
	}

	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	if c.tokenManager == nil {
		return "", nil
	}

	token, err := c.tokenManager.GetToken(ctx)
	if err != nil {
		return "", asAuthError(err)
	}

	httpReq.Header.Set(headerAuthorization, "Bearer "+token)

	return token, nil
}

// statusError maps an error status onto the taxonomy.
func (c *Client) statusError(req *Request, resp *Response) error {
	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}

	remoteErr := gia.ParseRemoteError(resp.StatusCode, resp.Body)
	remoteErr.Method = req.Method
	remoteErr.Path = req.Path

	if wait, ok := retry.ParseRetryAfter(resp.Headers.Get("Retry-After"), time.Now()); ok {
		remoteErr.RetryAfter = wait
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return &gia.AuthError{Message: remoteErr.Message, StatusCode: resp.StatusCode}
	case http.StatusConflict:
		return &gia.ConflictError{Reason: remoteErr.Message, StatusCode: resp.StatusCode}
	default:
		return remoteErr
	}
}

func asAuthError(err error) error {
	if gia.IsCancelled(err) {
		return err
	}

	authErr := &gia.AuthError{}
	if errors.As(err, &authErr) {
		return err
	}

	return &gia.AuthError{Message: "obtaining token", Err: err}
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, &Request{
		Method: http.MethodGet,
		Path:   path,
		Query:  query,
	})
}

// Post performs a POST request. Without an idempotency key it is retried
// only while the server cannot have seen it.
func (c *Client) Post(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Do(ctx, &Request{
		Method: http.MethodPost,
		Path:   path,
		Body:   body,
	})
}

// PostIdempotent performs a POST request carrying a fresh idempotency key,
// which makes it safe to retry like a PUT.
func (c *Client) PostIdempotent(ctx context.Context, path string, query url.Values, body interface{}) (*Response, error) {
	return c.Do(ctx, &Request{
		Method:         http.MethodPost,
		Path:           path,
		Query:          query,
		Body:           body,
		IdempotencyKey: uuid.NewString(),
	})
}

// Put performs a PUT request.
func (c *Client) Put(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Do(ctx, &Request{
		Method: http.MethodPut,
		Path:   path,
		Body:   body,
	})
}

// Patch performs a PATCH request.
func (c *Client) Patch(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Do(ctx, &Request{
		Method: http.MethodPatch,
		Path:   path,
		Body:   body,
	})
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, &Request{
		Method: http.MethodDelete,
		Path:   path,
	})
}

// DecodeJSON unmarshals a response body, reporting malformed JSON as a
// protocol error.
func DecodeJSON(resp *Response, path string, out interface{}) error {
	if resp == nil || len(bytes.TrimSpace(resp.Body)) == 0 {
		return &gia.ProtocolError{Path: path, Reason: "empty response body"}
	}

	err := json.Unmarshal(resp.Body, out)
	if err != nil {
		return &gia.ProtocolError{Path: path, Reason: "malformed JSON", Err: err}
	}

	return nil
}

func (c *Client) logRequest(req *Request, fullURL, requestID string) {
	if !c.debug || c.logger == nil {
		return
	}

	fields := map[string]interface{}{
		"method":     req.Method,
		"url":        fullURL,
		"request_id": requestID,
	}

	if req.IdempotencyKey != "" {
		fields["idempotency_key"] = req.IdempotencyKey
	}

	if req.Body != nil && req.BodyFunc == nil {
		if data, err := json.Marshal(req.Body); err == nil {
			fields["body"] = truncate(data)
		}
	}

	c.logger.Debug("HTTP Request", fields)
}

func (c *Client) logResponse(req *Request, resp *Response, requestID string, elapsed time.Duration) {
	if !c.debug || c.logger == nil {
		return
	}

	c.logger.Debug("HTTP Response", map[string]interface{}{
		"method":     req.Method,
		"path":       req.Path,
		"status":     resp.StatusCode,
		"request_id": requestID,
		"duration":   elapsed.String(),
		"body":       truncate(resp.Body),
	})
}

func truncate(data []byte) string {
	if len(data) > maxLoggedBody {
		return string(data[:maxLoggedBody]) + "..."
	}

	return string(data)
}
