package gia

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// TransportError is a network-level failure: no usable HTTP response was
// received.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("request failed: %s %s: %v", e.Method, e.URL, e.Err)
}

// Unwrap returns the underlying network error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// AuthError is a token acquisition or refresh failure, or a request that was
// still rejected after one forced refresh.
type AuthError struct {
	Message    string
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	msg := "authentication failed"
	if e.Message != "" {
		msg += ": " + e.Message
	}

	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

// Unwrap returns the underlying error.
func (e *AuthError) Unwrap() error {
	return e.Err
}

// ValidationError reports malformed local input. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid descriptor: " + e.Reason
	}

	return fmt.Sprintf("invalid descriptor: %s %s", e.Field, e.Reason)
}

// ConflictError reports an ambiguous upsert target, an immutable field
// change, or an HTTP 409 from the server.
type ConflictError struct {
	Reason     string
	Candidates []string
	StatusCode int
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	msg := "conflict: " + e.Reason
	if len(e.Candidates) > 0 {
		msg += " (candidates: " + strings.Join(e.Candidates, ", ") + ")"
	}

	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}

	return msg
}

// ProtocolError reports a response that violates the expected shape.
type ProtocolError struct {
	Path   string
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	msg := "protocol error"
	if e.Path != "" {
		msg += " on " + e.Path
	}

	msg += ": " + e.Reason

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

// Unwrap returns the underlying error.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// RemoteError is any other HTTP error. Message is the server message verbatim.
type RemoteError struct {
	StatusCode int           `json:"statusCode"        yaml:"statusCode"`
	Message    string        `json:"message"           yaml:"message"`
	Details    []interface{} `json:"details,omitempty" yaml:"details,omitempty"`
	Method     string        `json:"method,omitempty"  yaml:"method,omitempty"`
	Path       string        `json:"path,omitempty"    yaml:"path,omitempty"`

	// RetryAfter is the server's Retry-After hint, zero when absent.
	RetryAfter time.Duration `json:"-" yaml:"-"`
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}

	return fmt.Sprintf("%s (HTTP %d)", msg, e.StatusCode)
}

// CancelledError reports that the caller's context ended while a call or a
// wait was pending. Work already applied remotely is not rolled back.
type CancelledError struct {
	Err error
}

// Error implements the error interface.
func (e *CancelledError) Error() string {
	return "operation cancelled: " + e.Err.Error()
}

// Unwrap returns the context error.
func (e *CancelledError) Unwrap() error {
	return e.Err
}

// PartialProgressError reports a plan that stopped partway. Applied
// operations took effect remotely; re-running the reconciliation is safe.
type PartialProgressError struct {
	Applied      []Operation
	Failed       Operation
	NotAttempted []Operation
	Err          error
}

// Error implements the error interface.
func (e *PartialProgressError) Error() string {
	return fmt.Sprintf("%s failed after %d of %d operations applied: %v",
		e.Failed, len(e.Applied), len(e.Applied)+1+len(e.NotAttempted), e.Err)
}

// Unwrap returns the cause of the failed operation.
func (e *PartialProgressError) Unwrap() error {
	return e.Err
}

// Static errors for err113 compliance.
var (
	ErrCacheMiss           = errors.New("key not found in cache")
	ErrCacheDisabled       = errors.New("cache disabled")
	ErrConfigRequired      = errors.New("config is required")
	ErrBaseURLRequired     = errors.New("base URL is required")
	ErrNoHostInURL         = errors.New("no host specified in URL")
	ErrApplicationNotFound = errors.New("application not found")
	ErrObjectTypeNotFound  = errors.New("object type not found")
)

// IsNotFound checks if the error is an HTTP 404.
func IsNotFound(err error) bool {
	remoteErr := &RemoteError{}
	if errors.As(err, &remoteErr) {
		return remoteErr.StatusCode == http.StatusNotFound
	}

	return errors.Is(err, ErrApplicationNotFound) || errors.Is(err, ErrObjectTypeNotFound)
}

// IsConflict checks if the error is a ConflictError.
func IsConflict(err error) bool {
	conflictErr := &ConflictError{}

	return errors.As(err, &conflictErr)
}

// IsCancelled checks if the error is a CancelledError.
func IsCancelled(err error) bool {
	cancelledErr := &CancelledError{}

	return errors.As(err, &cancelledErr)
}

// ParseRemoteError builds a RemoteError from an error response body. The
// message is taken from "message", then "error", then the raw body.
func ParseRemoteError(statusCode int, data []byte) *RemoteError {
	remoteErr := &RemoteError{StatusCode: statusCode}

	var body map[string]interface{}

	err := json.Unmarshal(data, &body)
	if err != nil {
		remoteErr.Message = strings.TrimSpace(string(data))

		return remoteErr
	}

	switch {
	case stringField(body, "message") != "":
		remoteErr.Message = stringField(body, "message")
	case stringField(body, "error") != "":
		remoteErr.Message = stringField(body, "error")
	default:
		remoteErr.Message = strings.TrimSpace(string(data))
	}

	if details, ok := body["details"].([]interface{}); ok {
		remoteErr.Details = details
	}

	return remoteErr
}

func stringField(body map[string]interface{}, key string) string {
	if value, ok := body[key].(string); ok {
		return value
	}

	return ""
}
