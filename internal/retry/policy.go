// Package retry classifies remote call outcomes and schedules retries with
// capped exponential backoff.
package retry

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fivetwenty-io/gia-client/internal/constants"
	"github.com/fivetwenty-io/gia-client/pkg/gia"
)

// Mode tells the policy how safe it is to repeat a request.
type Mode int

const (
	// ModeIdempotent requests (GET, PUT, DELETE, keyed POST) are retried on
	// every transient failure.
	ModeIdempotent Mode = iota

	// ModeUntilAck requests are retried only while the server cannot have
	// received them: the body was never fully written and no response other
	// than 429 came back.
	ModeUntilAck
)

// String returns the mode name used in logs.
func (m Mode) String() string {
	if m == ModeUntilAck {
		return "until-ack"
	}

	return "idempotent"
}

// Class is the outcome classification of one attempt.
type Class int

const (
	ClassSuccess Class = iota
	ClassRetryable
	ClassPermanent
)

// Policy configures retries.
type Policy struct {
	// MaxAttempts is the total number of attempts including the first.
	MaxAttempts int
	// BaseDelay is the wait before the first retry.
	BaseDelay time.Duration
	// MaxDelay caps a computed delay. Retry-After values are not capped.
	MaxDelay time.Duration
	// Multiplier grows the delay between consecutive retries.
	Multiplier float64
}

// DefaultPolicy returns the default retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: constants.DefaultRetryAttempts,
		BaseDelay:   constants.DefaultRetryWaitMin,
		MaxDelay:    constants.DefaultRetryWaitMax,
		Multiplier:  constants.ExponentialBackoffBase,
	}
}

// Normalize fills zero fields with defaults.
func (p Policy) Normalize() Policy {
	defaults := DefaultPolicy()

	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaults.MaxAttempts
	}

	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}

	if p.MaxDelay <= 0 {
		p.MaxDelay = defaults.MaxDelay
	}

	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}

	if p.Multiplier < 1 {
		p.Multiplier = defaults.Multiplier
	}

	return p
}

// Backoff returns the delay before retry number retry (0 for the first
// retry) without considering server hints.
func (p Policy) Backoff(retry int) time.Duration {
	if retry < 0 {
		retry = 0
	}

	delay := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(retry))
	if delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}

	return time.Duration(delay)
}

// Delay returns the wait before retry number retry. A Retry-After header on
// a 429 or 503 response overrides the computed backoff.
func (p Policy) Delay(retry int, resp *http.Response) time.Duration {
	if resp != nil && (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable) {
		if wait, ok := ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()); ok {
			return wait
		}
	}

	return p.Backoff(retry)
}

// ParseRetryAfter parses a Retry-After value given in seconds or as an
// HTTP-date.
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}

		return time.Duration(seconds) * time.Second, true
	}

	when, err := http.ParseTime(value)
	if err != nil {
		return 0, false
	}

	wait := when.Sub(now)
	if wait < 0 {
		wait = 0
	}

	return wait, true
}

// Attempt is what the transport observed for one try.
type Attempt struct {
	Response *http.Response
	Err      error
	// Written is true once the full request was handed to the connection.
	Written bool
}

// ClassifyAttempt classifies a raw HTTP attempt under mode.
func ClassifyAttempt(attempt Attempt, mode Mode) Class {
	if attempt.Err != nil {
		if !transientTransportError(attempt.Err) {
			return ClassPermanent
		}

		if mode == ModeUntilAck && attempt.Written {
			return ClassPermanent
		}

		return ClassRetryable
	}

	if attempt.Response == nil {
		return ClassPermanent
	}

	code := attempt.Response.StatusCode

	switch {
	case code < http.StatusBadRequest:
		return ClassSuccess
	case code == http.StatusTooManyRequests:
		return ClassRetryable
	case code >= http.StatusInternalServerError && code != http.StatusNotImplemented:
		if mode == ModeUntilAck {
			return ClassPermanent
		}

		return ClassRetryable
	default:
		return ClassPermanent
	}
}

// Classify classifies an error returned by a remote call.
func Classify(err error) Class {
	if err == nil {
		return ClassSuccess
	}

	if gia.IsCancelled(err) {
		return ClassPermanent
	}

	remoteErr := &gia.RemoteError{}
	if errors.As(err, &remoteErr) {
		code := remoteErr.StatusCode
		if code == http.StatusTooManyRequests || (code >= http.StatusInternalServerError && code != http.StatusNotImplemented) {
			return ClassRetryable
		}

		return ClassPermanent
	}

	transportErr := &gia.TransportError{}
	if errors.As(err, &transportErr) {
		if transientTransportError(transportErr.Err) {
			return ClassRetryable
		}

		return ClassPermanent
	}

	return ClassPermanent
}

// IsRetryable reports whether err is a transient failure.
func IsRetryable(err error) bool {
	return Classify(err) == ClassRetryable
}

// transientTransportError reports whether a transport failure may succeed on
// another attempt. Callers check their own context before asking.
func transientTransportError(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}

	var unknownAuthority x509.UnknownAuthorityError
	if errors.As(err, &unknownAuthority) {
		return false
	}

	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return false
	}

	msg := err.Error()
	if strings.Contains(msg, "unsupported protocol scheme") || strings.Contains(msg, "stopped after") {
		return false
	}

	return true
}
