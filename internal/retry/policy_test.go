package retry_test

import (
	"context"
	"errors"
	"net/http"
	"syscall"
	"testing"
	"time"

	"github.com/fivetwenty-io/gia-client/internal/retry"
	"github.com/fivetwenty-io/gia-client/pkg/gia"
	"github.com/stretchr/testify/assert"
)

func TestPolicy_Backoff(t *testing.T) {
	t.Parallel()

	policy := retry.Policy{
		MaxAttempts: 5,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    500 * time.Millisecond,
		Multiplier:  2,
	}

	assert.Equal(t, 100*time.Millisecond, policy.Backoff(0))
	assert.Equal(t, 200*time.Millisecond, policy.Backoff(1))
	assert.Equal(t, 400*time.Millisecond, policy.Backoff(2))
	assert.Equal(t, 500*time.Millisecond, policy.Backoff(3), "capped at MaxDelay")
	assert.Equal(t, 500*time.Millisecond, policy.Backoff(10))
}

func TestPolicy_Normalize(t *testing.T) {
	t.Parallel()

	policy := retry.Policy{}.Normalize()
	defaults := retry.DefaultPolicy()

	assert.Equal(t, defaults.MaxAttempts, policy.MaxAttempts)
	assert.Equal(t, defaults.MaxDelay, policy.MaxDelay)
	assert.InDelta(t, defaults.Multiplier, policy.Multiplier, 0.001)
}

func TestPolicy_DelayHonorsRetryAfter(t *testing.T) {
	t.Parallel()

	policy := retry.Policy{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond, MaxDelay: 20 * time.Millisecond, Multiplier: 2}

	t.Run("seconds on 429", func(t *testing.T) {
		t.Parallel()

		resp := &http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{"Retry-After": []string{"3"}}}
		assert.Equal(t, 3*time.Second, policy.Delay(0, resp))
	})

	t.Run("ignored on 500", func(t *testing.T) {
		t.Parallel()

		resp := &http.Response{StatusCode: http.StatusInternalServerError, Header: http.Header{"Retry-After": []string{"3"}}}
		assert.Equal(t, 10*time.Millisecond, policy.Delay(0, resp))
	})

	t.Run("invalid header falls back to backoff", func(t *testing.T) {
		t.Parallel()

		resp := &http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{"Retry-After": []string{"soon"}}}
		assert.Equal(t, 20*time.Millisecond, policy.Delay(1, resp))
	})
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 2, 15, 4, 5, 0, time.UTC)

	tests := []struct {
		name     string
		value    string
		expected time.Duration
		ok       bool
	}{
		{name: "empty", value: "", ok: false},
		{name: "seconds", value: "120", expected: 2 * time.Minute, ok: true},
		{name: "negative", value: "-1", ok: false},
		{name: "http date", value: now.Add(30 * time.Second).Format(http.TimeFormat), expected: 30 * time.Second, ok: true},
		{name: "date in the past", value: now.Add(-time.Minute).Format(http.TimeFormat), expected: 0, ok: true},
		{name: "garbage", value: "tomorrow", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			wait, ok := retry.ParseRetryAfter(tt.value, now)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, wait)
		})
	}
}

func TestClassifyAttempt(t *testing.T) {
	t.Parallel()

	connReset := &gia.TransportError{Err: syscall.ECONNRESET}
	status := func(code int) *http.Response { return &http.Response{StatusCode: code} }

	tests := []struct {
		name     string
		attempt  retry.Attempt
		mode     retry.Mode
		expected retry.Class
	}{
		{name: "200", attempt: retry.Attempt{Response: status(200)}, expected: retry.ClassSuccess},
		{name: "404", attempt: retry.Attempt{Response: status(404)}, expected: retry.ClassPermanent},
		{name: "400", attempt: retry.Attempt{Response: status(400)}, expected: retry.ClassPermanent},
		{name: "429", attempt: retry.Attempt{Response: status(429)}, expected: retry.ClassRetryable},
		{name: "503", attempt: retry.Attempt{Response: status(503)}, expected: retry.ClassRetryable},
		{name: "501", attempt: retry.Attempt{Response: status(501)}, expected: retry.ClassPermanent},
		{name: "connection reset", attempt: retry.Attempt{Err: connReset}, expected: retry.ClassRetryable},
		{name: "until-ack 429", attempt: retry.Attempt{Response: status(429), Written: true}, mode: retry.ModeUntilAck, expected: retry.ClassRetryable},
		{name: "until-ack 503", attempt: retry.Attempt{Response: status(503), Written: true}, mode: retry.ModeUntilAck, expected: retry.ClassPermanent},
		{name: "until-ack error before write", attempt: retry.Attempt{Err: connReset}, mode: retry.ModeUntilAck, expected: retry.ClassRetryable},
		{name: "until-ack error after write", attempt: retry.Attempt{Err: connReset, Written: true}, mode: retry.ModeUntilAck, expected: retry.ClassPermanent},
		{name: "canceled", attempt: retry.Attempt{Err: context.Canceled}, expected: retry.ClassPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, retry.ClassifyAttempt(tt.attempt, tt.mode))
		})
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	assert.Equal(t, retry.ClassSuccess, retry.Classify(nil))
	assert.Equal(t, retry.ClassRetryable, retry.Classify(&gia.RemoteError{StatusCode: 503}))
	assert.Equal(t, retry.ClassRetryable, retry.Classify(&gia.RemoteError{StatusCode: 429}))
	assert.Equal(t, retry.ClassPermanent, retry.Classify(&gia.RemoteError{StatusCode: 409}))
	assert.Equal(t, retry.ClassRetryable, retry.Classify(&gia.TransportError{Err: syscall.ECONNREFUSED}))
	assert.Equal(t, retry.ClassPermanent, retry.Classify(&gia.ValidationError{Field: "name", Reason: "is required"}))
	assert.Equal(t, retry.ClassPermanent, retry.Classify(&gia.AuthError{Message: "bad client"}))
	assert.Equal(t, retry.ClassPermanent, retry.Classify(&gia.CancelledError{Err: context.Canceled}))
	assert.Equal(t, retry.ClassPermanent, retry.Classify(errors.New("boom"))) //nolint:err113 // ad hoc test error
}
