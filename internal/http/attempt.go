package http

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/fivetwenty-io/gia-client/internal/retry"
	"github.com/hashicorp/go-retryablehttp"
)

type attemptStateKey struct{}

// attemptState tracks whether the current attempt's request reached the
// server. It is reset before every attempt.
type attemptState struct {
	mode    retry.Mode
	written atomic.Bool
}

func attemptStateFrom(ctx context.Context) *attemptState {
	state, ok := ctx.Value(attemptStateKey{}).(*attemptState)
	if !ok {
		return &attemptState{}
	}

	return state
}

func modeFor(req *Request) retry.Mode {
	if req.AckSensitive {
		return retry.ModeUntilAck
	}

	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete, http.MethodOptions:
		return retry.ModeIdempotent
	case http.MethodPost:
		if req.IdempotencyKey != "" {
			return retry.ModeIdempotent
		}
	}

	return retry.ModeUntilAck
}

func (c *Client) beforeAttempt(_ retryablehttp.Logger, req *http.Request, attempt int) {
	attemptStateFrom(req.Context()).written.Store(false)

	if attempt > 0 && c.logger != nil {
		c.logger.Debug("Retrying HTTP request", map[string]interface{}{
			"method":  req.Method,
			"url":     req.URL.String(),
			"attempt": attempt + 1,
		})
	}
}

func (c *Client) checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	state := attemptStateFrom(ctx)

	class := retry.ClassifyAttempt(retry.Attempt{
		Response: resp,
		Err:      err,
		Written:  state.written.Load(),
	}, state.mode)

	if class == retry.ClassRetryable && c.logger != nil {
		fields := map[string]interface{}{"mode": state.mode.String()}
		if resp != nil {
			fields["status"] = resp.StatusCode
		}

		if err != nil {
			fields["error"] = err.Error()
		}

		c.logger.Warn("Transient HTTP failure", fields)
	}

	return class == retry.ClassRetryable, nil
}

func (c *Client) backoff(_, _ time.Duration, retryNumber int, resp *http.Response) time.Duration {
	return c.policy.Delay(retryNumber, resp)
}
