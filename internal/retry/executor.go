package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fivetwenty-io/gia-client/pkg/gia"
)

// Static errors for err113 compliance.
var (
	ErrNilOperation = errors.New("operation is nil")
)

// Operation is a single remote call. It must be safe to repeat.
type Operation func(ctx context.Context) error

// Executor runs operations under a Policy.
type Executor struct {
	policy Policy
	logger gia.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithLogger logs each retry decision.
func WithLogger(logger gia.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = logger
	}
}

// NewExecutor creates an executor for policy.
func NewExecutor(policy Policy, opts ...ExecutorOption) *Executor {
	executor := &Executor{policy: policy.Normalize()}

	for _, opt := range opts {
		opt(executor)
	}

	return executor
}

// Policy returns the normalized policy.
func (e *Executor) Policy() Policy {
	return e.policy
}

// Do runs op until it succeeds, fails permanently, or MaxAttempts is
// reached. The last error is returned unchanged; a context that ends before
// or during a wait yields a *gia.CancelledError.
func (e *Executor) Do(ctx context.Context, op Operation) error {
	if op == nil {
		return ErrNilOperation
	}

	var lastErr error

	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return &gia.CancelledError{Err: ctx.Err()}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if ctx.Err() != nil {
			return &gia.CancelledError{Err: ctx.Err()}
		}

		if Classify(lastErr) != ClassRetryable || attempt == e.policy.MaxAttempts {
			return lastErr
		}

		wait := e.delayFor(attempt-1, lastErr)

		e.logRetry(attempt, wait, lastErr)

		err := Sleep(ctx, wait)
		if err != nil {
			return err
		}
	}

	return lastErr
}

func (e *Executor) delayFor(retry int, err error) time.Duration {
	remoteErr := &gia.RemoteError{}
	if errors.As(err, &remoteErr) && remoteErr.RetryAfter > 0 {
		return remoteErr.RetryAfter
	}

	return e.policy.Backoff(retry)
}

func (e *Executor) logRetry(attempt int, wait time.Duration, err error) {
	if e.logger == nil {
		return
	}

	e.logger.Warn("Retrying remote call", map[string]interface{}{
		"attempt":      attempt,
		"max_attempts": e.policy.MaxAttempts,
		"wait":         wait.String(),
		"error":        err.Error(),
	})
}

// Sleep waits for d or until ctx ends, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		if ctx.Err() != nil {
			return &gia.CancelledError{Err: ctx.Err()}
		}

		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return &gia.CancelledError{Err: fmt.Errorf("waiting %s: %w", d, ctx.Err())}
	case <-timer.C:
		return nil
	}
}
