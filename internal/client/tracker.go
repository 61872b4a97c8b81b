package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/fivetwenty-io/gia-client/internal/constants"
	"github.com/fivetwenty-io/gia-client/pkg/gia"
)

// Static errors for err113 compliance.
var (
	ErrJobRequired = errors.New("upload job is required")
)

var jobStates = map[string]gia.JobState{
	"queued":      gia.JobStateQueued,
	"pending":     gia.JobStateQueued,
	"submitted":   gia.JobStateQueued,
	"new":         gia.JobStateQueued,
	"accepted":    gia.JobStateQueued,
	"processing":  gia.JobStateProcessing,
	"in_progress": gia.JobStateProcessing,
	"inprogress":  gia.JobStateProcessing,
	"running":     gia.JobStateProcessing,
	"started":     gia.JobStateProcessing,
	"complete":    gia.JobStateComplete,
	"completed":   gia.JobStateComplete,
	"success":     gia.JobStateComplete,
	"succeeded":   gia.JobStateComplete,
	"done":        gia.JobStateComplete,
	"finished":    gia.JobStateComplete,
	"failed":      gia.JobStateFailed,
	"failure":     gia.JobStateFailed,
	"error":       gia.JobStateFailed,
	"errored":     gia.JobStateFailed,
	"aborted":     gia.JobStateFailed,
	"cancelled":   gia.JobStateFailed,
}

// MapJobState maps a remote status string onto the local job state. The
// comparison ignores case, surrounding space, and '-' or ' ' separators.
func MapJobState(status string) gia.JobState {
	key := strings.ToLower(strings.TrimSpace(status))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)

	if state, ok := jobStates[key]; ok {
		return state
	}

	return gia.JobStateUnknown
}

// allowedTransitions lists the states reachable from each non-terminal state.
var allowedTransitions = map[gia.JobState][]gia.JobState{
	gia.JobStateQueued: {
		gia.JobStateProcessing, gia.JobStateComplete, gia.JobStateFailed, gia.JobStateUnknown,
	},
	gia.JobStateProcessing: {
		gia.JobStateComplete, gia.JobStateFailed, gia.JobStateUnknown,
	},
	gia.JobStateUnknown: {
		gia.JobStateQueued, gia.JobStateProcessing, gia.JobStateComplete, gia.JobStateFailed,
	},
}

// nextState applies an observed state. Transitions that are not allowed,
// such as processing back to queued, keep the current state.
func nextState(current, observed gia.JobState) gia.JobState {
	if current == "" || current == observed {
		return observed
	}

	for _, candidate := range allowedTransitions[current] {
		if candidate == observed {
			return observed
		}
	}

	return current
}

// JobTrackerClient implements gia.JobTracker.
type JobTrackerClient struct {
	uploads      gia.UploadsClient
	cache        gia.Cache
	cacheTTL     time.Duration
	pollInterval time.Duration
	pollTimeout  time.Duration
	logger       gia.Logger
	now          func() time.Time
}

// NewJobTracker creates a job tracker. A nil cache disables snapshots.
func NewJobTracker(uploads gia.UploadsClient, cache gia.Cache, logger gia.Logger) *JobTrackerClient {
	if cache == nil {
		cache = gia.NewNoOpCache()
	}

	return &JobTrackerClient{
		uploads:      uploads,
		cache:        cache,
		cacheTTL:     constants.DefaultCacheTTL,
		pollInterval: constants.DefaultPollInterval,
		pollTimeout:  constants.DefaultJobPollTimeout,
		logger:       logger,
		now:          time.Now,
	}
}

// SetPollInterval sets the interval used when WaitUntilTerminal is given zero.
func (t *JobTrackerClient) SetPollInterval(interval time.Duration) {
	if interval > 0 {
		t.pollInterval = interval
	}
}

// SetCacheTTL sets how long terminal snapshots are kept.
func (t *JobTrackerClient) SetCacheTTL(ttl time.Duration) {
	t.cacheTTL = ttl
}

// Submit implements gia.JobTracker.Submit.
func (t *JobTrackerClient) Submit(ctx context.Context, applicationID, objectTypeID string, dataset gia.Dataset) (*gia.UploadJob, error) {
	if applicationID == "" {
		return nil, &gia.ValidationError{Field: "application_id", Reason: "is required"}
	}

	if objectTypeID == "" {
		return nil, &gia.ValidationError{Field: "object_type_id", Reason: "is required"}
	}

	uploadID, err := t.uploads.Upload(ctx, applicationID, objectTypeID, dataset)
	if err != nil {
		return nil, fmt.Errorf("submitting dataset: %w", err)
	}

	now := t.now()
	job := &gia.UploadJob{
		UploadID:      uploadID,
		ApplicationID: applicationID,
		ObjectTypeID:  objectTypeID,
		State:         gia.JobStateQueued,
		SubmittedAt:   now,
		ObservedAt:    now,
	}

	t.log("Upload submitted", job)

	return job, nil
}

// Resume implements gia.JobTracker.Resume. The returned handle is in the
// unknown state until it is polled.
func (t *JobTrackerClient) Resume(applicationID, uploadID string) *gia.UploadJob {
	return &gia.UploadJob{
		UploadID:      uploadID,
		ApplicationID: applicationID,
		State:         gia.JobStateUnknown,
	}
}

// Poll implements gia.JobTracker.Poll. A terminal job, or one with a cached
// terminal snapshot, is returned without a network call.
func (t *JobTrackerClient) Poll(ctx context.Context, job *gia.UploadJob) (*gia.UploadJob, error) {
	if job == nil {
		return nil, &gia.ValidationError{Reason: ErrJobRequired.Error()}
	}

	if job.State.Terminal() {
		snapshot := *job

		return &snapshot, nil
	}

	if cached := t.snapshot(ctx, job); cached != nil {
		return cached, nil
	}

	status, err := t.uploads.Status(ctx, job.ApplicationID, job.UploadID)
	if err != nil {
		return nil, fmt.Errorf("polling upload %s: %w", job.UploadID, err)
	}

	next := *job
	next.RemoteStatus = status.Status
	next.State = nextState(job.State, MapJobState(status.Status))
	next.ObservedAt = t.now()

	if status.TotalCount != nil {
		next.TotalCount = *status.TotalCount
	}

	if status.SuccessCount != nil {
		next.SuccessCount = *status.SuccessCount
	}

	if status.FailureCount != nil {
		next.FailureCount = *status.FailureCount
	}

	if next.State != job.State {
		t.log("Upload state changed", &next)
	}

	if next.State.Terminal() {
		t.store(ctx, &next)
	}

	return &next, nil
}

// WaitUntilTerminal implements gia.JobTracker.WaitUntilTerminal. Reaching
// the timeout is not an error: the last observed job is returned.
func (t *JobTrackerClient) WaitUntilTerminal(ctx context.Context, job *gia.UploadJob, timeout, pollInterval time.Duration) (*gia.UploadJob, error) {
	if timeout <= 0 {
		timeout = t.pollTimeout
	}

	if pollInterval <= 0 {
		pollInterval = t.pollInterval
	}

	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	// First check immediately
	current, err := t.Poll(pollCtx, job)
	if err != nil {
		return t.waitResult(ctx, pollCtx, job, err)
	}

	for !current.State.Terminal() {
		select {
		case <-pollCtx.Done():
			return t.waitResult(ctx, pollCtx, current, nil)
		case <-ticker.C:
			next, err := t.Poll(pollCtx, current)
			if err != nil {
				return t.waitResult(ctx, pollCtx, current, err)
			}

			current = next
		}
	}

	return current, nil
}

// waitResult decides how a wait that stopped early is reported: parent
// cancellation is an error, the wait's own deadline is not.
func (t *JobTrackerClient) waitResult(parent, pollCtx context.Context, last *gia.UploadJob, err error) (*gia.UploadJob, error) {
	if parent.Err() != nil {
		return last, &gia.CancelledError{Err: parent.Err()}
	}

	if pollCtx.Err() != nil {
		t.log("Stopped waiting for upload", last)

		return last, nil
	}

	return last, err
}

// Failures implements gia.JobTracker.Failures.
func (t *JobTrackerClient) Failures(ctx context.Context, job *gia.UploadJob) iter.Seq2[gia.FailureRecord, error] {
	if job == nil {
		return func(yield func(gia.FailureRecord, error) bool) {
			yield(gia.FailureRecord{}, &gia.ValidationError{Reason: ErrJobRequired.Error()})
		}
	}

	return t.uploads.Failures(ctx, job.ApplicationID, job.UploadID)
}

func (t *JobTrackerClient) snapshot(ctx context.Context, job *gia.UploadJob) *gia.UploadJob {
	entry, err := t.cache.Get(ctx, gia.JobCacheKey(job.ApplicationID, job.UploadID))
	if err != nil {
		if !isCacheMiss(err) {
			t.warn("Reading job snapshot failed", job, err)
		}

		return nil
	}

	var cached gia.UploadJob

	err = json.Unmarshal(entry.Data, &cached)
	if err != nil || !cached.State.Terminal() {
		return nil
	}

	if cached.UploadID != job.UploadID || cached.ApplicationID != job.ApplicationID {
		t.warn("Ignoring job snapshot stored for another upload", job, nil)

		return nil
	}

	if cached.ObjectTypeID == "" {
		cached.ObjectTypeID = job.ObjectTypeID
	}

	return &cached
}

func isCacheMiss(err error) bool {
	return errors.Is(err, gia.ErrCacheMiss) ||
		errors.Is(err, gia.ErrCacheDisabled) ||
		errors.Is(err, gia.ErrKeyNotFoundInAnyCache)
}

func (t *JobTrackerClient) store(ctx context.Context, job *gia.UploadJob) {
	data, err := json.Marshal(job)
	if err != nil {
		t.warn("Encoding job snapshot failed", job, err)

		return
	}

	entry := &gia.CacheEntry{Data: data}
	if t.cacheTTL > 0 {
		entry.ExpiresAt = t.now().Add(t.cacheTTL)
	}

	err = t.cache.Set(ctx, gia.JobCacheKey(job.ApplicationID, job.UploadID), entry)
	if err != nil && !errors.Is(err, gia.ErrCacheDisabled) {
		t.warn("Writing job snapshot failed", job, err)
	}
}

func jobFields(job *gia.UploadJob) map[string]interface{} {
	return map[string]interface{}{
		"application_id": job.ApplicationID,
		"upload_id":      job.UploadID,
		"state":          string(job.State),
		"success_count":  job.SuccessCount,
		"failure_count":  job.FailureCount,
	}
}

func (t *JobTrackerClient) log(msg string, job *gia.UploadJob) {
	if t.logger != nil {
		t.logger.Info(msg, jobFields(job))
	}
}

func (t *JobTrackerClient) warn(msg string, job *gia.UploadJob, err error) {
	if t.logger == nil {
		return
	}

	fields := jobFields(job)
	if err != nil {
		fields["error"] = err.Error()
	}

	t.logger.Warn(msg, fields)
}
