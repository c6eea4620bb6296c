package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"telecine/internal/config"
	"telecine/internal/logging"
	"telecine/internal/media"
	"telecine/internal/notify"
)

const defaultMaxAttempts = 3

// maxBackoffExponent bounds the retry delay shift so pathological attempt
// counts cannot overflow the duration.
const maxBackoffExponent = 12

// Orchestrator enforces the job lifecycle on top of the store. Workers and
// the IPC surface go through it rather than mutating rows directly, so the
// retry and backoff policy lives in exactly one place.
type Orchestrator struct {
	store       *Store
	notifier    notify.Service
	logger      *slog.Logger
	maxAttempts int
}

// NewOrchestrator builds an orchestrator without a callback sink.
func NewOrchestrator(cfg *config.Config, store *Store, logger *slog.Logger) *Orchestrator {
	return NewOrchestratorWithNotifier(cfg, store, logger, nil)
}

// NewOrchestratorWithNotifier builds an orchestrator that publishes terminal
// transitions to the given sink.
func NewOrchestratorWithNotifier(cfg *config.Config, store *Store, logger *slog.Logger, notifier notify.Service) *Orchestrator {
	maxAttempts := defaultMaxAttempts
	if cfg != nil && cfg.Queue.MaxAttempts > 0 {
		maxAttempts = cfg.Queue.MaxAttempts
	}
	return &Orchestrator{
		store:       store,
		notifier:    notifier,
		logger:      logging.NewComponentLogger(logger, "jobs"),
		maxAttempts: maxAttempts,
	}
}

// Store exposes the underlying persistence for read-side consumers.
func (o *Orchestrator) Store() *Store {
	return o.store
}

// SubmitRequest describes a job to create.
type SubmitRequest struct {
	Type        JobType
	Source      media.SourceRef
	Output      media.OutputLocation
	Config      json.RawMessage
	Priority    int
	MaxAttempts int
	RequestedBy string
}

// CreateJob validates a submission and enqueues it. The config payload is
// checked against the job type up front so malformed requests are rejected
// at the door instead of failing mid-pipeline.
func (o *Orchestrator) CreateJob(ctx context.Context, req SubmitRequest) (*Job, error) {
	if _, err := ParseJobType(string(req.Type)); err != nil {
		return nil, err
	}
	if err := req.Source.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := DecodeConfig(req.Type, req.Config); err != nil {
		return nil, err
	}

	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = o.maxAttempts
	}

	job := &Job{
		ID:          uuid.NewString(),
		Type:        req.Type,
		Source:      req.Source,
		Output:      req.Output,
		ConfigJSON:  req.Config,
		Status:      StatusQueued,
		Priority:    req.Priority,
		MaxAttempts: maxAttempts,
		RequestedBy: req.RequestedBy,
	}

	stored, err := o.store.Insert(ctx, job)
	if err != nil {
		return nil, err
	}

	o.logger.Info("job submitted",
		logging.String(logging.FieldJobID, stored.ID),
		logging.String(logging.FieldJobType, string(stored.Type)),
		logging.String("source", string(stored.Source.Type)+"/"+stored.Source.ID),
		logging.Int("priority", stored.Priority),
	)
	return stored, nil
}

// GetJob fetches a job by identifier.
func (o *Orchestrator) GetJob(ctx context.Context, id string) (*Job, error) {
	job, err := o.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return job, nil
}

// ListPendingJobs returns jobs eligible for pickup right now, highest
// priority first and oldest first within a priority.
func (o *Orchestrator) ListPendingJobs(ctx context.Context, types []JobType, limit int) ([]*Job, error) {
	return o.store.ListPending(ctx, time.Now().UTC(), types, limit)
}

// MarkProcessing claims a job for a worker. When several workers race for
// the same job exactly one wins; the rest get ErrInvalidTransition.
func (o *Orchestrator) MarkProcessing(ctx context.Context, id, workerID string) (*Job, error) {
	rows, err := o.store.Claim(ctx, id, workerID, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, o.transitionFailure(ctx, id, ErrInvalidTransition, "claim")
	}

	job, err := o.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	o.logger.Info("job claimed",
		logging.String(logging.FieldJobID, id),
		logging.String(logging.FieldWorkerID, workerID),
		logging.Int("attempt", job.Attempts+1),
	)
	return job, nil
}

// UpdateProgress records observational progress. Progress is clamped into
// [0, 100]; updates against finished jobs are dropped without error.
func (o *Orchestrator) UpdateProgress(ctx context.Context, id string, progress int, stage string) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	rows, err := o.store.SetProgress(ctx, id, progress, stage, time.Now().UTC())
	if err != nil {
		return err
	}
	if rows == 0 {
		job, err := o.store.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if job == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
	}
	return nil
}

// CompleteJob finishes a processing job with its output metadata. Empty
// metadata is rejected: a completed row must carry output, the same way a
// failed row must carry an error code.
func (o *Orchestrator) CompleteJob(ctx context.Context, id string, output OutputMetadata) (*Job, error) {
	if output.IsZero() {
		return nil, fmt.Errorf("%w: completing job %s requires output metadata", ErrInvalidConfig, id)
	}
	rows, err := o.store.MarkCompleted(ctx, id, &output, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, o.transitionFailure(ctx, id, ErrInvalidTransition, "complete")
	}

	job, err := o.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	o.logger.Info("job completed",
		logging.String(logging.FieldJobID, id),
		logging.String(logging.FieldJobType, string(job.Type)),
		logging.Int("attempts", job.Attempts),
	)
	o.publish(ctx, notify.KindJobCompleted, job)
	return job, nil
}

// FailJob records a failed attempt. While attempts remain the job moves to
// retrying with an exponential delay (1m, 2m, 4m, ...); once the budget is
// spent it fails for good and the failure callback fires.
func (o *Orchestrator) FailJob(ctx context.Context, id, code, message string) (*Job, error) {
	job, err := o.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if job.Status != StatusProcessing {
		return nil, fmt.Errorf("%w: job %s is %s", ErrInvalidTransition, id, job.Status)
	}

	now := time.Now().UTC()
	attempts := job.Attempts + 1
	newStatus := StatusFailed
	stage := "Failed"
	var nextRetry *time.Time
	if attempts < job.MaxAttempts {
		newStatus = StatusRetrying
		stage = "Retry scheduled"
		at := now.Add(backoffDelay(attempts))
		nextRetry = &at
	}

	rows, err := o.store.MarkFailure(ctx, id, newStatus, attempts, job.Attempts, code, message, stage, nextRetry, now)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, o.transitionFailure(ctx, id, ErrInvalidTransition, "fail")
	}

	job, err = o.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}

	if job.Status == StatusFailed {
		o.logger.Warn("job failed permanently",
			logging.String(logging.FieldJobID, id),
			logging.String(logging.FieldEventType, "job_failed"),
			logging.String("error_code", code),
			logging.String(logging.FieldErrorHint, message),
			logging.String(logging.FieldImpact, "job will not run again without a manual retry"),
		)
		o.publish(ctx, notify.KindJobFailed, job)
	} else {
		o.logger.Info("job attempt failed, retry scheduled",
			logging.String(logging.FieldJobID, id),
			logging.String("error_code", code),
			logging.Int("attempt", attempts),
			logging.Int("max_attempts", job.MaxAttempts),
			logging.Time("next_retry", *job.NextRetryAt),
		)
	}
	return job, nil
}

// CancelJob stops a job that has not finished. Finished jobs cannot be
// cancelled and report ErrInvalidJobState.
func (o *Orchestrator) CancelJob(ctx context.Context, id string) (*Job, error) {
	rows, err := o.store.MarkCancelled(ctx, id, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, o.transitionFailure(ctx, id, ErrInvalidJobState, "cancel")
	}

	job, err := o.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	o.logger.Info("job cancelled", logging.String(logging.FieldJobID, id))
	return job, nil
}

// RetryJobs moves failed jobs back to queued with a fresh attempt budget.
// With no IDs every failed job is retried.
func (o *Orchestrator) RetryJobs(ctx context.Context, ids ...string) (int64, error) {
	count, err := o.store.RetryFailed(ctx, ids...)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		o.logger.Info("failed jobs requeued", logging.Int64("count", count))
	}
	return count, nil
}

// Heartbeat refreshes the liveness timestamp for a processing job.
func (o *Orchestrator) Heartbeat(ctx context.Context, id string) error {
	return o.store.UpdateHeartbeat(ctx, id)
}

// ReclaimStale returns processing jobs whose heartbeat stopped before the
// window to the retry pool. Crash recovery does not consume an attempt.
func (o *Orchestrator) ReclaimStale(ctx context.Context, window time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-window)
	count, err := o.store.ReclaimStaleProcessing(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		o.logger.Warn("reclaimed stale jobs",
			logging.Int64("count", count),
			logging.String(logging.FieldEventType, "jobs_reclaimed"),
			logging.String(logging.FieldErrorHint, "a worker stopped heartbeating"),
			logging.String(logging.FieldImpact, "affected jobs will restart from the beginning"),
		)
	}
	return count, nil
}

// transitionFailure explains why a guarded transition affected no rows.
func (o *Orchestrator) transitionFailure(ctx context.Context, id string, marker error, verb string) error {
	job, err := o.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return fmt.Errorf("%w: cannot %s job %s in status %s", marker, verb, id, job.Status)
}

func (o *Orchestrator) publish(ctx context.Context, kind string, job *Job) {
	if o.notifier == nil {
		return
	}
	event := notify.Event{
		Kind:         kind,
		JobID:        job.ID,
		JobType:      string(job.Type),
		Status:       string(job.Status),
		ErrorCode:    job.ErrorCode,
		ErrorMessage: job.ErrorMessage,
		OccurredAt:   time.Now().UTC(),
	}
	if job.OutputMetadata != nil {
		if encoded, err := json.Marshal(job.OutputMetadata); err == nil {
			event.Output = encoded
		}
	}
	if err := o.notifier.Publish(ctx, event); err != nil {
		o.logger.Warn("callback delivery failed",
			logging.String(logging.FieldJobID, job.ID),
			logging.String(logging.FieldEventType, "callback_failed"),
			logging.Error(err),
			logging.String(logging.FieldImpact, "external system was not informed of the terminal state"),
		)
	}
}

func backoffDelay(attempts int) time.Duration {
	exp := attempts - 1
	if exp < 0 {
		exp = 0
	}
	if exp > maxBackoffExponent {
		exp = maxBackoffExponent
	}
	return time.Duration(1<<exp) * time.Minute
}
