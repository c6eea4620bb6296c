package jobs

import (
	"context"
	"fmt"
	"time"
)

// Claim attempts to move an eligible job into processing on behalf of one
// worker. The WHERE clause carries the whole eligibility rule, so when two
// workers race, SQLite serializes the updates and exactly one sees an
// affected row.
func (s *Store) Claim(ctx context.Context, id, workerID string, now time.Time) (int64, error) {
	stamp := formatTime(now)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE media_jobs
        SET status = ?, worker_id = ?, started_at = ?, heartbeat_at = ?,
            progress = 0, stage = NULL, updated_at = ?
        WHERE id = ?
          AND (status = ? OR (status = ? AND (next_retry_at IS NULL OR next_retry_at <= ?)))`,
		StatusProcessing,
		workerID,
		stamp,
		stamp,
		stamp,
		id,
		StatusQueued,
		StatusRetrying,
		stamp,
	)
	if err != nil {
		return 0, fmt.Errorf("claim job: %w", err)
	}
	return res.RowsAffected()
}

// MarkCompleted finishes a processing job with its output. Error fields and
// the retry schedule are cleared so a completed row carries output alone.
func (s *Store) MarkCompleted(ctx context.Context, id string, output *OutputMetadata, now time.Time) (int64, error) {
	outputVal, err := encodeOutputMetadata(output)
	if err != nil {
		return 0, err
	}
	stamp := formatTime(now)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE media_jobs
        SET status = ?, output_json = ?, progress = 100, stage = ?,
            error_code = NULL, error_message = NULL, next_retry_at = NULL,
            heartbeat_at = NULL, completed_at = ?, updated_at = ?
        WHERE id = ? AND status = ?`,
		StatusCompleted,
		outputVal,
		"Completed",
		stamp,
		stamp,
		id,
		StatusProcessing,
	)
	if err != nil {
		return 0, fmt.Errorf("complete job: %w", err)
	}
	return res.RowsAffected()
}

// MarkFailure records a failed attempt on a processing job. The caller
// decides whether the job retries or fails for good and supplies the new
// attempt count; guarding on the previous count keeps a stale caller from
// double-counting an attempt.
func (s *Store) MarkFailure(ctx context.Context, id string, newStatus Status, attempts, prevAttempts int, code, message, stage string, nextRetry *time.Time, now time.Time) (int64, error) {
	stamp := formatTime(now)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE media_jobs
        SET status = ?, attempts = ?, error_code = ?, error_message = ?,
            stage = ?, output_json = NULL, last_error_at = ?, next_retry_at = ?,
            heartbeat_at = NULL, updated_at = ?
        WHERE id = ? AND status = ? AND attempts = ?`,
		newStatus,
		attempts,
		nullableString(code),
		nullableString(message),
		nullableString(stage),
		stamp,
		nullableTime(nextRetry),
		stamp,
		id,
		StatusProcessing,
		prevAttempts,
	)
	if err != nil {
		return 0, fmt.Errorf("fail job: %w", err)
	}
	return res.RowsAffected()
}

// MarkCancelled cancels a job that has not yet reached a terminal state.
func (s *Store) MarkCancelled(ctx context.Context, id string, now time.Time) (int64, error) {
	stamp := formatTime(now)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE media_jobs
        SET status = ?, stage = ?, next_retry_at = NULL, heartbeat_at = NULL,
            updated_at = ?
        WHERE id = ? AND status IN (?, ?, ?)`,
		StatusCancelled,
		"Cancelled",
		stamp,
		id,
		StatusQueued,
		StatusProcessing,
		StatusRetrying,
	)
	if err != nil {
		return 0, fmt.Errorf("cancel job: %w", err)
	}
	return res.RowsAffected()
}

// SetProgress records observational progress for a processing job.
func (s *Store) SetProgress(ctx context.Context, id string, progress int, stage string, now time.Time) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE media_jobs SET progress = ?, stage = ?, updated_at = ? WHERE id = ? AND status = ?`,
		progress,
		nullableString(stage),
		formatTime(now),
		id,
		StatusProcessing,
	)
	if err != nil {
		return 0, fmt.Errorf("set progress: %w", err)
	}
	return res.RowsAffected()
}

// UpdateHeartbeat refreshes the liveness timestamp for an in-flight job.
func (s *Store) UpdateHeartbeat(ctx context.Context, id string) error {
	stamp := formatTime(time.Now())
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE media_jobs SET heartbeat_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
		stamp,
		stamp,
		id,
		StatusProcessing,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStaleProcessing returns processing jobs with expired heartbeats to
// the retry pool. Crash recovery does not consume an attempt, and the clear
// retry deadline makes the job immediately eligible again.
func (s *Store) ReclaimStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE media_jobs
        SET status = ?, stage = ?, error_code = ?, error_message = ?,
            progress = 0, worker_id = NULL, heartbeat_at = NULL,
            next_retry_at = NULL, updated_at = ?
        WHERE status = ? AND heartbeat_at IS NOT NULL AND heartbeat_at < ?`,
		StatusRetrying,
		"Reclaimed from stale processing",
		CodeReclaimed,
		"worker heartbeat expired; job requeued",
		formatTime(time.Now()),
		StatusProcessing,
		formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailed moves failed jobs back to queued with a fresh attempt budget.
// With no IDs every failed job is retried.
func (s *Store) RetryFailed(ctx context.Context, ids ...string) (int64, error) {
	stamp := formatTime(time.Now())
	if len(ids) == 0 {
		res, err := s.execWithRetry(
			ctx,
			`UPDATE media_jobs
            SET status = ?, attempts = 0, progress = 0, stage = ?,
                error_code = NULL, error_message = NULL, next_retry_at = NULL,
                worker_id = NULL, updated_at = ?
            WHERE status = ?`,
			StatusQueued,
			"Retry requested",
			stamp,
			StatusFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed jobs: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+3)
	args = append(args, StatusQueued, "Retry requested", stamp)
	for _, id := range ids {
		args = append(args, id)
	}
	query := `UPDATE media_jobs
        SET status = ?, attempts = 0, progress = 0, stage = ?,
            error_code = NULL, error_message = NULL, next_retry_at = NULL,
            worker_id = NULL, updated_at = ?
        WHERE id IN (` + placeholders + `) AND status = '` + string(StatusFailed) + `'`
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry selected jobs: %w", err)
	}
	return res.RowsAffected()
}
