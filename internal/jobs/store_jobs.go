package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"telecine/internal/media"
)

// Insert persists a freshly built job and returns the stored row.
func (s *Store) Insert(ctx context.Context, job *Job) (*Job, error) {
	if job == nil {
		return nil, errors.New("job is nil")
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = job.CreatedAt
	}

	var configVal any
	if len(job.ConfigJSON) > 0 {
		configVal = string(job.ConfigJSON)
	}
	outputVal, err := encodeOutputMetadata(job.OutputMetadata)
	if err != nil {
		return nil, err
	}

	if _, err := s.execWithRetry(
		ctx,
		`INSERT INTO media_jobs (
            id, job_type, source_type, source_id, source_bucket, source_key,
            output_bucket, output_prefix, config_json, status, priority,
            progress, stage, attempts, max_attempts, requested_by, worker_id,
            output_json, error_code, error_message, created_at, updated_at,
            started_at, completed_at, last_error_at, next_retry_at, heartbeat_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.Type,
		job.Source.Type,
		job.Source.ID,
		job.Source.Bucket,
		job.Source.Key,
		nullableString(job.Output.Bucket),
		nullableString(job.Output.Prefix),
		configVal,
		job.Status,
		job.Priority,
		job.Progress,
		nullableString(job.Stage),
		job.Attempts,
		job.MaxAttempts,
		nullableString(job.RequestedBy),
		nullableString(job.WorkerID),
		outputVal,
		nullableString(job.ErrorCode),
		nullableString(job.ErrorMessage),
		formatTime(job.CreatedAt),
		formatTime(job.UpdatedAt),
		nullableTime(job.StartedAt),
		nullableTime(job.CompletedAt),
		nullableTime(job.LastErrorAt),
		nullableTime(job.NextRetryAt),
		nullableTime(job.HeartbeatAt),
	); err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	return s.GetByID(ctx, job.ID)
}

// GetByID fetches a job by identifier. Missing jobs return (nil, nil).
func (s *Store) GetByID(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM media_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List returns jobs filtered by status set (or all jobs when no status is
// provided), oldest first.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + jobColumns + ` FROM media_jobs`
	orderClause := ` ORDER BY created_at, rowid`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// ListForSource returns every job recorded for one source item, oldest first.
func (s *Store) ListForSource(ctx context.Context, sourceType media.SourceType, sourceID string) ([]*Job, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+jobColumns+` FROM media_jobs WHERE source_type = ? AND source_id = ? ORDER BY created_at, rowid`,
		sourceType,
		sourceID,
	)
	if err != nil {
		return nil, fmt.Errorf("list jobs for source: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// ListPending returns jobs eligible for worker pickup at the given instant:
// queued jobs plus retrying jobs whose delay has elapsed. Higher priority
// first, then submission order. A limit of zero or less means no limit.
func (s *Store) ListPending(ctx context.Context, now time.Time, types []JobType, limit int) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM media_jobs
        WHERE (status = ? OR (status = ? AND (next_retry_at IS NULL OR next_retry_at <= ?)))`
	args := []any{StatusQueued, StatusRetrying, formatTime(now)}

	if len(types) > 0 {
		query += ` AND job_type IN (` + makePlaceholders(len(types)) + `)`
		for _, jt := range types {
			args = append(args, jt)
		}
	}
	query += ` ORDER BY priority DESC, created_at, rowid`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pending jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

func collectJobs(rows *sql.Rows) ([]*Job, error) {
	var out []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// Remove deletes a job by identifier.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM media_jobs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ClearCompleted removes only completed jobs.
func (s *Store) ClearCompleted(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM media_jobs WHERE status = ?`, StatusCompleted)
	if err != nil {
		return 0, fmt.Errorf("clear completed: %w", err)
	}
	return res.RowsAffected()
}

// ClearFailed removes only failed jobs.
func (s *Store) ClearFailed(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM media_jobs WHERE status = ?`, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("clear failed: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes all jobs.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM media_jobs`)
	if err != nil {
		return 0, fmt.Errorf("clear jobs: %w", err)
	}
	return res.RowsAffected()
}

