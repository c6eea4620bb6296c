package jobs

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"telecine/internal/media"
)

const jobColumns = "id, job_type, source_type, source_id, source_bucket, source_key, output_bucket, output_prefix, config_json, status, priority, progress, stage, attempts, max_attempts, requested_by, worker_id, output_json, error_code, error_message, created_at, updated_at, started_at, completed_at, last_error_at, next_retry_at, heartbeat_at"

// timestampLayout pads fractional seconds to a fixed width so stored
// timestamps order correctly under SQLite's string comparison. Parsing
// still accepts plain RFC3339Nano.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id           string
		jobType      string
		sourceType   string
		sourceID     string
		sourceBucket string
		sourceKey    string
		outputBucket sql.NullString
		outputPrefix sql.NullString
		configJSON   sql.NullString
		statusStr    string
		priority     int64
		progress     int64
		stage        sql.NullString
		attempts     int64
		maxAttempts  int64
		requestedBy  sql.NullString
		workerID     sql.NullString
		outputJSON   sql.NullString
		errorCode    sql.NullString
		errorMessage sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
		startedRaw   sql.NullString
		completedRaw sql.NullString
		lastErrorRaw sql.NullString
		nextRetryRaw sql.NullString
		heartbeatRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&jobType,
		&sourceType,
		&sourceID,
		&sourceBucket,
		&sourceKey,
		&outputBucket,
		&outputPrefix,
		&configJSON,
		&statusStr,
		&priority,
		&progress,
		&stage,
		&attempts,
		&maxAttempts,
		&requestedBy,
		&workerID,
		&outputJSON,
		&errorCode,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&completedRaw,
		&lastErrorRaw,
		&nextRetryRaw,
		&heartbeatRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:   id,
		Type: JobType(jobType),
		Source: media.SourceRef{
			Type:   media.SourceType(sourceType),
			ID:     sourceID,
			Bucket: sourceBucket,
			Key:    sourceKey,
		},
		Output: media.OutputLocation{
			Bucket: outputBucket.String,
			Prefix: outputPrefix.String,
		},
		Status:       Status(statusStr),
		Priority:     int(priority),
		Progress:     int(progress),
		Stage:        stage.String,
		Attempts:     int(attempts),
		MaxAttempts:  int(maxAttempts),
		RequestedBy:  requestedBy.String,
		WorkerID:     workerID.String,
		ErrorCode:    errorCode.String,
		ErrorMessage: errorMessage.String,
	}
	if configJSON.Valid && configJSON.String != "" {
		job.ConfigJSON = json.RawMessage(configJSON.String)
	}
	if outputJSON.Valid && outputJSON.String != "" {
		var meta OutputMetadata
		if err := json.Unmarshal([]byte(outputJSON.String), &meta); err != nil {
			return nil, fmt.Errorf("decode output metadata for job %s: %w", id, err)
		}
		job.OutputMetadata = &meta
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	job.StartedAt = parseNullableTime(startedRaw)
	job.CompletedAt = parseNullableTime(completedRaw)
	job.LastErrorAt = parseNullableTime(lastErrorRaw)
	job.NextRetryAt = parseNullableTime(nextRetryRaw)
	job.HeartbeatAt = parseNullableTime(heartbeatRaw)
	return job, nil
}

func parseNullableTime(raw sql.NullString) *time.Time {
	if !raw.Valid {
		return nil
	}
	t, err := parseTimeString(raw.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

func formatTime(value time.Time) string {
	return value.UTC().Format(timestampLayout)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func encodeOutputMetadata(meta *OutputMetadata) (any, error) {
	if meta == nil || meta.IsZero() {
		return nil, nil
	}
	encoded, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode output metadata: %w", err)
	}
	return string(encoded), nil
}
