package jobs

import "errors"

var (
	// ErrNotFound marks lookups for job IDs that do not exist.
	ErrNotFound = errors.New("job not found")

	// ErrInvalidJobType marks job types outside the known set.
	ErrInvalidJobType = errors.New("invalid job type")

	// ErrInvalidConfig marks parameter blocks that fail validation for
	// their job type.
	ErrInvalidConfig = errors.New("invalid job config")

	// ErrInvalidTransition marks state changes the lifecycle forbids,
	// including lost claim races between workers.
	ErrInvalidTransition = errors.New("invalid job transition")

	// ErrInvalidJobState marks operations aimed at a job whose current
	// state cannot accept them, such as cancelling a completed job.
	ErrInvalidJobState = errors.New("invalid job state")
)

// Stable error codes recorded on failed or reclaimed jobs. Callers surface
// these to operators, so additions are fine but renames are not.
const (
	CodeProbe     = "probe_error"
	CodeEncoding  = "encoding_error"
	CodePublish   = "publish_error"
	CodeStorage   = "storage_error"
	CodeTimeout   = "timeout"
	CodeReclaimed = "worker_lost"
	CodeInternal  = "internal_error"
)
