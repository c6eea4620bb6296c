// Package worker drains the job queue. A pool of goroutines claims pending
// jobs through the orchestrator, stages the source locally, runs the
// per-type encode pipeline, publishes the output tree, and records the
// terminal transition. While a job runs its worker heartbeats the row and
// watches for operator cancellation so long encodes stop promptly.
package worker
