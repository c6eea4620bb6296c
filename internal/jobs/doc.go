// Package jobs owns the media job model, its SQLite persistence, and the
// orchestrator that enforces the job state machine.
//
// A job moves queued -> processing -> {completed | retrying -> queued | failed
// | cancelled}. Only queued and retrying jobs (with an elapsed retry delay)
// are eligible for worker pickup. All transitions run as guarded UPDATE
// statements so concurrent workers race safely: the loser of a claim sees
// ErrInvalidTransition and moves on.
//
// The Orchestrator is the single owner of retry and backoff policy. Workers
// report outcomes through its methods and never mutate job rows directly.
package jobs
