// Package daemon owns the telecined process lifecycle: the single-instance
// lock, the worker pool, background maintenance (stale-job reclamation,
// abandoned upload sweeps, scratch cleanup), and the operations the IPC
// surface exposes to the CLI.
//
// The daemon never mutates job or session rows itself; every state change
// goes through the orchestrator and the upload manager so their transition
// guards stay authoritative.
package daemon
