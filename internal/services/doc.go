// Package services defines shared utilities consumed by the worker pipeline
// stages and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, worker identity, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that keep failure
//     classification consistent across pipeline stages.
//
// Use these helpers when wiring new stage logic so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
