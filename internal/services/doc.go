// Package services defines shared error markers and context helpers consumed
// by the phase executors, the control-plane client, and the workflow manager.
//
// Key responsibilities:
//   - Context helpers that stamp project IDs, job IDs, languages, stages, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that let the workflow
//     manager decide between retrying a job, disabling a language, and
//     moving a project to Error.
//
// Use these helpers when wiring new phase logic so operational behaviour
// (error handling, observability, retries) stays uniform across the pipeline.
package services
