// Package logging assembles structured slog loggers and formatting helpers used
// across reelmill.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so phase code automatically
// tags log lines with project IDs, job IDs, languages, and stages. Job
// loggers tee the daemon stream into a per-project log file so operators can
// read one project's history without grepping the daemon log.
package logging
