// Package controlplane is the daemon's typed HTTP client for the control-plane
// API: health, job queue, claim, project status, scripts, language progress,
// assets, and storage uploads.
//
// Every request carries the shared daemon password, the daemon identity, and
// a request id. Idempotent calls are retried with exponential backoff on
// network errors and 5xx responses; the claim and job creation are sent once.
// Failures are tagged with services markers so callers can tell a lost
// ownership race (ErrConflict) from an outage (ErrTransient).
package controlplane
