// Package planestore persists the reference control plane: projects,
// creation snapshots, jobs, per-language progress, scripts, assets, and the
// status audit trail.
//
// SQLite (modernc.org/sqlite) is the default backend; Postgres (lib/pq) is
// selected with a postgres:// DSN. Queries are written with ? placeholders
// and rebound for Postgres.
//
// Claims run in one transaction with conditional updates so that exactly one
// daemon wins a queued job and a project owned by another daemon is never
// claimed.
package planestore
