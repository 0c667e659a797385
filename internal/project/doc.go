// Package project defines the domain records the daemon exchanges with the
// control plane: projects, jobs, per-language progress, creation snapshots,
// assets, and the typed extras attached to status transitions.
//
// It also owns the status state machine. Next advances a status once its
// phase completed, StageFor maps a status to the job that executes it, and
// the Stage ordering drives rollback and failure bookkeeping.
package project
