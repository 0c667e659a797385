// Package daemon coordinates the long-running reelmill worker process.
//
// It owns the flock-based single-instance lock, starts and stops the
// workflow manager, and serves a small local HTTP listener exposing
// Prometheus metrics and a JSON status snapshot.
//
// Keep orchestration logic here: phase behaviour lives in the phases
// package and polling in workflow, while the daemon focuses on startup,
// shutdown, and high level coordination.
package daemon
