// Package preflight runs the readiness checks shared by the daemon and the
// CLI: writable directories, free disk space, external binaries, and
// reachability of the LLM and control-plane APIs.
package preflight
