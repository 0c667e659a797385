// Package config loads, normalizes, and validates reelmill configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// REELMILL_PLANE_PASSWORD. The Config type centralizes every knob the daemon
// and CLI need: daemon identity, polling cadence, concurrency limits,
// workspace roots, control-plane credentials, and external tool commands.
//
// A Config is built once at process start and passed by pointer into every
// component. Nothing in this package keeps process-wide state.
package config
