// Package notifications delivers project outcomes via ntfy.
//
// The default implementation publishes to the ntfy topic configured in
// config.toml and degrades to a no-op when no topic is set. Events cover
// completed projects (with any failed languages), failed projects, and
// individual languages disabled mid-pipeline.
package notifications
