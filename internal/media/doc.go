// Package media adapts the external tools the pipeline shells out to: the
// text-to-speech providers from the voice catalog, WhisperX, the configured
// image generator, ffmpeg, and ffprobe.
//
// Every adapter builds a workspace.Command and hands it to a Runner so the
// invocation lands in the per-language transcript directory. Tools are
// treated as black boxes: an adapter succeeds only when the process exits
// cleanly and the expected output file exists and is non-empty.
package media
