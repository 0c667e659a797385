// Package phases implements one executor per pipeline stage.
//
// An executor runs for the project's current status, fans out over the
// enabled languages that have not finished its stage, and reports the next
// status together with the typed extra for the status history. Executors
// are idempotent: completed languages are skipped using the progress flags,
// and partially finished languages resume from the artifacts recorded in
// their progress row.
//
// Failure isolation: a content or tooling error for one language disables
// that language and the remaining languages continue. Context cancellation,
// transient infrastructure errors, configuration errors, control-plane
// failures, and missing upstream artifacts abort the whole job instead.
// When every language ends up disabled the executor returns
// ErrAllLanguagesFailed and the project moves to Error.
package phases
