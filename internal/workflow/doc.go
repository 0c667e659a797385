// Package workflow drives projects through the pipeline from the control
// plane's job queue.
//
// Each poll cycle the Manager checks control-plane health, creates a job for
// every eligible project that lacks one, verifies free disk space, then
// fetches queued jobs and claims them through the ownership protocol. A
// claimed job is dispatched to the phase executor matching the project's
// current status (not the job type), inside a per-job timeout and a bounded
// number of worker slots. At most one job per project runs at a time.
//
// Outcomes map onto the control plane as follows: success marks the job done
// and advances the project status with the executor's typed extra; transient
// failures mark the job failed and leave the project untouched so the next
// cycle re-creates the job; every other failure, including timeouts and the
// loss of every language, moves the project to Error with an ErrorExtra.
// Executors are idempotent, so restarting the daemon mid-phase is safe.
package workflow
