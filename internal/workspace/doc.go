// Package workspace owns the on-disk layout of in-flight projects.
//
// Every project gets two trees under the configured workspace root:
//
//	{projectId}/workspace/{language}/{stage}/   intermediate artifacts
//	{projectId}/logs/{language}/{stage}/        command transcripts
//
// Paths are partitioned by language and stage so concurrent phases never
// write the same file. Nothing here is durable state: a lost workspace is
// rebuilt by re-running idempotent phases against the control plane.
package workspace
