// Package orchestrator coordinates model lifecycle operations across
// the registry, the job queue, and the metadata catalog.
//
// Mutations (create, input, update) are guard-checked synchronously,
// then dispatched to the queue; the caller gets back a pollable status
// and never blocks on the work itself. At most one non-terminal job
// exists per instance name, which serializes background mutation of
// each artifact. Output is synchronous and read-only. Delete cancels
// any running job best effort before removing the instance. Metadata
// bookkeeping is fire-and-forget and never influences lifecycle
// decisions.
package orchestrator
