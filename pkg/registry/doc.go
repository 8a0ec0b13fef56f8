// Package registry owns the mapping from instance name to in-memory
// model handle and the folder-per-instance on-disk layout behind it.
//
// Each instance lives in its own subfolder under a configured storage
// root, holding a base manifest written once at creation and a
// current-state file rewritten on every successful input or update. The
// in-memory map is a cache over that root: reads and mutations reload
// the state file when its modification time passes the last load, and
// Reconcile adopts instances created by peer processes sharing the same
// root. Multiple processes may share a root; the orchestrator's
// one-job-per-name rule is what keeps writers from colliding.
package registry
