// Package metadata keeps the bookkeeping catalog of model instances
// in SQLite.
//
// The catalog records who created an instance, when, and what it is
// for. It is written to on lifecycle events and queried for listing
// and search, but lifecycle decisions never consult it: the storage
// root stays the single source of truth, and a stale or unavailable
// catalog only degrades bookkeeping.
package metadata
