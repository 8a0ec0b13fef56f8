// Package model defines the shared data types and the classified error
// taxonomy used across the modeld lifecycle: tabular row data exchanged
// with model instances, opaque parameter maps, and errors carrying a
// machine-readable kind (not found, conflict, forbidden, I/O failure,
// job failure) for precondition and persistence failures.
package model
