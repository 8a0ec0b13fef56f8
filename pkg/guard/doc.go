// Package guard centralizes the preconditions checked before lifecycle
// operations run.
//
// The guard is stateless: it reads instance existence and capability
// flags through an InstanceSet view and job states through a JobSet
// view, and returns a typed error when a precondition fails. Callers
// decide when to check; the guard never mutates anything.
package guard
