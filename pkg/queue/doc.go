// Package queue provides asynchronous task execution with a small,
// pollable job state machine.
//
// A job moves from PENDING through STARTED to exactly one terminal
// state: SUCCESS, FAILURE, or REVOKED. Cancellation is best effort: a
// pending job is skipped at dequeue, a started job has its context
// cancelled and is marked revoked, and a terminal job is unaffected.
// The Local implementation runs jobs on a fixed in-process worker pool.
package queue
