package queue

import "context"

// State is the lifecycle state of a dispatched job.
type State string

const (
	// StatePending means the job is queued and not yet picked up.
	StatePending State = "PENDING"
	// StateStarted means a worker is executing the job.
	StateStarted State = "STARTED"
	// StateRetry means the job failed and is awaiting another attempt.
	StateRetry State = "RETRY"
	// StateSuccess means the job completed without error.
	StateSuccess State = "SUCCESS"
	// StateFailure means the job completed with an error.
	StateFailure State = "FAILURE"
	// StateRevoked means the job was cancelled before completing.
	StateRevoked State = "REVOKED"
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	switch s {
	case StateSuccess, StateFailure, StateRevoked:
		return true
	}
	return false
}

// Task is the unit of work a queue executes. The context is cancelled
// when the job is revoked or the queue shuts down.
type Task func(ctx context.Context) error

// Handle is a pollable reference to a dispatched job.
type Handle interface {
	// ID returns the unique job identifier.
	ID() string
	// State returns the current lifecycle state without blocking.
	State() State
	// Err returns the task error once the job has failed, nil otherwise.
	Err() error
	// Cancel requests best-effort cancellation of the job.
	Cancel()
}

// Queue dispatches tasks for asynchronous execution.
type Queue interface {
	// Enqueue submits a task and returns a handle in the pending state.
	Enqueue(ctx context.Context, task Task) (Handle, error)
	// Close stops accepting work and waits for in-flight jobs.
	Close()
}
