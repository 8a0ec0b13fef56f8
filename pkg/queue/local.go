package queue

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/modeld/modeld/pkg/model"
)

// job carries a task through the worker pool. Its state is guarded by
// mu so pollers and workers never race.
type job struct {
	id   string
	task Task

	mu     sync.Mutex
	state  State
	err    error
	cancel context.CancelFunc
}

// ID returns the unique job identifier.
func (j *job) ID() string { return j.id }

// State returns the current lifecycle state.
func (j *job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Err returns the recorded task error, if any.
func (j *job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Cancel revokes a pending job in place or cancels the context of a
// started one. Terminal jobs are left untouched.
func (j *job) Cancel() {
	j.mu.Lock()
	defer j.mu.Unlock()

	switch j.state {
	case StatePending, StateRetry:
		j.state = StateRevoked
	case StateStarted:
		j.state = StateRevoked
		if j.cancel != nil {
			j.cancel()
		}
	}
}

// start transitions the job to started and installs the cancel hook.
// It reports false when the job was revoked while still queued.
func (j *job) start(cancel context.CancelFunc) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state != StatePending {
		return false
	}
	j.state = StateStarted
	j.cancel = cancel
	return true
}

// finish records the task outcome unless the job was revoked mid-run.
func (j *job) finish(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state != StateStarted {
		return
	}
	if err != nil {
		j.state = StateFailure
		j.err = err
		return
	}
	j.state = StateSuccess
}

// Local runs tasks on a fixed in-process worker pool.
type Local struct {
	jobs chan *job
	wg   sync.WaitGroup
	log  zerolog.Logger

	mu     sync.Mutex
	closed bool
}

// NewLocal starts a pool of workers consuming from a buffered queue.
// Non-positive workers or buffer sizes fall back to sane minimums.
func NewLocal(workers, buffer int, log zerolog.Logger) *Local {
	if workers < 1 {
		workers = 1
	}
	if buffer < 1 {
		buffer = 16
	}

	l := &Local{
		jobs: make(chan *job, buffer),
		log:  log.With().Str("component", "queue").Logger(),
	}

	l.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go l.worker()
	}
	return l
}

// Enqueue submits a task for asynchronous execution. It fails when the
// queue is closed or the buffer is full rather than blocking callers.
func (l *Local) Enqueue(ctx context.Context, task Task) (Handle, error) {
	if task == nil {
		return nil, model.NewIOFailure("nil task", nil)
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, model.NewConflict("queue is closed")
	}

	j := &job{
		id:    uuid.New().String(),
		task:  task,
		state: StatePending,
	}

	select {
	case l.jobs <- j:
		l.mu.Unlock()
	default:
		l.mu.Unlock()
		return nil, model.NewConflict("queue buffer is full")
	}

	l.log.Debug().Str("job_id", j.id).Msg("job enqueued")
	return j, nil
}

// Close stops accepting new work and waits for queued and in-flight
// jobs to finish.
func (l *Local) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	close(l.jobs)
	l.mu.Unlock()

	l.wg.Wait()
}

func (l *Local) worker() {
	defer l.wg.Done()

	for j := range l.jobs {
		ctx, cancel := context.WithCancel(context.Background())
		if !j.start(cancel) {
			// Revoked while queued.
			cancel()
			l.log.Debug().Str("job_id", j.id).Msg("skipping revoked job")
			continue
		}

		err := j.task(ctx)
		cancel()
		j.finish(err)

		evt := l.log.Debug().Str("job_id", j.id).Str("state", string(j.State()))
		if err != nil {
			evt = evt.Err(err)
		}
		evt.Msg("job finished")
	}
}
