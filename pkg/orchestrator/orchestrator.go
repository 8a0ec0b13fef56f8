package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/modeld/modeld/pkg/guard"
	"github.com/modeld/modeld/pkg/model"
	"github.com/modeld/modeld/pkg/queue"
	"github.com/modeld/modeld/pkg/registry"
	"github.com/modeld/modeld/pkg/telemetry"
	"github.com/modeld/modeld/pkg/variant"
)

// Operation names the kind of work a job performs.
type Operation string

const (
	OpCreate Operation = "CREATE"
	OpInput  Operation = "INPUT"
	OpUpdate Operation = "UPDATE"
)

// StateIdle is reported when an instance has no job record.
const StateIdle = queue.State("IDLE")

// bridgeTimeout bounds fire-and-forget metadata notifications.
const bridgeTimeout = 5 * time.Second

// Status is a non-blocking snapshot of an instance's job situation.
type Status struct {
	Name      string      `json:"name"`
	Operation Operation   `json:"operation,omitempty"`
	State     queue.State `json:"state"`
	JobID     string      `json:"job_id,omitempty"`
	StartedAt time.Time   `json:"started_at,omitzero"`
}

// JobRecord tracks the most recent job dispatched for a name.
type JobRecord struct {
	Operation Operation
	Handle    queue.Handle
	StartedAt time.Time
}

// Bridge is the optional metadata bookkeeping sink. Notifications are
// best effort; failures never alter lifecycle outcomes.
type Bridge interface {
	Created(ctx context.Context, name, variantName string, caps variant.Capabilities, fields model.Params) error
	Touched(ctx context.Context, name string) error
	Deleted(ctx context.Context, name string) error
}

// Orchestrator coordinates lifecycle operations over a registry and a
// job queue, keeping at most one non-terminal job per instance name.
type Orchestrator struct {
	registry *registry.Registry
	table    *variant.Table
	queue    queue.Queue
	guard    *guard.Guard
	bridge   Bridge
	metrics  *telemetry.Metrics
	tracer   *telemetry.Tracer
	log      zerolog.Logger

	mu      sync.Mutex
	records map[string]*JobRecord
}

// New creates an orchestrator. bridge, metrics, and tracer may be nil.
func New(reg *registry.Registry, table *variant.Table, q queue.Queue, bridge Bridge, metrics *telemetry.Metrics, tracer *telemetry.Tracer, log zerolog.Logger) *Orchestrator {
	o := &Orchestrator{
		registry: reg,
		table:    table,
		queue:    q,
		bridge:   bridge,
		metrics:  metrics,
		tracer:   tracer,
		log:      log.With().Str("component", "orchestrator").Logger(),
		records:  make(map[string]*JobRecord),
	}
	o.guard = guard.New(reg, o)
	return o
}

// State reports the current job state for name, satisfying the
// lifecycle guard's job view.
func (o *Orchestrator) State(name string) (queue.State, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	rec, ok := o.records[name]
	if !ok {
		return "", false
	}
	return rec.Handle.State(), true
}

// Create dispatches construction of a new instance of variantName. The
// variant must be registered and the name unused; fields are passed to
// the metadata bridge once the instance exists.
func (o *Orchestrator) Create(ctx context.Context, name, variantName string, settings, fields model.Params) (Status, error) {
	reg, err := o.table.Lookup(variantName)
	if err != nil {
		return Status{}, o.fail(err)
	}
	if err := o.guard.Create(name); err != nil {
		return Status{}, o.fail(err)
	}
	if err := o.guard.Idle(name); err != nil {
		return Status{}, o.fail(err)
	}
	caps := reg.Capabilities

	return o.dispatch(ctx, name, OpCreate, func(tctx context.Context) error {
		o.reconcile()
		if err := o.registry.Create(name, variantName, settings); err != nil {
			return err
		}
		o.notify(func(nctx context.Context) error {
			return o.bridge.Created(nctx, name, variantName, caps, fields)
		})
		o.observeInstances()
		return nil
	})
}

// Input dispatches an input operation for name.
func (o *Orchestrator) Input(ctx context.Context, name string, data model.Rows, params model.Params) (Status, error) {
	if err := o.guard.Input(name); err != nil {
		return Status{}, o.fail(err)
	}

	return o.dispatch(ctx, name, OpInput, func(tctx context.Context) error {
		o.reconcile()
		if err := o.registry.Input(name, data, params); err != nil {
			return err
		}
		o.notify(func(nctx context.Context) error {
			return o.bridge.Touched(nctx, name)
		})
		return nil
	})
}

// Update dispatches an update operation for name.
func (o *Orchestrator) Update(ctx context.Context, name string, data model.Rows, params model.Params) (Status, error) {
	if err := o.guard.Update(name); err != nil {
		return Status{}, o.fail(err)
	}

	return o.dispatch(ctx, name, OpUpdate, func(tctx context.Context) error {
		o.reconcile()
		if err := o.registry.Update(name, data, params); err != nil {
			return err
		}
		o.notify(func(nctx context.Context) error {
			return o.bridge.Touched(nctx, name)
		})
		return nil
	})
}

// Output runs the read-only output operation on the caller's
// goroutine. A running job for name does not block it.
func (o *Orchestrator) Output(ctx context.Context, name string, data model.Rows, params model.Params) (model.Rows, error) {
	if err := o.guard.Output(name); err != nil {
		return nil, o.fail(err)
	}

	var span trace.Span
	if o.tracer != nil {
		_, span = o.tracer.StartOutputSpan(ctx, name)
		defer span.End()
	}

	start := time.Now()
	out, err := o.registry.Output(name, data, params)
	if err != nil {
		if span != nil {
			telemetry.RecordError(span, err)
		}
		return nil, o.fail(err)
	}
	if o.metrics != nil {
		o.metrics.ObserveOutput(time.Since(start))
	}
	return out, nil
}

// Status returns the current job snapshot for name, or an idle status
// when nothing has been dispatched. It never blocks on the job.
func (o *Orchestrator) Status(name string) Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	rec, ok := o.records[name]
	if !ok {
		return Status{Name: name, State: StateIdle}
	}
	return Status{
		Name:      name,
		Operation: rec.Operation,
		State:     rec.Handle.State(),
		JobID:     rec.Handle.ID(),
		StartedAt: rec.StartedAt,
	}
}

// Cancel sends a best-effort terminate signal to the current job for
// name and returns the post-signal snapshot. The caller re-polls
// Status to observe the final outcome.
func (o *Orchestrator) Cancel(name string) (Status, error) {
	if err := o.guard.Cancel(name); err != nil {
		return Status{}, o.fail(err)
	}

	o.mu.Lock()
	rec, ok := o.records[name]
	o.mu.Unlock()
	if !ok {
		return Status{}, o.fail(model.NewNotFound("no job for model instance").WithResource(name).WithOp("cancel"))
	}

	rec.Handle.Cancel()
	o.log.Info().Str("name", name).Str("job_id", rec.Handle.ID()).Msg("job cancellation requested")
	return o.Status(name), nil
}

// Delete removes the instance synchronously. A non-terminal job for
// name is cancelled first; the job record is dropped so a later Status
// reports idle.
func (o *Orchestrator) Delete(ctx context.Context, name string) error {
	if err := o.guard.Read(name); err != nil {
		return o.fail(err)
	}

	o.mu.Lock()
	if rec, ok := o.records[name]; ok && !rec.Handle.State().Terminal() {
		rec.Handle.Cancel()
	}
	o.mu.Unlock()

	if err := o.registry.Delete(name, nil); err != nil {
		return o.fail(err)
	}

	o.mu.Lock()
	delete(o.records, name)
	o.mu.Unlock()

	o.notify(func(nctx context.Context) error {
		return o.bridge.Deleted(nctx, name)
	})
	o.observeInstances()
	return nil
}

// Names lists the instance names currently tracked by the registry.
func (o *Orchestrator) Names() []string {
	return o.registry.Names()
}

// dispatch submits run to the queue and records the resulting job
// under name, replacing any terminal record. The job-map check and the
// record insert happen under one lock acquisition so two concurrent
// dispatches for the same name cannot both slip past the guard.
func (o *Orchestrator) dispatch(ctx context.Context, name string, op Operation, run queue.Task) (Status, error) {
	start := time.Now()
	task := func(tctx context.Context) error {
		var span trace.Span
		if o.tracer != nil {
			_, span = o.tracer.StartJobSpan(tctx, name, string(op))
		}
		err := run(tctx)
		if span != nil {
			telemetry.RecordError(span, err)
			span.End()
		}
		if o.metrics != nil {
			o.metrics.ObserveJob(string(op), err == nil, time.Since(start))
		}
		if err != nil {
			o.log.Error().Str("name", name).Str("operation", string(op)).Err(err).Msg("job failed")
		}
		return err
	}

	o.mu.Lock()
	if rec, ok := o.records[name]; ok && !rec.Handle.State().Terminal() {
		o.mu.Unlock()
		return Status{}, o.fail(model.NewConflict("model instance is processing a job").WithResource(name).WithOp(string(op)))
	}
	handle, err := o.queue.Enqueue(ctx, task)
	if err != nil {
		o.mu.Unlock()
		return Status{}, o.fail(err)
	}
	o.records[name] = &JobRecord{Operation: op, Handle: handle, StartedAt: start}
	o.mu.Unlock()

	if o.metrics != nil {
		o.metrics.JobDispatched(string(op))
	}
	o.log.Info().Str("name", name).Str("operation", string(op)).Str("job_id", handle.ID()).Msg("job dispatched")

	return Status{
		Name:      name,
		Operation: op,
		State:     handle.State(),
		JobID:     handle.ID(),
		StartedAt: start,
	}, nil
}

// reconcile refreshes the registry from disk so a worker sharing only
// the storage root still sees peer-created instances.
func (o *Orchestrator) reconcile() {
	if err := o.registry.Reconcile(); err != nil {
		o.log.Warn().Err(err).Msg("registry reconcile before job failed")
	}
}

// notify runs a metadata bridge call in the background with a bounded
// context. Failures are logged and otherwise ignored.
func (o *Orchestrator) notify(call func(ctx context.Context) error) {
	if o.bridge == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), bridgeTimeout)
		defer cancel()
		if err := call(ctx); err != nil {
			o.log.Warn().Err(err).Msg("metadata notification failed")
		}
	}()
}

func (o *Orchestrator) observeInstances() {
	if o.metrics != nil {
		o.metrics.SetInstances(len(o.registry.Names()))
	}
}

// fail counts the error by kind before returning it unchanged.
func (o *Orchestrator) fail(err error) error {
	if o.metrics != nil {
		o.metrics.ErrorObserved(string(model.KindOf(err)))
	}
	return err
}
