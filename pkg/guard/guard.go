package guard

import (
	"github.com/modeld/modeld/pkg/model"
	"github.com/modeld/modeld/pkg/queue"
	"github.com/modeld/modeld/pkg/variant"
)

// InstanceSet is the guard's read-only view of tracked instances.
type InstanceSet interface {
	Has(name string) bool
	Capabilities(name string) (variant.Capabilities, bool)
}

// JobSet is the guard's read-only view of dispatched jobs. State
// reports the most recent job for name, if any.
type JobSet interface {
	State(name string) (queue.State, bool)
}

// Guard evaluates lifecycle preconditions against the current instance
// and job views.
type Guard struct {
	instances InstanceSet
	jobs      JobSet
}

// New creates a guard over the given views.
func New(instances InstanceSet, jobs JobSet) *Guard {
	return &Guard{instances: instances, jobs: jobs}
}

// Create fails with conflict when name already has an instance.
func (g *Guard) Create(name string) error {
	if g.instances.Has(name) {
		return model.NewConflict("model instance already exists").WithResource(name).WithOp("create")
	}
	return nil
}

// Read fails with not found when name has no instance.
func (g *Guard) Read(name string) error {
	if !g.instances.Has(name) {
		return model.NewNotFound("model instance not found").WithResource(name)
	}
	return nil
}

// Idle fails with conflict while name has a non-terminal job.
func (g *Guard) Idle(name string) error {
	state, ok := g.jobs.State(name)
	if ok && !state.Terminal() {
		return model.NewConflict("model instance is processing a job").WithResource(name)
	}
	return nil
}

// Input fails unless name exists, supports input, and is idle.
func (g *Guard) Input(name string) error {
	if err := g.Read(name); err != nil {
		return err
	}
	if err := g.capability(name, "input"); err != nil {
		return err
	}
	return g.Idle(name)
}

// Output fails unless name exists and supports output. Output is
// read-only, so a running job does not block it.
func (g *Guard) Output(name string) error {
	if err := g.Read(name); err != nil {
		return err
	}
	return g.capability(name, "output")
}

// Update fails unless name exists, supports update, and is idle.
func (g *Guard) Update(name string) error {
	if err := g.Read(name); err != nil {
		return err
	}
	if err := g.capability(name, "update"); err != nil {
		return err
	}
	return g.Idle(name)
}

// Cancel fails unless name has a job that is still cancellable.
func (g *Guard) Cancel(name string) error {
	state, ok := g.jobs.State(name)
	if !ok {
		return model.NewNotFound("no job for model instance").WithResource(name).WithOp("cancel")
	}
	if state.Terminal() {
		return model.NewConflict("job already finished").WithResource(name).WithOp("cancel")
	}
	return nil
}

func (g *Guard) capability(name, op string) error {
	caps, ok := g.instances.Capabilities(name)
	if !ok {
		return model.NewNotFound("model instance not found").WithResource(name)
	}

	allowed := false
	switch op {
	case "input":
		allowed = caps.Input
	case "output":
		allowed = caps.Output
	case "update":
		allowed = caps.Update
	}
	if !allowed {
		return model.NewForbidden("operation not supported by variant").WithResource(name).WithOp(op)
	}
	return nil
}
