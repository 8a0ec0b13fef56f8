package guard

import (
	"testing"

	"github.com/modeld/modeld/pkg/model"
	"github.com/modeld/modeld/pkg/queue"
	"github.com/modeld/modeld/pkg/variant"
)

type fakeInstances map[string]variant.Capabilities

func (f fakeInstances) Has(name string) bool {
	_, ok := f[name]
	return ok
}

func (f fakeInstances) Capabilities(name string) (variant.Capabilities, bool) {
	caps, ok := f[name]
	return caps, ok
}

type fakeJobs map[string]queue.State

func (f fakeJobs) State(name string) (queue.State, bool) {
	s, ok := f[name]
	return s, ok
}

func allCaps() variant.Capabilities {
	return variant.Capabilities{Input: true, Output: true, Update: true}
}

func TestCreate(t *testing.T) {
	g := New(fakeInstances{"taken": allCaps()}, fakeJobs{})

	if err := g.Create("fresh"); err != nil {
		t.Errorf("expected fresh name to pass, got %v", err)
	}
	if err := g.Create("taken"); !model.IsConflict(err) {
		t.Errorf("expected conflict for existing name, got %v", err)
	}
}

func TestRead(t *testing.T) {
	g := New(fakeInstances{"m1": allCaps()}, fakeJobs{})

	if err := g.Read("m1"); err != nil {
		t.Errorf("expected existing instance to pass, got %v", err)
	}
	if err := g.Read("ghost"); !model.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestIdle(t *testing.T) {
	tests := []struct {
		name     string
		state    queue.State
		hasJob   bool
		conflict bool
	}{
		{"no job", "", false, false},
		{"pending", queue.StatePending, true, true},
		{"started", queue.StateStarted, true, true},
		{"retry", queue.StateRetry, true, true},
		{"success", queue.StateSuccess, true, false},
		{"failure", queue.StateFailure, true, false},
		{"revoked", queue.StateRevoked, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs := fakeJobs{}
			if tt.hasJob {
				jobs["m1"] = tt.state
			}
			g := New(fakeInstances{"m1": allCaps()}, jobs)

			err := g.Idle("m1")
			if tt.conflict && !model.IsConflict(err) {
				t.Errorf("expected conflict, got %v", err)
			}
			if !tt.conflict && err != nil {
				t.Errorf("expected idle to pass, got %v", err)
			}
		})
	}
}

func TestCapabilityEnforcement(t *testing.T) {
	instances := fakeInstances{
		"readonly": {Output: true},
		"sink":     {Input: true, Update: true},
	}
	g := New(instances, fakeJobs{})

	if err := g.Output("readonly"); err != nil {
		t.Errorf("expected output to pass, got %v", err)
	}
	if err := g.Input("readonly"); !model.IsForbidden(err) {
		t.Errorf("expected forbidden input, got %v", err)
	}
	if err := g.Update("readonly"); !model.IsForbidden(err) {
		t.Errorf("expected forbidden update, got %v", err)
	}

	if err := g.Input("sink"); err != nil {
		t.Errorf("expected input to pass, got %v", err)
	}
	if err := g.Output("sink"); !model.IsForbidden(err) {
		t.Errorf("expected forbidden output, got %v", err)
	}
}

func TestMutatorsRequireIdle(t *testing.T) {
	g := New(fakeInstances{"m1": allCaps()}, fakeJobs{"m1": queue.StateStarted})

	if err := g.Input("m1"); !model.IsConflict(err) {
		t.Errorf("expected conflict for busy input, got %v", err)
	}
	if err := g.Update("m1"); !model.IsConflict(err) {
		t.Errorf("expected conflict for busy update, got %v", err)
	}
	// Output is read-only and stays available while a job runs.
	if err := g.Output("m1"); err != nil {
		t.Errorf("expected output to pass while busy, got %v", err)
	}
}

func TestCancel(t *testing.T) {
	g := New(fakeInstances{"m1": allCaps()}, fakeJobs{
		"running": queue.StateStarted,
		"done":    queue.StateSuccess,
	})

	if err := g.Cancel("running"); err != nil {
		t.Errorf("expected cancel of running job to pass, got %v", err)
	}
	if err := g.Cancel("done"); !model.IsConflict(err) {
		t.Errorf("expected conflict for finished job, got %v", err)
	}
	if err := g.Cancel("never"); !model.IsNotFound(err) {
		t.Errorf("expected not found without a job, got %v", err)
	}
}
