package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/modeld/modeld/pkg/model"
	"github.com/modeld/modeld/pkg/queue"
	"github.com/modeld/modeld/pkg/registry"
	"github.com/modeld/modeld/pkg/telemetry"
	"github.com/modeld/modeld/pkg/variant"
)

// gate is a variant whose input blocks until released, to hold a job
// in the started state from a test.
type gate struct {
	variant.Model
	release chan struct{}
	started chan struct{}
	once    sync.Once
}

func (g *gate) Input(data model.Rows, params model.Params) error {
	g.once.Do(func() { close(g.started) })
	<-g.release
	return g.Model.Input(data, params)
}

// recordingBridge collects notifications for assertions.
type recordingBridge struct {
	mu      sync.Mutex
	created []string
	touched []string
	deleted []string
	signal  chan struct{}
}

func newRecordingBridge() *recordingBridge {
	return &recordingBridge{signal: make(chan struct{}, 16)}
}

func (b *recordingBridge) Created(_ context.Context, name, _ string, _ variant.Capabilities, _ model.Params) error {
	b.mu.Lock()
	b.created = append(b.created, name)
	b.mu.Unlock()
	b.signal <- struct{}{}
	return nil
}

func (b *recordingBridge) Touched(_ context.Context, name string) error {
	b.mu.Lock()
	b.touched = append(b.touched, name)
	b.mu.Unlock()
	b.signal <- struct{}{}
	return nil
}

func (b *recordingBridge) Deleted(_ context.Context, name string) error {
	b.mu.Lock()
	b.deleted = append(b.deleted, name)
	b.mu.Unlock()
	b.signal <- struct{}{}
	return nil
}

func (b *recordingBridge) wait(t *testing.T) {
	t.Helper()
	select {
	case <-b.signal:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for bridge notification")
	}
}

type fixture struct {
	orch   *Orchestrator
	table  *variant.Table
	bridge *recordingBridge
}

func setup(t *testing.T) *fixture {
	t.Helper()

	table := variant.NewTable()
	if err := table.Register(variant.EchoRegistration()); err != nil {
		t.Fatalf("failed to register echo variant: %v", err)
	}

	reg, err := registry.New(t.TempDir(), table, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to create registry: %v", err)
	}

	q := queue.NewLocal(2, 16, zerolog.Nop())
	t.Cleanup(q.Close)

	bridge := newRecordingBridge()
	orch := New(reg, table, q, bridge, nil, nil, zerolog.Nop())
	return &fixture{orch: orch, table: table, bridge: bridge}
}

func pollTerminal(t *testing.T, o *Orchestrator, name string) Status {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		st := o.Status(name)
		if st.State.Terminal() {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job for %s never reached a terminal state, last %s", name, o.Status(name).State)
	return Status{}
}

func TestCreateInputOutputRoundTrip(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	st, err := f.orch.Create(ctx, "m1", variant.EchoName, nil, model.Params{"title": "demo"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if st.Operation != OpCreate || st.State.Terminal() && st.State != queue.StateSuccess {
		t.Errorf("unexpected dispatch status: %+v", st)
	}
	if st := pollTerminal(t, f.orch, "m1"); st.State != queue.StateSuccess {
		t.Fatalf("create job ended %s: %v", st.State, st)
	}

	if _, err := f.orch.Input(ctx, "m1", model.Rows{{"a": 1.0}}, nil); err != nil {
		t.Fatalf("input failed: %v", err)
	}
	if st := pollTerminal(t, f.orch, "m1"); st.State != queue.StateSuccess {
		t.Fatalf("input job ended %s", st.State)
	}

	out, err := f.orch.Output(ctx, "m1", model.Rows{{"a": 2.0}}, nil)
	if err != nil {
		t.Fatalf("output failed: %v", err)
	}
	if len(out) != 1 || out[0]["a"] != 1.0 {
		t.Errorf("expected output derived from input, got %v", out)
	}
}

func TestCreateUnknownVariant(t *testing.T) {
	f := setup(t)

	_, err := f.orch.Create(context.Background(), "m1", "NoSuch", nil, nil)
	if !model.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
	if st := f.orch.Status("m1"); st.State != StateIdle {
		t.Errorf("expected idle status, got %s", st.State)
	}
}

func TestCreateDuplicateConflicts(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	if _, err := f.orch.Create(ctx, "m1", variant.EchoName, nil, nil); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	pollTerminal(t, f.orch, "m1")

	_, err := f.orch.Create(ctx, "m1", variant.EchoName, nil, nil)
	if !model.IsConflict(err) {
		t.Errorf("expected conflict, got %v", err)
	}
}

func TestStatusIdleAndIdempotent(t *testing.T) {
	f := setup(t)

	first := f.orch.Status("never")
	second := f.orch.Status("never")
	if first.State != StateIdle || second.State != StateIdle {
		t.Errorf("expected idle for undispatched name, got %s then %s", first.State, second.State)
	}
}

func TestOneJobPerName(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	g := &gate{
		Model:   variant.NewEcho(nil),
		release: make(chan struct{}),
		started: make(chan struct{}),
	}
	reg := variant.Registration{
		Name:         "Gated",
		Capabilities: variant.Capabilities{Input: true, Output: true, Update: true},
		New:          func(model.Params) variant.Model { return g },
	}
	if err := f.table.Register(reg); err != nil {
		t.Fatalf("failed to register variant: %v", err)
	}

	if _, err := f.orch.Create(ctx, "m1", "Gated", nil, nil); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	pollTerminal(t, f.orch, "m1")

	if _, err := f.orch.Input(ctx, "m1", model.Rows{{"n": 1.0}}, nil); err != nil {
		t.Fatalf("input failed: %v", err)
	}
	<-g.started

	// A second mutation while the first is in flight is refused.
	if _, err := f.orch.Input(ctx, "m1", model.Rows{{"n": 2.0}}, nil); !model.IsConflict(err) {
		t.Errorf("expected conflict while processing, got %v", err)
	}
	if _, err := f.orch.Update(ctx, "m1", model.Rows{{"n": 2.0}}, nil); !model.IsConflict(err) {
		t.Errorf("expected conflict while processing, got %v", err)
	}

	// Other names are unaffected.
	if _, err := f.orch.Create(ctx, "m2", variant.EchoName, nil, nil); err != nil {
		t.Errorf("expected independent name to dispatch, got %v", err)
	}

	close(g.release)
	if st := pollTerminal(t, f.orch, "m1"); st.State != queue.StateSuccess {
		t.Fatalf("gated input ended %s", st.State)
	}

	// Once terminal, the record is replaceable.
	if _, err := f.orch.Input(ctx, "m1", model.Rows{{"n": 3.0}}, nil); err != nil {
		t.Errorf("expected dispatch after completion, got %v", err)
	}
}

func TestConcurrentDispatchSingleWinner(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	g := &gate{
		Model:   variant.NewEcho(nil),
		release: make(chan struct{}),
		started: make(chan struct{}),
	}
	reg := variant.Registration{
		Name:         "Gated",
		Capabilities: variant.Capabilities{Input: true, Output: true, Update: true},
		New:          func(model.Params) variant.Model { return g },
	}
	if err := f.table.Register(reg); err != nil {
		t.Fatalf("failed to register variant: %v", err)
	}

	if _, err := f.orch.Create(ctx, "m1", "Gated", nil, nil); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	pollTerminal(t, f.orch, "m1")

	// Racing dispatches for one name must admit exactly one job.
	const racers = 16
	errs := make(chan error, racers)
	var wg sync.WaitGroup
	wg.Add(racers)
	for i := 0; i < racers; i++ {
		go func() {
			defer wg.Done()
			_, err := f.orch.Input(ctx, "m1", model.Rows{{"n": 1.0}}, nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	accepted, conflicts := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			accepted++
		case model.IsConflict(err):
			conflicts++
		default:
			t.Fatalf("unexpected dispatch error: %v", err)
		}
	}
	if accepted != 1 {
		t.Errorf("expected exactly 1 accepted dispatch, got %d", accepted)
	}
	if conflicts != racers-1 {
		t.Errorf("expected %d conflicts, got %d", racers-1, conflicts)
	}

	close(g.release)
	if st := pollTerminal(t, f.orch, "m1"); st.State != queue.StateSuccess {
		t.Fatalf("surviving job ended %s", st.State)
	}
}

func TestCancelRunningJob(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	g := &gate{
		Model:   variant.NewEcho(nil),
		release: make(chan struct{}),
		started: make(chan struct{}),
	}
	reg := variant.Registration{
		Name:         "Gated",
		Capabilities: variant.Capabilities{Input: true, Output: true, Update: true},
		New:          func(model.Params) variant.Model { return g },
	}
	if err := f.table.Register(reg); err != nil {
		t.Fatalf("failed to register variant: %v", err)
	}

	if _, err := f.orch.Create(ctx, "m1", "Gated", nil, nil); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	pollTerminal(t, f.orch, "m1")

	if _, err := f.orch.Input(ctx, "m1", model.Rows{{"n": 1.0}}, nil); err != nil {
		t.Fatalf("input failed: %v", err)
	}
	<-g.started

	st, err := f.orch.Cancel("m1")
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if st.State != queue.StateRevoked {
		t.Errorf("expected revoked snapshot, got %s", st.State)
	}

	// Cancelling a terminal job is refused.
	close(g.release)
	pollTerminal(t, f.orch, "m1")
	if _, err := f.orch.Cancel("m1"); !model.IsConflict(err) {
		t.Errorf("expected conflict for finished job, got %v", err)
	}
}

func TestCancelWithoutJob(t *testing.T) {
	f := setup(t)

	if _, err := f.orch.Cancel("never"); !model.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	if _, err := f.orch.Create(ctx, "m1", variant.EchoName, nil, nil); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	pollTerminal(t, f.orch, "m1")
	f.bridge.wait(t)

	if err := f.orch.Delete(ctx, "m1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	f.bridge.wait(t)

	if st := f.orch.Status("m1"); st.State != StateIdle {
		t.Errorf("expected idle after delete, got %s", st.State)
	}
	if err := f.orch.Delete(ctx, "m1"); !model.IsNotFound(err) {
		t.Errorf("expected not found deleting twice, got %v", err)
	}

	f.bridge.mu.Lock()
	defer f.bridge.mu.Unlock()
	if len(f.bridge.created) != 1 || f.bridge.created[0] != "m1" {
		t.Errorf("expected created notification, got %v", f.bridge.created)
	}
	if len(f.bridge.deleted) != 1 || f.bridge.deleted[0] != "m1" {
		t.Errorf("expected deleted notification, got %v", f.bridge.deleted)
	}
}

func TestCapabilityEnforcement(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	reg := variant.Registration{
		Name:         "ReadOnly",
		Capabilities: variant.Capabilities{Output: true},
		New:          func(settings model.Params) variant.Model { return variant.NewEcho(settings) },
	}
	if err := f.table.Register(reg); err != nil {
		t.Fatalf("failed to register variant: %v", err)
	}

	if _, err := f.orch.Create(ctx, "ro", "ReadOnly", nil, nil); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	pollTerminal(t, f.orch, "ro")

	if _, err := f.orch.Input(ctx, "ro", nil, nil); !model.IsForbidden(err) {
		t.Errorf("expected forbidden input, got %v", err)
	}
	if _, err := f.orch.Update(ctx, "ro", nil, nil); !model.IsForbidden(err) {
		t.Errorf("expected forbidden update, got %v", err)
	}
	if _, err := f.orch.Output(ctx, "ro", nil, nil); err != nil {
		t.Errorf("expected output to pass, got %v", err)
	}
}

func TestInputTouchesCatalog(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	if _, err := f.orch.Create(ctx, "m1", variant.EchoName, nil, nil); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	pollTerminal(t, f.orch, "m1")
	f.bridge.wait(t)

	if _, err := f.orch.Input(ctx, "m1", model.Rows{{"a": 1.0}}, nil); err != nil {
		t.Fatalf("input failed: %v", err)
	}
	pollTerminal(t, f.orch, "m1")
	f.bridge.wait(t)

	f.bridge.mu.Lock()
	defer f.bridge.mu.Unlock()
	if len(f.bridge.touched) != 1 || f.bridge.touched[0] != "m1" {
		t.Errorf("expected touch notification, got %v", f.bridge.touched)
	}
}

func TestTracedOperations(t *testing.T) {
	table := variant.NewTable()
	if err := table.Register(variant.EchoRegistration()); err != nil {
		t.Fatalf("failed to register echo variant: %v", err)
	}
	reg, err := registry.New(t.TempDir(), table, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to create registry: %v", err)
	}
	q := queue.NewLocal(2, 16, zerolog.Nop())
	t.Cleanup(q.Close)

	tracer, err := telemetry.NewTracer(telemetry.TracingConfig{Enabled: false}, "modeld-test", "dev", "test")
	if err != nil {
		t.Fatalf("failed to create tracer: %v", err)
	}

	orch := New(reg, table, q, nil, nil, tracer, zerolog.Nop())
	ctx := context.Background()

	if _, err := orch.Create(ctx, "m1", variant.EchoName, nil, nil); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if st := pollTerminal(t, orch, "m1"); st.State != queue.StateSuccess {
		t.Fatalf("create job ended %s", st.State)
	}
	if _, err := orch.Input(ctx, "m1", model.Rows{{"a": 1.0}}, nil); err != nil {
		t.Fatalf("input failed: %v", err)
	}
	if st := pollTerminal(t, orch, "m1"); st.State != queue.StateSuccess {
		t.Fatalf("input job ended %s", st.State)
	}
	out, err := orch.Output(ctx, "m1", nil, nil)
	if err != nil {
		t.Fatalf("output failed: %v", err)
	}
	if len(out) != 1 {
		t.Errorf("expected 1 row, got %d", len(out))
	}
}

// brokenInput fails every input to exercise worker-side failures.
type brokenInput struct {
	variant.Model
}

func (b *brokenInput) Input(model.Rows, model.Params) error {
	return model.NewJobFailure("training blew up", nil)
}

func TestFailedJobReportsFailure(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	reg := variant.Registration{
		Name:         "Broken",
		Capabilities: variant.Capabilities{Input: true, Output: true},
		New: func(settings model.Params) variant.Model {
			return &brokenInput{Model: variant.NewEcho(settings)}
		},
	}
	if err := f.table.Register(reg); err != nil {
		t.Fatalf("failed to register variant: %v", err)
	}

	if _, err := f.orch.Create(ctx, "m1", "Broken", nil, nil); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	pollTerminal(t, f.orch, "m1")

	if _, err := f.orch.Input(ctx, "m1", model.Rows{{"a": 1.0}}, nil); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	st := pollTerminal(t, f.orch, "m1")
	if st.State != queue.StateFailure {
		t.Errorf("expected failure, got %s", st.State)
	}

	// The failure stays queryable and does not block the next dispatch.
	if _, err := f.orch.Input(ctx, "m1", model.Rows{{"a": 1.0}}, nil); err != nil {
		t.Errorf("expected dispatch after failure, got %v", err)
	}
	pollTerminal(t, f.orch, "m1")
}
