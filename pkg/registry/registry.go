package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/modeld/modeld/pkg/model"
	"github.com/modeld/modeld/pkg/variant"
)

const (
	baseSuffix  = "_base.json"
	stateSuffix = ".state.json"
)

// manifest is the base snapshot written once when an instance is
// created. It carries everything a peer process needs to reconstruct
// the handle through the variant table.
type manifest struct {
	Name      string       `json:"name"`
	Variant   string       `json:"variant"`
	Settings  model.Params `json:"settings,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// Instance is a named, persisted model handle tracked by the registry.
type Instance struct {
	// mu serializes variant operations and state loads on this handle.
	mu sync.Mutex

	name     string
	variant  string
	caps     variant.Capabilities
	settings model.Params
	impl     variant.Model

	// lastLoaded is the time of the last successful state load; zero
	// means the state has never been loaded into this process.
	lastLoaded time.Time
}

// Name returns the unique instance name.
func (i *Instance) Name() string { return i.name }

// Variant returns the name of the variant that produced the instance.
func (i *Instance) Variant() string { return i.variant }

// Capabilities returns the variant capability flags.
func (i *Instance) Capabilities() variant.Capabilities { return i.caps }

// Settings returns a copy of the creation settings.
func (i *Instance) Settings() model.Params { return i.settings.Clone() }

// Registry owns instance handles and their on-disk persistence.
type Registry struct {
	mu        sync.RWMutex
	root      string
	table     *variant.Table
	instances map[string]*Instance
	log       zerolog.Logger
}

// New creates a registry rooted at root, creating the folder if needed,
// and reconciles any instances already present on disk.
func New(root string, table *variant.Table, log zerolog.Logger) (*Registry, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, model.NewIOFailure("failed to create storage root", err)
	}

	r := &Registry{
		root:      root,
		table:     table,
		instances: make(map[string]*Instance),
		log:       log.With().Str("component", "registry").Logger(),
	}

	if err := r.Reconcile(); err != nil {
		return nil, err
	}
	return r, nil
}

// Root returns the storage root folder.
func (r *Registry) Root() string { return r.root }

// folder returns the dedicated subfolder for name.
func (r *Registry) folder(name string) string {
	return filepath.Join(r.root, name)
}

// baseFile returns the path of the base manifest for name.
func (r *Registry) baseFile(name string) string {
	return filepath.Join(r.folder(name), name+baseSuffix)
}

// stateFile returns the path of the current-state file for name.
func (r *Registry) stateFile(name string) string {
	return filepath.Join(r.folder(name), name+stateSuffix)
}

// Create constructs a new instance of variantName, persists its base
// manifest and initial state, and registers the in-memory handle. It
// fails with not found for an unregistered variant and conflict for a
// name that already has an instance.
func (r *Registry) Create(name, variantName string, settings model.Params) error {
	reg, err := r.table.Lookup(variantName)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.instances[name]; exists {
		return model.NewConflict("model instance already exists").WithResource(name).WithOp("create")
	}

	folder := r.folder(name)
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return model.NewIOFailure("failed to create instance folder", err).WithResource(name)
	}

	impl := reg.New(settings)

	man := manifest{
		Name:      name,
		Variant:   variantName,
		Settings:  settings,
		CreatedAt: time.Now().UTC(),
	}
	raw, err := json.MarshalIndent(man, "", "  ")
	if err != nil {
		return model.NewIOFailure("failed to encode manifest", err).WithResource(name)
	}
	if err := os.WriteFile(r.baseFile(name), raw, 0o644); err != nil {
		return model.NewIOFailure("failed to write manifest", err).WithResource(name)
	}

	if err := impl.Save(r.stateFile(name)); err != nil {
		// Leave no half-created folder behind.
		_ = os.RemoveAll(folder)
		return model.NewIOFailure("failed to write initial state", err).WithResource(name)
	}

	r.instances[name] = &Instance{
		name:       name,
		variant:    variantName,
		caps:       reg.Capabilities,
		settings:   settings.Clone(),
		impl:       impl,
		lastLoaded: time.Now(),
	}

	r.log.Info().Str("name", name).Str("variant", variantName).Msg("model instance created")
	return nil
}

// Get returns the handle for name, failing with not found if absent.
func (r *Registry) Get(name string) (*Instance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inst, exists := r.instances[name]
	if !exists {
		return nil, model.NewNotFound("model instance not found").WithResource(name)
	}
	return inst, nil
}

// Has reports whether name has a tracked instance. It satisfies the
// lifecycle guard's instance view.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.instances[name]
	return exists
}

// Capabilities returns the capability flags for name, satisfying the
// lifecycle guard's instance view.
func (r *Registry) Capabilities(name string) (variant.Capabilities, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inst, exists := r.instances[name]
	if !exists {
		return variant.Capabilities{}, false
	}
	return inst.caps, true
}

// Names returns the tracked instance names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.instances))
	for name := range r.instances {
		names = append(names, name)
	}
	return names
}

// Input feeds data into the instance's variant and persists the mutated
// state.
func (r *Registry) Input(name string, data model.Rows, params model.Params) error {
	inst, err := r.Get(name)
	if err != nil {
		return err
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()

	if err := r.maybeReload(inst); err != nil {
		return err
	}
	if err := inst.impl.Input(data, params); err != nil {
		return err
	}
	return r.saveLocked(inst)
}

// Update folds new data into the instance's variant and persists the
// mutated state.
func (r *Registry) Update(name string, data model.Rows, params model.Params) error {
	inst, err := r.Get(name)
	if err != nil {
		return err
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()

	if err := r.maybeReload(inst); err != nil {
		return err
	}
	if err := inst.impl.Update(data, params); err != nil {
		return err
	}
	return r.saveLocked(inst)
}

// Output runs the variant's read-only output operation, reloading from
// disk first if the state file is newer than the last load. Nothing is
// persisted.
func (r *Registry) Output(name string, data model.Rows, params model.Params) (model.Rows, error) {
	inst, err := r.Get(name)
	if err != nil {
		return nil, err
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()

	if err := r.maybeReload(inst); err != nil {
		return nil, err
	}
	return inst.impl.Output(data, params)
}

// Delete runs the variant delete hook, removes the instance folder, and
// drops the in-memory entry. If the hook fails the folder and entry are
// left untouched.
func (r *Registry) Delete(name string, params model.Params) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, exists := r.instances[name]
	if !exists {
		return model.NewNotFound("model instance not found").WithResource(name).WithOp("delete")
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()

	if err := inst.impl.Delete(r.stateFile(name)); err != nil {
		return model.NewIOFailure("variant delete hook failed", err).WithResource(name)
	}
	if err := os.RemoveAll(r.folder(name)); err != nil {
		return model.NewIOFailure("failed to remove instance folder", err).WithResource(name)
	}
	delete(r.instances, name)

	r.log.Info().Str("name", name).Msg("model instance deleted")
	return nil
}

// Reconcile rescans the storage root and adopts any on-disk instance
// not already tracked, so peer processes sharing the root discover each
// other's instances. Folders with unreadable manifests or unregistered
// variants are skipped with a warning.
func (r *Registry) Reconcile() error {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return model.NewIOFailure("failed to scan storage root", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if _, tracked := r.instances[name]; tracked {
			continue
		}

		raw, err := os.ReadFile(r.baseFile(name))
		if err != nil {
			r.log.Warn().Str("name", name).Err(err).Msg("skipping folder without readable manifest")
			continue
		}
		var man manifest
		if err := json.Unmarshal(raw, &man); err != nil {
			r.log.Warn().Str("name", name).Err(err).Msg("skipping folder with invalid manifest")
			continue
		}
		reg, err := r.table.Lookup(man.Variant)
		if err != nil {
			r.log.Warn().Str("name", name).Str("variant", man.Variant).Msg("skipping instance with unregistered variant")
			continue
		}

		// lastLoaded stays zero so the first use loads the state file.
		r.instances[name] = &Instance{
			name:     name,
			variant:  man.Variant,
			caps:     reg.Capabilities,
			settings: man.Settings,
			impl:     reg.New(man.Settings),
		}
		r.log.Info().Str("name", name).Str("variant", man.Variant).Msg("adopted on-disk instance")
	}

	return nil
}

// saveLocked persists the instance state and advances lastLoaded. The
// instance mutex must be held.
func (r *Registry) saveLocked(inst *Instance) error {
	if err := inst.impl.Save(r.stateFile(inst.name)); err != nil {
		return model.NewIOFailure("failed to save state", err).WithResource(inst.name)
	}
	inst.lastLoaded = time.Now()
	return nil
}

// maybeReload loads the state file when it has never been loaded in
// this process or its modification time is after the last load. The
// instance mutex must be held. Timestamps are compared as-is; on
// filesystems with coarse mtime resolution a near-simultaneous external
// rewrite can go unnoticed until the clock ticks over.
func (r *Registry) maybeReload(inst *Instance) error {
	path := r.stateFile(inst.name)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Nothing persisted yet; the in-memory handle is current.
			return nil
		}
		return model.NewIOFailure("failed to stat state file", err).WithResource(inst.name)
	}

	if !inst.lastLoaded.IsZero() && !info.ModTime().After(inst.lastLoaded) {
		return nil
	}

	if err := inst.impl.Load(path); err != nil {
		return model.NewIOFailure("failed to load state", err).WithResource(inst.name)
	}
	inst.lastLoaded = time.Now()
	r.log.Debug().Str("name", inst.name).Msg("reloaded state from disk")
	return nil
}
