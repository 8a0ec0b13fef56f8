package variant

import (
	"sort"
	"sync"

	"github.com/modeld/modeld/pkg/model"
)

// Table maps variant names to registrations. It is populated at startup
// and treated as immutable afterward; Register rejects duplicates rather
// than replacing them.
type Table struct {
	mu      sync.RWMutex
	entries map[string]Registration
}

// NewTable creates an empty variant table.
func NewTable() *Table {
	return &Table{
		entries: make(map[string]Registration),
	}
}

// Register adds a variant registration to the table. It fails with a
// conflict if the name is already registered or the registration has no
// factory.
func (t *Table) Register(reg Registration) error {
	if reg.Name == "" {
		return model.NewConflict("variant name is required")
	}
	if reg.New == nil {
		return model.NewConflict("variant factory is required").WithResource(reg.Name)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.entries[reg.Name]; exists {
		return model.NewConflict("variant already registered").WithResource(reg.Name)
	}
	t.entries[reg.Name] = reg
	return nil
}

// Lookup returns the registration for name. It fails with not found if
// the name is unregistered.
func (t *Table) Lookup(name string) (Registration, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	reg, exists := t.entries[name]
	if !exists {
		return Registration{}, model.NewNotFound("variant not found").WithResource(name)
	}
	return reg, nil
}

// Has reports whether name is registered.
func (t *Table) Has(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, exists := t.entries[name]
	return exists
}

// Names returns the registered variant names, sorted.
func (t *Table) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	names := make([]string, 0, len(t.entries))
	for name := range t.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
