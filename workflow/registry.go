package workflow

import (
	"sort"
	"sync"
)

// MachineFactory builds a StateMachine for one workflow type. Passing nil
// starts a fresh machine at the workflow's declared initial state; passing a
// persisted State reconstructs a machine positioned there.
type MachineFactory func(state *State) *StateMachine

// Definition pairs a workflow type's state machine factory with the
// classifier that turns inbound text into its events. Name is the request
// type key used for registry lookups. Enabled is the only field a registry
// mutates after registration.
type Definition struct {
	Name       string
	NewMachine MachineFactory
	Classifier Classifier
	Enabled    bool
}

// Registry is the catalogue of workflow definitions, keyed by request type
// name. It is safe for concurrent use: drivers look definitions up while the
// administrative surface registers, enables, and disables them. It holds no
// workflow behavior of its own.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

// NewRegistry creates an empty registry. Registries are plain values meant to
// be injected; tests get isolated instances by constructing their own.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register adds a definition, overwriting any existing entry with the same
// name.
func (r *Registry) Register(def Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[def.Name] = def
}

// Unregister removes a definition by name. It returns false when the name is
// not registered.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.defs[name]; !ok {
		return false
	}
	delete(r.defs, name)
	return true
}

// Get returns the definition registered under name.
func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	return def, ok
}

// ListAll returns every registered definition, sorted by name.
func (r *Registry) ListAll() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListEnabled returns the enabled definitions, sorted by name.
func (r *Registry) ListEnabled() []Definition {
	all := r.ListAll()
	out := all[:0]
	for _, def := range all {
		if def.Enabled {
			out = append(out, def)
		}
	}
	return out
}

// Enable marks the named workflow enabled. It returns false when the name is
// not registered.
func (r *Registry) Enable(name string) bool {
	return r.setEnabled(name, true)
}

// Disable marks the named workflow disabled. It returns false when the name
// is not registered.
func (r *Registry) Disable(name string) bool {
	return r.setEnabled(name, false)
}

func (r *Registry) setEnabled(name string, enabled bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	def, ok := r.defs[name]
	if !ok {
		return false
	}
	def.Enabled = enabled
	r.defs[name] = def
	return true
}

// Clear removes every definition. Useful for tests.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs = make(map[string]Definition)
}
