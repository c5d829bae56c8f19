package registry

import (
	"fmt"
	"sort"
	"sync"

	"thoth/internal/adapter"
	thotherrors "thoth/internal/errors"
)

// Registry catalogs adapters by name and by capability. All mutation and
// lookup hold the mutex only for the critical section, so lookups never wait
// on anything beyond map access.
type Registry struct {
	mu           sync.RWMutex
	adapters     map[string]adapter.Executor
	byCapability map[string][]string // capability -> adapter names, registration order
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		adapters:     make(map[string]adapter.Executor),
		byCapability: make(map[string][]string),
	}
}

// Register adds an adapter under its name. Duplicate registration is fatal:
// silently shadowing an adapter would reroute live traffic.
func (r *Registry) Register(a adapter.Executor) error {
	if a == nil {
		return fmt.Errorf("registry: adapter is required")
	}
	name := a.Name()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[name]; exists {
		return fmt.Errorf("registry: adapter already registered: %s", name)
	}
	r.adapters[name] = a
	for _, capability := range a.Capabilities() {
		r.byCapability[capability] = append(r.byCapability[capability], name)
	}
	return nil
}

// Unregister removes an adapter and its capability index entries. Removing an
// unknown name is a no-op.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.adapters[name]
	if !ok {
		return
	}
	delete(r.adapters, name)
	for _, capability := range a.Capabilities() {
		names := r.byCapability[capability]
		filtered := names[:0]
		for _, n := range names {
			if n != name {
				filtered = append(filtered, n)
			}
		}
		if len(filtered) == 0 {
			delete(r.byCapability, capability)
		} else {
			r.byCapability[capability] = filtered
		}
	}
}

// Get resolves an adapter by name.
func (r *Registry) Get(name string) (adapter.Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.adapters[name]; ok {
		return a, nil
	}
	return nil, &thotherrors.AgentNotFoundError{Name: name}
}

// FindByCapability returns the names of adapters supporting a task type, in
// registration order. Repeated calls on unchanged state return the same
// list.
func (r *Registry) FindByCapability(taskType string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := r.byCapability[taskType]
	out := make([]string, len(names))
	copy(out, names)
	return out
}

// Capabilities lists every registered task type, sorted, for diagnostics and
// NoAgentForTask messages.
func (r *Registry) Capabilities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	caps := make([]string, 0, len(r.byCapability))
	for capability := range r.byCapability {
		caps = append(caps, capability)
	}
	sort.Strings(caps)
	return caps
}

// Names lists registered adapter names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
