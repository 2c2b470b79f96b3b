package worker

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a worker for a type tag.
type Factory func(workerType string) (Worker, error)

// Registry maps worker types to factories. Unknown types fall back to the
// generic factory.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register installs f for workerType, replacing any previous factory.
func (r *Registry) Register(workerType string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[workerType] = f
}

// Types returns the registered types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Has reports whether a factory is registered for workerType.
func (r *Registry) Has(workerType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[workerType]
	return ok
}

// New builds a worker for workerType.
func (r *Registry) New(workerType string) (Worker, error) {
	if workerType == "" {
		workerType = GenericType
	}

	r.mu.RLock()
	f, ok := r.factories[workerType]
	if !ok {
		f, ok = r.factories[GenericType]
	}
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("no worker registered for type %q and no %s fallback", workerType, GenericType)
	}
	return f(workerType)
}
