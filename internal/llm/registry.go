package llm

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Loader opens a model file for one backend.
type Loader func(path string, opts ModelOptions) (Model, error)

// Registry maps backend keys to loaders.
type Registry struct {
	mu      sync.RWMutex
	loaders map[string]Loader
}

var (
	// ErrUnknownBackend is returned by Open for unregistered backends.
	ErrUnknownBackend = errors.New("llm: unknown backend")
	// ErrBackendUnavailable marks a backend compiled out of this binary.
	ErrBackendUnavailable = errors.New("llm: backend not available in this build")
)

// DefaultRegistry holds the loaders registered by provider packages.
var DefaultRegistry = &Registry{}

// Register adds a loader to the default registry.
func Register(name string, l Loader) { DefaultRegistry.Register(name, l) }

// Open loads path through the named backend of the default registry.
func Open(backend, path string, opts ModelOptions) (Model, error) {
	return DefaultRegistry.Open(backend, path, opts)
}

func (r *Registry) Register(name string, l Loader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaders == nil {
		r.loaders = make(map[string]Loader)
	}
	r.loaders[name] = l
}

func (r *Registry) Open(backend, path string, opts ModelOptions) (Model, error) {
	r.mu.RLock()
	l, ok := r.loaders[backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
	return l(path, opts)
}

// Backends lists registered backend keys in sorted order.
func (r *Registry) Backends() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.loaders))
	for k := range r.loaders {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
