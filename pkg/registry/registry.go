package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/arbor/pkg/ports"
)

// ErrUnknownGenerator is returned by New for a name nobody registered.
var ErrUnknownGenerator = errors.New("unknown generator")

// Factory builds a generator. It is called once per New.
type Factory func() (ports.Generator, error)

// Registry maps generator names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory to the registry.
// If a factory with the same name exists, it is overwritten.
func (r *Registry) Register(name string, fn Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = fn
}

// New looks a factory up by name and builds the generator.
func (r *Registry) New(name string) (ports.Generator, error) {
	r.mu.RLock()
	fn, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGenerator, name)
	}
	return fn()
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
