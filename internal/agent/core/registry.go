package core

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds interchangeable stage implementations keyed by the names
// used in configuration.
type Registry[T any] struct {
	kind  string
	mu    sync.RWMutex
	items map[string]T
}

// NewRegistry creates an empty registry; kind is used in error messages.
func NewRegistry[T any](kind string) *Registry[T] {
	return &Registry[T]{kind: kind, items: make(map[string]T)}
}

// Register adds an implementation. Registering the same name twice is a programming error.
func (r *Registry[T]) Register(name string, impl T) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if name == "" {
		return fmt.Errorf("%s registry: empty name", r.kind)
	}
	if _, dup := r.items[name]; dup {
		return fmt.Errorf("%s registry: %q already registered", r.kind, name)
	}
	r.items[name] = impl
	return nil
}

// MustRegister is Register for wiring code.
func (r *Registry[T]) MustRegister(name string, impl T) {
	if err := r.Register(name, impl); err != nil {
		panic(err)
	}
}

// Resolve returns the implementation configured under name.
func (r *Registry[T]) Resolve(name string) (T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	impl, ok := r.items[name]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s registry: unknown implementation %q (have %v)", r.kind, name, r.namesLocked())
	}
	return impl, nil
}

// Names lists registered names in sorted order.
func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry[T]) namesLocked() []string {
	out := make([]string, 0, len(r.items))
	for n := range r.items {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
