package config

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/zoobzio/chainz"
)

var (
	// ErrUnknownType is returned when a definition names an unregistered type.
	ErrUnknownType = errors.New("unknown operation type")
	// ErrDuplicateType is returned when a type is registered twice.
	ErrDuplicateType = errors.New("operation type already registered")
)

// Factory creates an operation from its reference.
type Factory func(OperationRef) (chainz.Operation, error)

// Registry maps operation types to factories. It is safe for concurrent use.
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

// NewRegistry creates an empty registry. ScopeType is always available and
// cannot be registered.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory.
func (r *Registry) Register(typ string, factory Factory) error {
	if typ == "" || factory == nil {
		return fmt.Errorf("register %q: type and factory are required", typ)
	}
	if typ == ScopeType {
		return fmt.Errorf("%w: %q", ErrDuplicateType, typ)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[typ]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateType, typ)
	}
	r.factories[typ] = factory
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(typ string, factory Factory) *Registry {
	if err := r.Register(typ, factory); err != nil {
		panic(err)
	}
	return r
}

// Get returns the factory for typ.
func (r *Registry) Get(typ string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[typ]
	return f, ok
}

// Names returns the registered types, sorted, including ScopeType.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.factories)+1)
	for name := range r.factories {
		names = append(names, name)
	}
	r.mu.RUnlock()
	names = append(names, ScopeType)
	sort.Strings(names)
	return names
}
