package processor

import (
	"fmt"
	"sort"
	"sync"
)

// Constructor builds a processor instance with the given name.
type Constructor func(name string) Processor

// Factory produces processors by type name.
type Factory interface {
	CanProduce(typeName string) bool
	Produce(typeName, name string) (Processor, error)
}

// Registry is a Factory backed by registered constructors.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// Register adds a constructor for typeName.
func (r *Registry) Register(typeName string, ctor Constructor) error {
	if typeName == "" {
		return fmt.Errorf("processor type name is empty")
	}
	if ctor == nil {
		return fmt.Errorf("processor type %q: nil constructor", typeName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ctors[typeName]; exists {
		return fmt.Errorf("processor type %q already registered", typeName)
	}
	r.ctors[typeName] = ctor
	return nil
}

func (r *Registry) CanProduce(typeName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ctors[typeName]
	return ok
}

func (r *Registry) Produce(typeName, name string) (Processor, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[typeName]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typeName)
	}
	p := ctor(name)
	if p == nil {
		return nil, fmt.Errorf("processor type %q: constructor returned nil", typeName)
	}
	return p, nil
}

// Types returns registered type names, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.ctors))
	for name := range r.ctors {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
