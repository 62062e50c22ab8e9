package adapter

import (
	"context"
	"fmt"
)

// Factory opens an adapter.
type Factory func(ctx context.Context) (Adapter, error)

// Registry is an ordered, static set of named adapter factories. It is
// built once at startup and is not safe for concurrent registration.
type Registry struct {
	names     []string
	factories map[string]Factory
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds f under name. Names must be unique and non-empty.
func (r *Registry) Register(name string, f Factory) error {
	if name == "" || f == nil {
		return fmt.Errorf("register adapter %q: name and factory are required", name)
	}
	if _, dup := r.factories[name]; dup {
		return fmt.Errorf("register adapter %q: already registered", name)
	}
	r.names = append(r.names, name)
	r.factories[name] = f
	return nil
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Len returns the number of registered adapters.
func (r *Registry) Len() int { return len(r.names) }

// Open opens the adapter registered as name, or the first registered one
// when name is empty.
func (r *Registry) Open(ctx context.Context, name string) (Adapter, error) {
	const op = "open"

	if name == "" {
		if len(r.names) == 0 {
			return nil, NotConfigured(op)
		}
		name = r.names[0]
	}

	f, ok := r.factories[name]
	if !ok {
		return nil, &Error{Kind: KindConfiguration, Op: op, Message: fmt.Sprintf("unknown adapter %q", name)}
	}

	a, err := f(ctx)
	if err != nil {
		return nil, &Error{Kind: KindConfiguration, Op: op, Message: fmt.Sprintf("adapter %q", name), Err: err}
	}
	return a, nil
}
