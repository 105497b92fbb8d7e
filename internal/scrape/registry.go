package scrape

import "github.com/rotisserie/eris"

// Registry maps source names to their factories in registration order.
type Registry struct {
	factories map[string]Factory
	order     []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a source factory under its name.
func (r *Registry) Register(name string, f Factory) {
	if _, ok := r.factories[name]; !ok {
		r.order = append(r.order, name)
	}
	r.factories[name] = f
}

// Get returns the factory for a source name.
func (r *Registry) Get(name string) (Factory, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, eris.Errorf("scrape: unknown source %q", name)
	}
	return f, nil
}

// Names returns all registered source names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// DefaultRegistry returns the registry with every built-in source.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("pagesjaunes", NewPagesJaunes)
	r.Register("pple", NewPple)
	r.Register("datagouv", NewDataGouv)
	r.Register("infogreffe", NewInfogreffe)
	return r
}
