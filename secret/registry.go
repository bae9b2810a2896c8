package secret

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ProviderFactory creates a Provider from configuration.
type ProviderFactory func(cfg map[string]any) (Provider, error)

// Registry manages provider factories.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]ProviderFactory
}

// NewRegistry creates a registry with the env and file providers.
func NewRegistry() *Registry {
	r := &Registry{providers: make(map[string]ProviderFactory)}
	r.providers["env"] = func(map[string]any) (Provider, error) { return EnvProvider{}, nil }
	r.providers["file"] = newFileProvider
	return r
}

func newFileProvider(cfg map[string]any) (Provider, error) {
	var p FileProvider
	if raw, ok := cfg["dir"]; ok {
		dir, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("secret: file provider dir must be a string, got %T", raw)
		}
		p.Dir = dir
	}
	return p, nil
}

// Register adds a provider factory.
func (r *Registry) Register(name string, factory ProviderFactory) error {
	if strings.TrimSpace(name) == "" || factory == nil {
		return errors.New("secret: invalid provider registration")
	}
	name = strings.TrimSpace(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("secret: provider %q already registered", name)
	}
	r.providers[name] = factory
	return nil
}

// Create instantiates a provider by name.
func (r *Registry) Create(name string, cfg map[string]any) (Provider, error) {
	name = strings.TrimSpace(name)

	r.mu.RLock()
	factory, ok := r.providers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}

	return factory(cfg)
}

// NewResolver creates a strict resolver with one provider per configs
// entry, or with every registered provider when configs is nil.
func (r *Registry) NewResolver(configs map[string]map[string]any) (*Resolver, error) {
	names := r.List()
	if configs != nil {
		names = names[:0]
		for name := range configs {
			names = append(names, name)
		}
		sort.Strings(names)
	}

	res := NewResolver(true)
	for _, name := range names {
		p, err := r.Create(name, configs[name])
		if err != nil {
			return nil, err
		}
		res.Register(p)
	}
	return res, nil
}

// List returns registered provider names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global registry for secret providers.
var DefaultRegistry = NewRegistry()
