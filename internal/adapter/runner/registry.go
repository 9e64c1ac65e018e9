package runner

import (
	"log/slog"
	"sync"

	"agentmux/internal/domain"
	"agentmux/internal/infra/config"
)

// Registry holds named runner providers in registration order.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]domain.Provider
	order     []string
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]domain.Provider),
	}
}

// Register adds a provider. Returns a Config error if the name is taken.
func (r *Registry) Register(provider domain.Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := provider.Name()
	if _, exists := r.providers[name]; exists {
		return domain.ConfigError("registry", "provider already registered: "+name)
	}
	r.providers[name] = provider
	r.order = append(r.order, name)
	return nil
}

// Get retrieves a provider by name.
func (r *Registry) Get(name string) (domain.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, domain.ConfigError("registry", "unknown provider: "+name)
	}
	return p, nil
}

// List returns all registered providers in registration order.
func (r *Registry) List() []domain.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Provider, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.providers[name])
	}
	return out
}

// Names returns registered provider names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Build constructs a registry from runner configs. Each runner is wrapped in
// a circuit breaker. Unknown runner types fail fast with a Config error.
func Build(cfgs []config.RunnerConfig, logger *slog.Logger) (*Registry, error) {
	reg := NewRegistry()
	for _, rc := range cfgs {
		t, err := ParseType(rc.Type)
		if err != nil {
			return nil, err
		}
		var p domain.Provider
		switch t {
		case TypeClaudeCode:
			p = NewClaudeCode(rc, logger)
		case TypeCopilot:
			p = NewCopilot(rc, logger)
		case TypeCursorAgent:
			p = NewCursorAgent(rc, logger)
		case TypeOpenCode:
			p = NewOpenCode(rc, logger)
		}
		if err := reg.Register(WithCircuitBreaker(p, logger)); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
