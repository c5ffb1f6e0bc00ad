package strategy

import (
	"sort"
	"sync"

	"github.com/rxtech-lab/argo-futures/pkg/errors"
)

// Factory builds a fresh strategy instance from config params.
type Factory func(params Params) (Strategy, error)

// Registration describes a named strategy.
type Registration struct {
	Name        string
	Description string
	Factory     Factory
	// Config is a zero value of the params struct, used for the JSON schema.
	Config any
}

// Registry maps names to strategy factories.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: map[string]Registration{}}
}

// DefaultRegistry returns a registry holding the built-in strategies.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	for _, reg := range []Registration{
		{
			Name:        DualThrustName,
			Description: "Dual Thrust breakout on the previous N bars",
			Factory:     NewDualThrust,
			Config:      DualThrustConfig{},
		},
		{
			Name:        PriceLoggerName,
			Description: "Logs price and bar changes, never trades",
			Factory:     NewPriceLogger,
			Config:      PriceLoggerConfig{},
		},
		{
			Name:        MACrossName,
			Description: "Moving average crossover on closed bars",
			Factory:     NewMACross,
			Config:      MACrossConfig{},
		},
	} {
		// names above are distinct
		_ = r.Register(reg)
	}

	return r
}

// Register adds a strategy. Registering a name twice is an error.
func (r *Registry) Register(reg Registration) error {
	if reg.Name == "" || reg.Factory == nil {
		return errors.New(errors.ErrCodeInvalidParameter, "strategy registration needs a name and a factory")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[reg.Name]; exists {
		return errors.Newf(errors.ErrCodeStrategyAlreadyExists, "strategy %s already registered", reg.Name)
	}

	r.entries[reg.Name] = reg

	return nil
}

// New builds a strategy instance by name.
func (r *Registry) New(name string, params Params) (Strategy, error) {
	r.mu.RLock()
	reg, ok := r.entries[name]
	r.mu.RUnlock()

	if !ok {
		return nil, errors.Newf(errors.ErrCodeUnknownStrategy, "unknown strategy: %s", name)
	}

	s, err := reg.Factory(params)
	if err != nil {
		return nil, errors.Ensure(errors.ErrCodeInvalidParameter, "failed to build strategy "+name, err)
	}

	return s, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.entries[name]

	return ok
}

// Names lists registered strategies in alphabetical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Describe returns the registration of name.
func (r *Registry) Describe(name string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.entries[name]

	return reg, ok
}

// Schema returns the JSON schema of the params of name.
func (r *Registry) Schema(name string) (string, error) {
	reg, ok := r.Describe(name)
	if !ok {
		return "", errors.Newf(errors.ErrCodeUnknownStrategy, "unknown strategy: %s", name)
	}

	if reg.Config == nil {
		return "{}", nil
	}

	return ToJSONSchema(reg.Config)
}
