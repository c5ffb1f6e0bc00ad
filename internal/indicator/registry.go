package indicator

import (
	"sync"

	"github.com/rxtech-lab/argo-futures/pkg/errors"
)

// Constructor builds a fresh, unconfigured indicator.
type Constructor func() Indicator

// IndicatorRegistry manages all available indicators.
type IndicatorRegistry interface {
	RegisterIndicator(name IndicatorType, constructor Constructor) error
	NewIndicator(name IndicatorType, params ...any) (Indicator, error)
	ListIndicators() []IndicatorType
}

// IndicatorRegistryV1 maps indicator names to constructors. Each lookup
// returns a new instance so that callers can configure it independently.
type IndicatorRegistryV1 struct {
	constructors map[IndicatorType]Constructor
	mu           sync.RWMutex
}

// NewIndicatorRegistry creates a new indicator registry.
func NewIndicatorRegistry() IndicatorRegistry {
	return &IndicatorRegistryV1{
		constructors: make(map[IndicatorType]Constructor),
		mu:           sync.RWMutex{},
	}
}

// DefaultRegistry returns a registry with the built-in indicators.
func DefaultRegistry() IndicatorRegistry {
	r := NewIndicatorRegistry()
	_ = r.RegisterIndicator(IndicatorTypeMA, NewMA)
	_ = r.RegisterIndicator(IndicatorTypeEMA, NewEMA)

	return r
}

// RegisterIndicator adds an indicator to the registry.
func (r *IndicatorRegistryV1) RegisterIndicator(name IndicatorType, constructor Constructor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.constructors[name]; exists {
		return errors.Newf(errors.ErrCodeInvalidParameter, "RegisterIndicator: indicator with name %s already registered", name)
	}

	r.constructors[name] = constructor

	return nil
}

// NewIndicator creates and configures an indicator by name.
func (r *IndicatorRegistryV1) NewIndicator(name IndicatorType, params ...any) (Indicator, error) {
	r.mu.RLock()
	constructor, exists := r.constructors[name]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "NewIndicator: indicator with name %s not found", name)
	}

	ind := constructor()
	if len(params) > 0 {
		if err := ind.Config(params...); err != nil {
			return nil, errors.Wrapf(errors.ErrCodeInvalidParameter, err, "NewIndicator: configure %s", name)
		}
	}

	return ind, nil
}

// ListIndicators returns a list of all registered indicator names.
func (r *IndicatorRegistryV1) ListIndicators() []IndicatorType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]IndicatorType, 0, len(r.constructors))
	for name := range r.constructors {
		names = append(names, name)
	}

	return names
}
