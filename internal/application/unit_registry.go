package application

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/ahrav/go-ragqa/infrastructure/units"
	"github.com/ahrav/go-ragqa/internal/ports"
)

// Built-in unit type names.
const (
	UnitTypeRetrieval   = "retrieval"
	UnitTypeAnswer      = "answer"
	UnitTypeValidation  = "validation"
	UnitTypeAnswerScore = "answer_score"
	UnitTypeRelevance   = "relevance"
)

// Verify interface compliance at compile time.
var _ ports.UnitRegistry = (*DefaultUnitRegistry)(nil)

// DefaultUnitRegistry creates pipeline units by type name. Built-in
// factories receive the registry's shared dependencies: the LLM client,
// the embedder and the vector store.
type DefaultUnitRegistry struct {
	// factories maps unit type strings to their factory functions.
	factories map[string]ports.UnitFactory
	deps      units.Deps
	mu        sync.RWMutex
}

// NewDefaultUnitRegistry creates a registry with the built-in unit types
// registered against deps.
func NewDefaultUnitRegistry(deps units.Deps) *DefaultUnitRegistry {
	registry := &DefaultUnitRegistry{
		factories: make(map[string]ports.UnitFactory),
		deps:      deps,
	}
	registry.registerBuiltinFactories()
	return registry
}

// registerBuiltinFactories must be called with mu held or before the
// registry is shared.
func (r *DefaultUnitRegistry) registerBuiltinFactories() {
	deps := r.deps

	bind := func(build func(string, map[string]any, units.Deps) (ports.Unit, error)) ports.UnitFactory {
		return func(id string, config map[string]any) (ports.Unit, error) {
			return build(id, config, deps)
		}
	}

	r.factories[UnitTypeRetrieval] = bind(units.NewRetrievalFromConfig)
	r.factories[UnitTypeAnswer] = bind(units.NewAnswerFromConfig)
	r.factories[UnitTypeValidation] = bind(units.NewValidationFromConfig)
	r.factories[UnitTypeAnswerScore] = bind(units.NewAnswerScoreFromConfig)
	r.factories[UnitTypeRelevance] = bind(units.NewRelevanceFromConfig)
}

// CreateUnit creates a new unit instance based on the provided type,
// identifier, and configuration.
func (r *DefaultUnitRegistry) CreateUnit(
	unitType string,
	id string,
	config map[string]any,
) (ports.Unit, error) {
	r.mu.RLock()
	factory, exists := r.factories[unitType]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unsupported unit type: %s", unitType)
	}

	if id == "" {
		return nil, fmt.Errorf("unit ID cannot be empty")
	}

	if config == nil {
		config = make(map[string]any)
	}

	unit, err := factory(id, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create unit %s of type %s: %w", id, unitType, err)
	}

	return unit, nil
}

// RegisterUnitFactory registers a new factory function for a specific unit
// type, replacing any existing one.
func (r *DefaultUnitRegistry) RegisterUnitFactory(
	unitType string,
	factory ports.UnitFactory,
) error {
	if unitType == "" {
		return fmt.Errorf("unit type cannot be empty")
	}

	if factory == nil {
		return fmt.Errorf("factory function cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[unitType] = factory
	return nil
}

// SupportedTypes returns all registered unit types in sorted order.
func (r *DefaultUnitRegistry) SupportedTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Sorted(maps.Keys(r.factories))
}

// SetDeps swaps the shared dependencies and rebuilds the built-in
// factories. Custom factories are kept.
func (r *DefaultUnitRegistry) SetDeps(deps units.Deps) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.deps = deps
	r.registerBuiltinFactories()
}

// Deps returns the current shared dependencies.
func (r *DefaultUnitRegistry) Deps() units.Deps {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.deps
}
