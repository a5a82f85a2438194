// Package ports defines the interfaces between the application layer and
// the infrastructure that backs it: pipeline units, language models,
// embedders, vector stores, caches and metrics.
package ports

import (
	"context"

	"github.com/ahrav/go-ragqa/internal/domain"
)

// Unit is one step of the question-answering pipeline. A Unit reads what
// it needs from the State and returns a new State carrying its output.
// Units must be safe for concurrent use.
type Unit interface {
	// Name returns the identifier used in logs, spans and the registry.
	Name() string

	// Execute performs the unit's work. The input State must not be
	// modified. Execute should return promptly when ctx is cancelled.
	//
	// Example:
	//
	//	next, err := unit.Execute(ctx, state)
	//	if err != nil {
	//	    return domain.State{}, fmt.Errorf("unit %s failed: %w", unit.Name(), err)
	//	}
	Execute(ctx context.Context, state domain.State) (domain.State, error)

	// Validate reports whether the unit is configured and has its
	// dependencies. It is called when the pipeline is assembled.
	Validate() error
}

// UnitFactory builds a configured Unit. The config map comes from YAML or
// code and is validated by the factory.
type UnitFactory func(id string, config map[string]any) (Unit, error)

// UnitRegistry creates units by type name.
type UnitRegistry interface {
	// CreateUnit builds a unit of unitType. It fails for unknown types
	// and empty IDs.
	CreateUnit(unitType string, id string, config map[string]any) (Unit, error)

	// RegisterUnitFactory adds or replaces the factory for unitType.
	RegisterUnitFactory(unitType string, factory UnitFactory) error

	// SupportedTypes returns the registered type names in sorted order.
	SupportedTypes() []string
}

// MergeStrategy combines the states produced by units that ran in parallel
// from the same input state.
type MergeStrategy interface {
	// Merge must be deterministic for states given in the same order and
	// must not modify its inputs.
	Merge(base domain.State, states []domain.State) (domain.State, error)
}
