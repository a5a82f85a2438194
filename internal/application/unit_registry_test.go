package application

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-ragqa/infrastructure/units"
	"github.com/ahrav/go-ragqa/infrastructure/vectorstore"
	"github.com/ahrav/go-ragqa/internal/domain"
	"github.com/ahrav/go-ragqa/internal/ports"
	"github.com/ahrav/go-ragqa/internal/testutils"
)

// testMockUnit implements ports.Unit for testing custom factory registration.
type testMockUnit struct {
	name string
}

func (m *testMockUnit) Name() string { return m.name }

func (m *testMockUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	return state, nil
}

func (m *testMockUnit) Validate() error { return nil }

func testDeps() units.Deps {
	return units.Deps{
		LLM:      testutils.NewMockLLMClient("test-model"),
		Embedder: testutils.NewStubEmbedder(16),
		Store:    vectorstore.NewMemoryStore(),
	}
}

func TestNewDefaultUnitRegistry(t *testing.T) {
	registry := NewDefaultUnitRegistry(testDeps())

	assert.NotNil(t, registry.factories)
	assert.Equal(t, []string{
		UnitTypeAnswer,
		UnitTypeAnswerScore,
		UnitTypeRelevance,
		UnitTypeRetrieval,
		UnitTypeValidation,
	}, registry.SupportedTypes())
}

func TestCreateUnit_Success(t *testing.T) {
	registry := NewDefaultUnitRegistry(testDeps())

	tests := []struct {
		name     string
		unitType string
		unitID   string
		config   map[string]any
	}{
		{
			name:     "creates retrieval unit",
			unitType: UnitTypeRetrieval,
			unitID:   "retrieve",
			config:   map[string]any{"top_k": 10, "timeout": "5s"},
		},
		{
			name:     "creates answer unit",
			unitType: UnitTypeAnswer,
			unitID:   "answer",
			config: map[string]any{
				"temperature": 0.2,
				"max_tokens":  256,
				"timeout":     "30s",
			},
		},
		{
			name:     "creates validation unit with nil config",
			unitType: UnitTypeValidation,
			unitID:   "validate",
			config:   nil,
		},
		{
			name:     "creates answer score unit with empty config",
			unitType: UnitTypeAnswerScore,
			unitID:   "score",
			config:   map[string]any{},
		},
		{
			name:     "creates relevance unit",
			unitType: UnitTypeRelevance,
			unitID:   "relevance",
			config:   map[string]any{"k": 5, "semantic_threshold": 0.7},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unit, err := registry.CreateUnit(tt.unitType, tt.unitID, tt.config)
			require.NoError(t, err)
			require.NotNil(t, unit)
			assert.Equal(t, tt.unitID, unit.Name())
			assert.NoError(t, unit.Validate())
		})
	}
}

func TestCreateUnit_Errors(t *testing.T) {
	registry := NewDefaultUnitRegistry(testDeps())

	tests := []struct {
		name          string
		unitType      string
		unitID        string
		config        map[string]any
		expectedError string
	}{
		{
			name:          "fails with unsupported unit type",
			unitType:      "reranker",
			unitID:        "test_id",
			expectedError: "unsupported unit type",
		},
		{
			name:          "fails with empty unit ID",
			unitType:      UnitTypeAnswer,
			unitID:        "",
			expectedError: "unit ID cannot be empty",
		},
		{
			name:          "fails with out of range top_k",
			unitType:      UnitTypeRetrieval,
			unitID:        "retrieve",
			config:        map[string]any{"top_k": 0},
			expectedError: "failed to create unit retrieve of type retrieval",
		},
		{
			name:          "fails with invalid duration",
			unitType:      UnitTypeAnswer,
			unitID:        "answer",
			config:        map[string]any{"timeout": "soon"},
			expectedError: "failed to create unit answer of type answer",
		},
		{
			name:          "fails with threshold type mismatch",
			unitType:      UnitTypeRelevance,
			unitID:        "relevance",
			config:        map[string]any{"lexical_threshold": "half"},
			expectedError: "failed to create unit relevance of type relevance",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unit, err := registry.CreateUnit(tt.unitType, tt.unitID, tt.config)
			require.Error(t, err)
			assert.Nil(t, unit)
			assert.Contains(t, err.Error(), tt.expectedError)
		})
	}
}

func TestCreateUnit_MissingDependencies(t *testing.T) {
	registry := NewDefaultUnitRegistry(units.Deps{})

	for _, unitType := range []string{UnitTypeRetrieval, UnitTypeAnswer, UnitTypeValidation, UnitTypeRelevance} {
		t.Run(unitType, func(t *testing.T) {
			_, err := registry.CreateUnit(unitType, "unit", nil)
			assert.Error(t, err)
		})
	}

	t.Run("answer scoring needs no dependencies", func(t *testing.T) {
		unit, err := registry.CreateUnit(UnitTypeAnswerScore, "score", nil)
		require.NoError(t, err)
		assert.Equal(t, "score", unit.Name())
	})
}

func TestRegisterUnitFactory(t *testing.T) {
	registry := NewDefaultUnitRegistry(testDeps())

	t.Run("registers new factory successfully", func(t *testing.T) {
		customFactory := func(id string, config map[string]any) (ports.Unit, error) {
			return &testMockUnit{name: id}, nil
		}

		require.NoError(t, registry.RegisterUnitFactory("custom", customFactory))

		unit, err := registry.CreateUnit("custom", "custom_unit", nil)
		require.NoError(t, err)
		assert.Equal(t, "custom_unit", unit.Name())
		assert.Contains(t, registry.SupportedTypes(), "custom")
	})

	t.Run("overrides existing factory", func(t *testing.T) {
		called := false
		override := func(id string, config map[string]any) (ports.Unit, error) {
			called = true
			return &testMockUnit{name: id}, nil
		}

		require.NoError(t, registry.RegisterUnitFactory(UnitTypeAnswerScore, override))

		unit, err := registry.CreateUnit(UnitTypeAnswerScore, "score", nil)
		require.NoError(t, err)
		assert.True(t, called)
		assert.IsType(t, &testMockUnit{}, unit)
	})

	t.Run("fails with empty unit type", func(t *testing.T) {
		err := registry.RegisterUnitFactory("", func(string, map[string]any) (ports.Unit, error) { return nil, nil })
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unit type cannot be empty")
	})

	t.Run("fails with nil factory", func(t *testing.T) {
		err := registry.RegisterUnitFactory("nil_factory", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "factory function cannot be nil")
	})
}

func TestSetDeps(t *testing.T) {
	registry := NewDefaultUnitRegistry(units.Deps{})

	t.Run("re-registers built-in factories", func(t *testing.T) {
		_, err := registry.CreateUnit(UnitTypeRetrieval, "retrieve", nil)
		require.Error(t, err)

		deps := testDeps()
		registry.SetDeps(deps)
		assert.Equal(t, deps, registry.Deps())

		unit, err := registry.CreateUnit(UnitTypeRetrieval, "retrieve", nil)
		require.NoError(t, err)
		assert.Equal(t, "retrieve", unit.Name())
	})

	t.Run("keeps custom factories", func(t *testing.T) {
		require.NoError(t, registry.RegisterUnitFactory("custom", func(id string, _ map[string]any) (ports.Unit, error) {
			return &testMockUnit{name: id}, nil
		}))

		registry.SetDeps(testDeps())
		_, err := registry.CreateUnit("custom", "still_here", nil)
		assert.NoError(t, err)
	})
}

func TestThreadSafety_RegisterAndCreate(t *testing.T) {
	registry := NewDefaultUnitRegistry(testDeps())

	const numOperations = 20
	var wg sync.WaitGroup
	wg.Add(numOperations)

	errs := make(chan error, numOperations)

	for i := range numOperations {
		go func(id int) {
			defer wg.Done()

			if id%2 == 0 {
				factory := func(unitID string, _ map[string]any) (ports.Unit, error) {
					return &testMockUnit{name: unitID}, nil
				}
				if err := registry.RegisterUnitFactory(fmt.Sprintf("type_%d", id), factory); err != nil {
					errs <- err
				}
				return
			}

			unit, err := registry.CreateUnit(UnitTypeAnswerScore, fmt.Sprintf("unit_%d", id), nil)
			if err != nil {
				errs <- err
				return
			}
			if unit.Name() != fmt.Sprintf("unit_%d", id) {
				errs <- fmt.Errorf("unexpected unit name: %s", unit.Name())
			}
		}(i)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent error: %v", err)
	}
	assert.Len(t, registry.SupportedTypes(), 5+numOperations/2)
}
