// Package units provides the question-answering and scoring units that
// implement ports.Unit. Each unit reads its inputs from a domain.State and
// returns a new State carrying its output.
package units

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-ragqa/internal/ports"
)

// Common errors returned by unit constructors and Execute.
var (
	// ErrEmptyUnitName is returned when attempting to create a unit with an empty name.
	ErrEmptyUnitName = errors.New("unit name cannot be empty")

	// ErrLLMClientNil is returned when a unit that calls a model has none.
	ErrLLMClientNil = errors.New("LLM client cannot be nil")

	// ErrEmbedderNil is returned when a unit that embeds text has no embedder.
	ErrEmbedderNil = errors.New("embedder cannot be nil")

	// ErrStoreNil is returned when the retrieval unit has no vector store.
	ErrStoreNil = errors.New("vector store cannot be nil")

	// ErrQuestionEmpty is returned when the question in the state is blank.
	ErrQuestionEmpty = errors.New("question cannot be empty")

	// ErrConfigValidation wraps struct tag validation failures.
	ErrConfigValidation = errors.New("configuration validation failed")
)

// MaxStringLength bounds any single text a unit will score (10MB).
const MaxStringLength = 10 * 1024 * 1024

// Package-level validator instance for configuration validation.
var validate = validator.New()

// Deps carries the infrastructure a unit may need. Factories take what
// they use and ignore the rest.
type Deps struct {
	LLM      ports.LLMClient
	Embedder ports.Embedder
	Store    ports.VectorStore
}

// decodeConfig overlays a config map onto defaults by round-tripping it
// through YAML, so map keys use the same names as the YAML tags.
func decodeConfig[T any](config map[string]any, defaults T) (T, error) {
	if len(config) == 0 {
		return defaults, nil
	}
	data, err := yaml.Marshal(config)
	if err != nil {
		return defaults, fmt.Errorf("marshal config: %w", err)
	}
	cfg := defaults
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return defaults, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func validateConfig(config any) error {
	if err := validate.Struct(config); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigValidation, err)
	}
	return nil
}
