package units

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-ragqa/internal/domain"
	"github.com/ahrav/go-ragqa/internal/evaluation"
	"github.com/ahrav/go-ragqa/internal/ports"
)

var _ ports.Unit = (*AnswerScoreUnit)(nil)

// AnswerScoreConfig bounds the inputs the unit will score.
type AnswerScoreConfig struct {
	// MaxLength is the largest answer, in bytes, that will be scored.
	// Fuzzy similarity is quadratic in the answer length.
	MaxLength int `yaml:"max_length" json:"max_length" validate:"min=1"`
}

// DefaultAnswerScoreConfig returns the default limits.
func DefaultAnswerScoreConfig() AnswerScoreConfig {
	return AnswerScoreConfig{MaxLength: MaxStringLength}
}

// AnswerScoreUnit computes exact match, token F1 and fuzzy similarity of
// the predicted answer against the expected one. It is deterministic and
// makes no model calls. Without an expected answer it does nothing.
//
// State requirements:
//   - domain.KeyAnswer: the predicted answer
//   - domain.KeyExpected (optional): the reference answer
//
// Writes domain.KeyAnswerScores.
type AnswerScoreUnit struct {
	name   string
	config AnswerScoreConfig
	tracer trace.Tracer
}

// NewAnswerScoreUnit creates an AnswerScoreUnit.
func NewAnswerScoreUnit(name string, config AnswerScoreConfig) (*AnswerScoreUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	return &AnswerScoreUnit{
		name:   name,
		config: config,
		tracer: otel.Tracer("answer-score-unit"),
	}, nil
}

// Name returns the unique identifier for this unit instance.
func (asu *AnswerScoreUnit) Name() string { return asu.name }

// Execute scores the answer.
func (asu *AnswerScoreUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	expected, ok := domain.Get(state, domain.KeyExpected)
	if !ok {
		return state, nil
	}
	predicted, ok := domain.Get(state, domain.KeyAnswer)
	if !ok {
		return state, domain.MissingKey(domain.KeyAnswer, "score answer")
	}

	_, span := asu.tracer.Start(ctx, "AnswerScoreUnit.Execute",
		trace.WithAttributes(
			attribute.String("unit.type", "answer_score"),
			attribute.String("unit.id", asu.name),
		),
	)
	defer span.End()

	for _, s := range []string{expected, predicted} {
		if len(s) > asu.config.MaxLength {
			err := fmt.Errorf("unit %s: answer too long: %d bytes exceeds limit of %d", asu.name, len(s), asu.config.MaxLength)
			span.RecordError(err)
			return state, err
		}
	}

	start := time.Now()
	scores := evaluation.ScoreAnswer(predicted, expected)

	span.SetAttributes(
		attribute.Bool("eval.exact_match", scores.ExactMatch),
		attribute.Float64("eval.f1", scores.F1),
		attribute.Float64("eval.fuzzy_similarity", scores.FuzzySimilarity),
		attribute.Int64("eval.latency_ms", time.Since(start).Milliseconds()),
		// no_llm_cost filters deterministic units in trace backends.
		attribute.Bool("no_llm_cost", true),
	)

	return domain.With(state, domain.KeyAnswerScores, scores), nil
}

// Validate verifies the unit is properly configured.
func (asu *AnswerScoreUnit) Validate() error {
	return validateConfig(asu.config)
}

// NewAnswerScoreFromConfig creates an AnswerScoreUnit from a configuration
// map. It needs no dependencies.
func NewAnswerScoreFromConfig(id string, config map[string]any, _ Deps) (ports.Unit, error) {
	cfg, err := decodeConfig(config, DefaultAnswerScoreConfig())
	if err != nil {
		return nil, err
	}
	return NewAnswerScoreUnit(id, cfg)
}
