package units

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-ragqa/internal/domain"
	"github.com/ahrav/go-ragqa/internal/evaluation"
	"github.com/ahrav/go-ragqa/internal/ports"
)

var _ ports.Unit = (*RelevanceUnit)(nil)

// DefaultEvalTopK is the ranking cutoff used by the batch evaluation.
const DefaultEvalTopK = 10

// RelevanceConfig configures the relevance judgment and ranking cutoff.
type RelevanceConfig struct {
	// K is the ranking cutoff. domain.KeyTopK in the state overrides it so
	// the cutoff matches the number of chunks requested.
	K int `yaml:"k" json:"k" validate:"min=1,max=100"`

	SemanticThreshold float64 `yaml:"semantic_threshold" json:"semantic_threshold" validate:"min=0,max=1"`
	LexicalThreshold  float64 `yaml:"lexical_threshold" json:"lexical_threshold" validate:"min=0,max=1"`
}

// DefaultRelevanceConfig returns the evaluation defaults.
func DefaultRelevanceConfig() RelevanceConfig {
	return RelevanceConfig{
		K:                 DefaultEvalTopK,
		SemanticThreshold: evaluation.DefaultRelevanceThreshold,
		LexicalThreshold:  evaluation.DefaultRelevanceThreshold,
	}
}

// RelevanceUnit judges every retrieved chunk against the expected answer
// and computes precision@k and nDCG@k over the flags. Without an expected
// answer it does nothing.
//
// State requirements:
//   - domain.KeyChunks: retrieved chunks in rank order
//   - domain.KeyExpected (optional): the reference answer
//   - domain.KeyTopK (optional): overrides RelevanceConfig.K
//
// Writes domain.KeyRelevanceFlags and domain.KeyRankingScores.
type RelevanceUnit struct {
	name   string
	config RelevanceConfig
	judge  *evaluation.RelevanceJudge
	tracer trace.Tracer
}

// NewRelevanceUnit creates a RelevanceUnit judging with embedder.
func NewRelevanceUnit(name string, embedder ports.Embedder, config RelevanceConfig) (*RelevanceUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	if embedder == nil {
		return nil, ErrEmbedderNil
	}
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	judge, err := evaluation.NewRelevanceJudge(embedder,
		evaluation.WithThresholds(config.SemanticThreshold, config.LexicalThreshold))
	if err != nil {
		return nil, fmt.Errorf("unit %s: %w", name, err)
	}
	return &RelevanceUnit{
		name:   name,
		config: config,
		judge:  judge,
		tracer: otel.Tracer("relevance-unit"),
	}, nil
}

// Name returns the unique identifier for this unit instance.
func (ru *RelevanceUnit) Name() string { return ru.name }

// Execute judges the chunks and scores the ranking.
func (ru *RelevanceUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	expected, ok := domain.Get(state, domain.KeyExpected)
	if !ok {
		return state, nil
	}
	chunks, ok := domain.Get(state, domain.KeyChunks)
	if !ok {
		return state, domain.MissingKey(domain.KeyChunks, "judge relevance")
	}

	k := ru.config.K
	if override, ok := domain.Get(state, domain.KeyTopK); ok && override > 0 {
		k = override
	}
	metrics, err := evaluation.NewRankingMetrics(k)
	if err != nil {
		return state, fmt.Errorf("unit %s: %w", ru.name, err)
	}

	ctx, span := ru.tracer.Start(ctx, "RelevanceUnit.Execute",
		trace.WithAttributes(
			attribute.String("unit.type", "relevance"),
			attribute.String("unit.id", ru.name),
			attribute.Int("eval.k", k),
			attribute.Int("eval.chunks", len(chunks)),
		),
	)
	defer span.End()

	contents := make([]string, len(chunks))
	for i, c := range chunks {
		contents[i] = c.Content
	}
	scored, err := ru.judge.Judge(ctx, contents, expected)
	if err != nil {
		err = fmt.Errorf("unit %s: %w", ru.name, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return state, err
	}

	flags := evaluation.Flags(scored)
	ranking := metrics.Score(flags)

	span.SetAttributes(
		attribute.Float64("eval.precision_at_k", ranking.PrecisionAtK),
		attribute.Float64("eval.ndcg_at_k", ranking.NDCGAtK),
	)

	return state.WithMultiple(map[string]any{
		domain.KeyRelevanceFlags.Name(): flags,
		domain.KeyRankingScores.Name():  ranking,
	}), nil
}

// Validate verifies the unit is properly configured.
func (ru *RelevanceUnit) Validate() error {
	if ru.judge == nil {
		return ErrEmbedderNil
	}
	return validateConfig(ru.config)
}

// NewRelevanceFromConfig creates a RelevanceUnit from a configuration map.
func NewRelevanceFromConfig(id string, config map[string]any, deps Deps) (ports.Unit, error) {
	cfg, err := decodeConfig(config, DefaultRelevanceConfig())
	if err != nil {
		return nil, err
	}
	return NewRelevanceUnit(id, deps.Embedder, cfg)
}
