package units

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-ragqa/internal/domain"
	"github.com/ahrav/go-ragqa/internal/ports"
)

var _ ports.Unit = (*RetrievalUnit)(nil)

// DefaultTopK is the number of chunks retrieved for a chat question.
const DefaultTopK = 6

// RetrievalConfig controls the similarity search.
type RetrievalConfig struct {
	// TopK is used when the state carries no domain.KeyTopK.
	TopK int `yaml:"top_k" json:"top_k" validate:"min=1,max=100"`

	// Timeout bounds embedding plus search.
	Timeout time.Duration `yaml:"timeout" json:"timeout" validate:"min=0"`
}

// DefaultRetrievalConfig returns the chat defaults.
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{TopK: DefaultTopK, Timeout: 30 * time.Second}
}

// RetrievalUnit embeds the question and fetches the most similar chunks
// from the vector store.
//
// State requirements:
//   - domain.KeyQuestion: the question text
//   - domain.KeyTopK (optional): overrides RetrievalConfig.TopK
//
// Writes domain.KeyChunks in descending similarity order.
type RetrievalUnit struct {
	name     string
	config   RetrievalConfig
	embedder ports.Embedder
	store    ports.VectorStore
	tracer   trace.Tracer
}

// NewRetrievalUnit creates a RetrievalUnit.
func NewRetrievalUnit(name string, embedder ports.Embedder, store ports.VectorStore, config RetrievalConfig) (*RetrievalUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	if embedder == nil {
		return nil, ErrEmbedderNil
	}
	if store == nil {
		return nil, ErrStoreNil
	}
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	return &RetrievalUnit{
		name:     name,
		config:   config,
		embedder: embedder,
		store:    store,
		tracer:   otel.Tracer("retrieval-unit"),
	}, nil
}

// Name returns the unique identifier for this unit instance.
func (ru *RetrievalUnit) Name() string { return ru.name }

// Execute runs the search.
func (ru *RetrievalUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	question, ok := domain.Get(state, domain.KeyQuestion)
	if !ok {
		return state, domain.MissingKey(domain.KeyQuestion, "retrieve")
	}
	if strings.TrimSpace(question) == "" {
		return state, ErrQuestionEmpty
	}

	k := ru.config.TopK
	if override, ok := domain.Get(state, domain.KeyTopK); ok && override > 0 {
		k = override
	}

	ctx, span := ru.tracer.Start(ctx, "RetrievalUnit.Execute",
		trace.WithAttributes(
			attribute.String("unit.type", "retrieval"),
			attribute.String("unit.id", ru.name),
			attribute.String("embedder", ru.embedder.Name()),
			attribute.Int("retrieval.top_k", k),
		),
	)
	defer span.End()

	if ru.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ru.config.Timeout)
		defer cancel()
	}

	vector, err := ru.embedder.Embed(ctx, question)
	if err != nil {
		err = fmt.Errorf("unit %s: embed question: %w", ru.name, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return state, err
	}

	chunks, err := ru.store.Search(ctx, vector, k)
	if err != nil {
		err = fmt.Errorf("unit %s: search: %w", ru.name, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return state, err
	}

	span.SetAttributes(attribute.Int("retrieval.results", len(chunks)))
	if len(chunks) > 0 {
		span.SetAttributes(attribute.Float64("retrieval.top_score", chunks[0].Score))
	}

	return domain.With(state, domain.KeyChunks, chunks), nil
}

// Validate verifies the unit is ready for execution.
func (ru *RetrievalUnit) Validate() error {
	if ru.embedder == nil {
		return ErrEmbedderNil
	}
	if ru.store == nil {
		return ErrStoreNil
	}
	return validateConfig(ru.config)
}

// NewRetrievalFromConfig creates a RetrievalUnit from a configuration map.
func NewRetrievalFromConfig(id string, config map[string]any, deps Deps) (ports.Unit, error) {
	cfg, err := decodeConfig(config, DefaultRetrievalConfig())
	if err != nil {
		return nil, err
	}
	return NewRetrievalUnit(id, deps.Embedder, deps.Store, cfg)
}
