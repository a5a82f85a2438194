package units

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-ragqa/infrastructure/vectorstore"
	"github.com/ahrav/go-ragqa/internal/domain"
	"github.com/ahrav/go-ragqa/internal/testutils"
)

func seededStore(t *testing.T, embedder *testutils.StubEmbedder, texts ...string) *vectorstore.MemoryStore {
	t.Helper()
	store := vectorstore.NewMemoryStore()
	chunks := make([]domain.Chunk, len(texts))
	for i, text := range texts {
		vec, err := embedder.Embed(context.Background(), text)
		require.NoError(t, err)
		chunks[i] = domain.Chunk{
			ID:        string(rune('a' + i)),
			Source:    "/docs/facts.txt",
			Content:   text,
			Embedding: vec,
		}
	}
	require.NoError(t, store.Upsert(context.Background(), chunks))
	return store
}

func TestNewRetrievalUnit(t *testing.T) {
	embedder := testutils.NewStubEmbedder(32)
	store := vectorstore.NewMemoryStore()

	tests := []struct {
		name     string
		unitName string
		embedder *testutils.StubEmbedder
		store    *vectorstore.MemoryStore
		config   RetrievalConfig
		wantErr  error
	}{
		{name: "valid", unitName: "retrieve", embedder: embedder, store: store, config: DefaultRetrievalConfig()},
		{name: "empty name", embedder: embedder, store: store, config: DefaultRetrievalConfig(), wantErr: ErrEmptyUnitName},
		{name: "nil embedder", unitName: "retrieve", store: store, config: DefaultRetrievalConfig(), wantErr: ErrEmbedderNil},
		{name: "nil store", unitName: "retrieve", embedder: embedder, config: DefaultRetrievalConfig(), wantErr: ErrStoreNil},
		{name: "zero top k", unitName: "retrieve", embedder: embedder, store: store, config: RetrievalConfig{TopK: 0}, wantErr: ErrConfigValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Typed nils must reach the constructor as untyped nils.
			var (
				e = portsEmbedder(tt.embedder)
				s = portsStore(tt.store)
			)
			unit, err := NewRetrievalUnit(tt.unitName, e, s, tt.config)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, unit)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.unitName, unit.Name())
			assert.NoError(t, unit.Validate())
		})
	}
}

func TestRetrievalUnit_Execute(t *testing.T) {
	embedder := testutils.NewStubEmbedder(64)
	store := seededStore(t, embedder,
		"paris is the capital of france",
		"berlin is the capital of germany",
		"the nile is a river in africa",
	)
	unit, err := NewRetrievalUnit("retrieve", embedder, store, RetrievalConfig{TopK: 2})
	require.NoError(t, err)

	t.Run("returns top k by similarity", func(t *testing.T) {
		state := domain.With(domain.NewState(), domain.KeyQuestion, "what is the capital of france")

		next, err := unit.Execute(context.Background(), state)
		require.NoError(t, err)

		chunks, ok := domain.Get(next, domain.KeyChunks)
		require.True(t, ok)
		require.Len(t, chunks, 2)
		assert.Equal(t, "paris is the capital of france", chunks[0].Content)
		assert.GreaterOrEqual(t, chunks[0].Score, chunks[1].Score)
	})

	t.Run("state top k overrides config", func(t *testing.T) {
		state := domain.With(domain.NewState(), domain.KeyQuestion, "capital")
		state = domain.With(state, domain.KeyTopK, 3)

		next, err := unit.Execute(context.Background(), state)
		require.NoError(t, err)

		chunks, _ := domain.Get(next, domain.KeyChunks)
		assert.Len(t, chunks, 3)
	})

	t.Run("missing question", func(t *testing.T) {
		_, err := unit.Execute(context.Background(), domain.NewState())
		assert.ErrorIs(t, err, domain.ErrKeyNotFound)
	})

	t.Run("blank question", func(t *testing.T) {
		state := domain.With(domain.NewState(), domain.KeyQuestion, "  ")
		_, err := unit.Execute(context.Background(), state)
		assert.ErrorIs(t, err, ErrQuestionEmpty)
	})
}

func TestRetrievalUnit_EmbedFailure(t *testing.T) {
	embedder := testutils.NewStubEmbedder(8)
	embedder.Err = errors.New("embedding service down")
	unit, err := NewRetrievalUnit("retrieve", embedder, vectorstore.NewMemoryStore(), DefaultRetrievalConfig())
	require.NoError(t, err)

	state := domain.With(domain.NewState(), domain.KeyQuestion, "anything")
	_, err = unit.Execute(context.Background(), state)
	assert.ErrorIs(t, err, embedder.Err)
}

func TestNewRetrievalFromConfig(t *testing.T) {
	deps := Deps{Embedder: testutils.NewStubEmbedder(8), Store: vectorstore.NewMemoryStore()}

	unit, err := NewRetrievalFromConfig("retrieve", map[string]any{"top_k": 10, "timeout": "5s"}, deps)
	require.NoError(t, err)
	ru := unit.(*RetrievalUnit)
	assert.Equal(t, 10, ru.config.TopK)
	assert.Equal(t, "5s", ru.config.Timeout.String())

	unit, err = NewRetrievalFromConfig("retrieve", nil, deps)
	require.NoError(t, err)
	assert.Equal(t, DefaultTopK, unit.(*RetrievalUnit).config.TopK)

	_, err = NewRetrievalFromConfig("retrieve", map[string]any{"top_k": -1}, deps)
	assert.ErrorIs(t, err, ErrConfigValidation)

	_, err = NewRetrievalFromConfig("retrieve", nil, Deps{})
	assert.ErrorIs(t, err, ErrEmbedderNil)
}
