package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-ragqa/infrastructure/ingest"
	"github.com/ahrav/go-ragqa/infrastructure/units"
	"github.com/ahrav/go-ragqa/infrastructure/vectorstore"
	"github.com/ahrav/go-ragqa/internal/domain"
	"github.com/ahrav/go-ragqa/internal/ports"
	"github.com/ahrav/go-ragqa/internal/testutils"
)

// noopMetrics discards everything.
type noopMetrics struct{}

func (noopMetrics) RecordLatency(string, time.Duration, map[string]string) {}
func (noopMetrics) RecordCounter(string, float64, map[string]string)       {}
func (noopMetrics) RecordGauge(string, float64, map[string]string)         {}
func (noopMetrics) RecordHistogram(string, float64, map[string]string)     {}

var _ ports.MetricsCollector = noopMetrics{}

// qaFixture is a registry over a mock model, a stub embedder and an
// in-memory store seeded with one chunk per capital city.
type qaFixture struct {
	llm      *testutils.MockLLMClient
	embedder *testutils.StubEmbedder
	store    *vectorstore.MemoryStore
	registry *DefaultUnitRegistry
}

func newQAFixture(t *testing.T) *qaFixture {
	t.Helper()
	f := &qaFixture{
		llm:      testutils.NewMockLLMClient("test-model"),
		embedder: testutils.NewStubEmbedder(256),
		store:    vectorstore.NewMemoryStore(),
	}

	docs := []struct{ source, content string }{
		{"/docs/france.txt", "paris is the capital of france."},
		{"/docs/germany.txt", "berlin is the capital of germany."},
	}
	chunks := make([]domain.Chunk, len(docs))
	for i, d := range docs {
		vec, err := f.embedder.Embed(context.Background(), d.content)
		require.NoError(t, err)
		chunks[i] = domain.Chunk{
			ID:        ingest.ChunkID(d.source, 0, 0),
			Source:    d.source,
			Content:   d.content,
			Embedding: vec,
		}
	}
	require.NoError(t, f.store.Upsert(context.Background(), chunks))

	f.registry = NewDefaultUnitRegistry(units.Deps{LLM: f.llm, Embedder: f.embedder, Store: f.store})
	return f
}
