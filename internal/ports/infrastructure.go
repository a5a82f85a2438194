package ports

import (
	"context"
	"time"

	"github.com/ahrav/go-ragqa/internal/domain"
)

// LLMClient defines the interface for interacting with Large Language
// Model providers.
// Implementations handle provider-specific details like authentication,
// request formatting and response parsing.
type LLMClient interface {
	// Complete sends a completion request to the LLM provider.
	// The options map carries provider-neutral settings:
	//   - "temperature": float64
	//   - "max_tokens": int
	//   - "model": string
	//   - "system": string
	Complete(ctx context.Context, prompt string, options map[string]any) (string, error)

	// EstimateTokens approximates the token count of text.
	EstimateTokens(text string) (int, error)

	// GetModel returns the model identifier being used by this client.
	GetModel() string
}

// Embedder turns text into dense vectors. All vectors produced by one
// Embedder have the same length.
type Embedder interface {
	// Embed returns the embedding of a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds texts in one request where the provider allows it.
	// The result has one vector per input, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the vector length, or 0 if it is not known until
	// the first call.
	Dimension() int

	// Name identifies the provider and model for logs.
	Name() string
}

// Tokenizer splits text into lexical tokens for overlap scoring.
type Tokenizer interface {
	Tokenize(text string) []string
}

// VectorStore indexes chunk embeddings and answers nearest-neighbour
// queries by cosine similarity.
type VectorStore interface {
	// Upsert inserts or replaces chunks by ID. Every chunk must carry an
	// embedding.
	Upsert(ctx context.Context, chunks []domain.Chunk) error

	// Search returns up to k chunks ordered by descending similarity to
	// vector. Fewer than k are returned when the store holds fewer.
	Search(ctx context.Context, vector []float32, k int) ([]domain.RetrievedChunk, error)

	// DeleteBySource removes every chunk read from source.
	DeleteBySource(ctx context.Context, source string) error

	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int, error)

	// Close releases the store's resources.
	Close() error
}

// CacheStore defines the interface for caching computed values such as
// embeddings.
type CacheStore interface {
	// Get retrieves a cached value by key.
	Get(ctx context.Context, key string) (any, bool, error)

	// Set stores a value. A zero expiration means the item doesn't expire.
	Set(ctx context.Context, key string, value any, expiration time.Duration) error

	// Delete removes a value from the cache.
	// Returns nil if the key doesn't exist.
	Delete(ctx context.Context, key string) error

	// Clear removes all values from the cache.
	Clear(ctx context.Context) error
}

// MetricsCollector defines the interface for collecting operational metrics.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram, such as a per-query
	// evaluation score.
	RecordHistogram(metric string, value float64, labels map[string]string)
}
