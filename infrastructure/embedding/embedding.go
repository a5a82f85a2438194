// Package embedding turns text into dense vectors for retrieval and for the
// semantic half of relevance judging.
//
// Four providers are available: an OpenAI-compatible client (which also
// serves Ollama's /v1 endpoint), Ollama's native /api/embed, Gemini, and an
// offline feature-hashing embedder. CachedEmbedder wraps any of them.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ahrav/go-ragqa/internal/ports"
)

// ErrUnknownProvider is returned by New for an unsupported provider name.
var ErrUnknownProvider = errors.New("unknown embedding provider")

// DefaultBatchSize bounds how many texts go into one provider request.
const DefaultBatchSize = 64

// Config selects and configures an embedder.
type Config struct {
	Provider  string
	Model     string
	BaseURL   string
	APIKey    string
	Dimension int
	Timeout   time.Duration
	BatchSize int
}

// New builds the embedder named by cfg.Provider.
func New(ctx context.Context, cfg Config) (ports.Embedder, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}

	switch cfg.Provider {
	case "openai":
		return NewOpenAIEmbedder(cfg)
	case "ollama":
		return NewOllamaEmbedder(cfg)
	case "google":
		return NewGoogleEmbedder(ctx, cfg)
	case "hash":
		return NewHashEmbedder(cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

// batches splits texts into consecutive slices of at most size elements.
func batches(texts []string, size int) [][]string {
	if size <= 0 {
		size = DefaultBatchSize
	}
	out := make([][]string, 0, (len(texts)+size-1)/size)
	for start := 0; start < len(texts); start += size {
		out = append(out, texts[start:min(start+size, len(texts))])
	}
	return out
}

// embedOne implements Embed on top of EmbedBatch.
func embedOne(ctx context.Context, e ports.Embedder, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%s: expected 1 embedding, got %d", e.Name(), len(vecs))
	}
	return vecs[0], nil
}

// checkDimensions verifies every vector has the same non-zero length and
// returns it.
func checkDimensions(vecs [][]float32) (int, error) {
	dim := 0
	for i, v := range vecs {
		if len(v) == 0 {
			return 0, fmt.Errorf("embedding %d is empty: %w", i, ports.ErrInvalidResponse)
		}
		if dim == 0 {
			dim = len(v)
		} else if len(v) != dim {
			return 0, fmt.Errorf("embedding %d has length %d, want %d: %w", i, len(v), dim, ports.ErrDimensionMismatch)
		}
	}
	return dim, nil
}
