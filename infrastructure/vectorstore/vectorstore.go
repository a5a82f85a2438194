// Package vectorstore implements ports.VectorStore over process memory,
// an SQLite file and a Qdrant server. All three rank by cosine similarity.
package vectorstore

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/ahrav/go-ragqa/internal/domain"
	"github.com/ahrav/go-ragqa/internal/ports"
)

// ErrUnknownDriver is returned by New for an unsupported driver.
var ErrUnknownDriver = errors.New("unknown vector store driver")

// Config selects and configures a store.
type Config struct {
	Driver string
	// Path is the SQLite database file.
	Path string

	QdrantHost       string
	QdrantPort       int
	QdrantAPIKey     string
	QdrantUseTLS     bool
	QdrantCollection string
	// Dimension is required to create a Qdrant collection.
	Dimension int
}

// New opens the store named by cfg.Driver.
func New(ctx context.Context, cfg Config) (ports.VectorStore, error) {
	switch cfg.Driver {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return OpenSQLite(ctx, cfg.Path)
	case "qdrant":
		return NewQdrantStore(ctx, QdrantConfig{
			Host:       cfg.QdrantHost,
			Port:       cfg.QdrantPort,
			APIKey:     cfg.QdrantAPIKey,
			UseTLS:     cfg.QdrantUseTLS,
			Collection: cfg.QdrantCollection,
			Dimension:  cfg.Dimension,
		})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

// validateChunks checks that every chunk has an ID and an embedding of the
// same length, and returns that length.
func validateChunks(chunks []domain.Chunk) (int, error) {
	dim := 0
	for i, c := range chunks {
		if c.ID == "" {
			return 0, fmt.Errorf("chunk %d has no id", i)
		}
		if len(c.Embedding) == 0 {
			return 0, fmt.Errorf("chunk %s: %w", c.ID, ports.ErrMissingEmbedding)
		}
		if dim == 0 {
			dim = len(c.Embedding)
		} else if len(c.Embedding) != dim {
			return 0, fmt.Errorf("chunk %s has dimension %d, want %d: %w",
				c.ID, len(c.Embedding), dim, ports.ErrDimensionMismatch)
		}
	}
	return dim, nil
}

// rankTopK sorts by descending score, breaking ties by ID so results are
// stable, and keeps the first k.
func rankTopK(results []domain.RetrievedChunk, k int) []domain.RetrievedChunk {
	slices.SortStableFunc(results, func(a, b domain.RetrievedChunk) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if k >= 0 && len(results) > k {
		results = results[:k]
	}
	return results
}
