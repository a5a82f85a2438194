package vectorstore

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/ahrav/go-ragqa/internal/domain"
	"github.com/ahrav/go-ragqa/internal/ports"
	"github.com/ahrav/go-ragqa/internal/vecmath"
)

// MemoryStore keeps chunks in a map and searches them exhaustively. It is
// lost when the process exits.
type MemoryStore struct {
	mu     sync.RWMutex
	chunks map[string]domain.Chunk
	dim    int
}

var _ ports.VectorStore = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{chunks: make(map[string]domain.Chunk)}
}

// Upsert stores copies of chunks keyed by ID, replacing existing entries.
// All chunks must share the store's dimension.
func (m *MemoryStore) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dim, err := validateChunks(chunks)
	if err != nil {
		return ports.NewStoreError("memory", "upsert", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if dim > 0 && m.dim > 0 && dim != m.dim && len(m.chunks) > 0 {
		return ports.NewStoreError("memory", "upsert",
			fmt.Errorf("store holds dimension %d, got %d: %w", m.dim, dim, ports.ErrDimensionMismatch))
	}
	if dim > 0 {
		m.dim = dim
	}
	for _, c := range chunks {
		c.Embedding = slices.Clone(c.Embedding)
		m.chunks[c.ID] = c
	}
	return nil
}

// Search returns the k chunks most cosine-similar to vector, best first.
func (m *MemoryStore) Search(ctx context.Context, vector []float32, k int) ([]domain.RetrievedChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.dim > 0 && len(vector) != m.dim {
		return nil, ports.NewStoreError("memory", "search",
			fmt.Errorf("query has dimension %d, want %d: %w", len(vector), m.dim, ports.ErrDimensionMismatch))
	}

	results := make([]domain.RetrievedChunk, 0, len(m.chunks))
	for _, c := range m.chunks {
		c.Embedding = slices.Clone(c.Embedding)
		results = append(results, domain.RetrievedChunk{
			Chunk: c,
			Score: vecmath.Cosine(vector, c.Embedding),
		})
	}
	return rankTopK(results, k), nil
}

// DeleteBySource removes every chunk whose Source equals source.
func (m *MemoryStore) DeleteBySource(ctx context.Context, source string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.chunks {
		if c.Source == source {
			delete(m.chunks, id)
		}
	}
	return nil
}

// Count returns the number of stored chunks.
func (m *MemoryStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks), nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
