package testutils

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync/atomic"
	"unicode"

	"github.com/ahrav/go-ragqa/internal/ports"
)

// StubEmbedder is a deterministic bag-of-words embedder. Texts sharing
// words have a positive cosine similarity and identical texts have a
// similarity of one.
type StubEmbedder struct {
	dim   int
	calls atomic.Int64
	// Err, when set, is returned by every call.
	Err error
}

// NewStubEmbedder returns an embedder producing dim-length vectors.
func NewStubEmbedder(dim int) *StubEmbedder {
	return &StubEmbedder{dim: dim}
}

// Embed implements ports.Embedder.
func (s *StubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	s.calls.Add(1)
	return s.vector(text), nil
}

// EmbedBatch implements ports.Embedder.
func (s *StubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Dimension implements ports.Embedder.
func (s *StubEmbedder) Dimension() int { return s.dim }

// Name implements ports.Embedder.
func (s *StubEmbedder) Name() string { return "stub" }

// Calls returns how many texts were embedded.
func (s *StubEmbedder) Calls() int64 { return s.calls.Load() }

func (s *StubEmbedder) vector(text string) []float32 {
	v := make([]float32, s.dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%uint32(s.dim)]++
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= scale
	}
	return v
}

var _ ports.Embedder = (*StubEmbedder)(nil)
