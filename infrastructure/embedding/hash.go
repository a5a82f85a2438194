package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"

	"github.com/ahrav/go-ragqa/internal/ports"
	"github.com/ahrav/go-ragqa/internal/vecmath"
)

// HashDefaultDimension is used when NewHashEmbedder is given zero.
const HashDefaultDimension = 256

var hashTokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// HashEmbedder is a deterministic, offline embedder. Each lowercased word
// and adjacent word pair is hashed into a signed bucket and the result is
// L2-normalized, so texts sharing vocabulary have high cosine similarity.
// It needs no model server, which makes it suitable for tests and
// air-gapped demos.
type HashEmbedder struct {
	dim int
}

var _ ports.Embedder = (*HashEmbedder)(nil)

// NewHashEmbedder returns an embedder producing vectors of length dim.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = HashDefaultDimension
	}
	return &HashEmbedder{dim: dim}
}

// Embed returns the hashed feature vector of text.
func (h *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return h.vector(text), nil
}

// EmbedBatch embeds each text in order.
func (h *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.vector(text)
	}
	return out, nil
}

func (h *HashEmbedder) vector(text string) []float32 {
	v := make([]float32, h.dim)
	tokens := hashTokenPattern.FindAllString(strings.ToLower(text), -1)
	for i, tok := range tokens {
		h.add(v, tok, 1)
		if i > 0 {
			h.add(v, tokens[i-1]+" "+tok, 0.5)
		}
	}
	return vecmath.Normalize(v)
}

func (h *HashEmbedder) add(v []float32, feature string, weight float32) {
	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(feature))
	sum := hasher.Sum64()

	bucket := sum % uint64(h.dim)
	if sum>>63 == 1 {
		weight = -weight
	}
	v[bucket] += weight
}

// Dimension returns the configured vector length.
func (h *HashEmbedder) Dimension() int { return h.dim }

// Name returns "hash/<dimension>".
func (h *HashEmbedder) Name() string { return fmt.Sprintf("hash/%d", h.dim) }
