package evaluation

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/ahrav/go-ragqa/internal/domain"
)

// ErrInvalidCutoff is returned when a ranking cutoff is not positive.
var ErrInvalidCutoff = errors.New("ranking cutoff k must be positive")

// RankingMetrics reduces an ordered sequence of 0/1 relevance flags to
// precision@k and nDCG@k. The cutoff is fixed at construction.
type RankingMetrics struct {
	k int
}

// NewRankingMetrics returns metrics with cutoff k.
func NewRankingMetrics(k int) (RankingMetrics, error) {
	if k <= 0 {
		return RankingMetrics{}, fmt.Errorf("%w: %d", ErrInvalidCutoff, k)
	}
	return RankingMetrics{k: k}, nil
}

// K returns the cutoff.
func (m RankingMetrics) K() int { return m.k }

// PrecisionAtK returns the number of relevant flags among the first k
// divided by k. The denominator is always k, so lists shorter than k are
// penalized.
func (m RankingMetrics) PrecisionAtK(flags []int) float64 {
	top := m.head(flags)
	sum := 0
	for _, f := range top {
		sum += f
	}
	return float64(sum) / float64(m.k)
}

// DCGAtK returns the discounted cumulative gain of the first k flags using
// the graded form (2^rel - 1) / log2(rank + 1).
func (m RankingMetrics) DCGAtK(flags []int) float64 {
	var dcg float64
	for i, rel := range m.head(flags) {
		dcg += (math.Pow(2, float64(rel)) - 1) / math.Log2(float64(i+2))
	}
	return dcg
}

// NDCGAtK normalizes DCGAtK by the DCG of the same first k flags sorted in
// descending order. It returns 0 when no flag is relevant.
func (m RankingMetrics) NDCGAtK(flags []int) float64 {
	ideal := slices.Clone(m.head(flags))
	slices.SortFunc(ideal, func(a, b int) int { return b - a })

	idcg := m.DCGAtK(ideal)
	if idcg <= 0 {
		return 0
	}
	return m.DCGAtK(flags) / idcg
}

// Score computes both ranking metrics.
func (m RankingMetrics) Score(flags []int) domain.RankingScores {
	return domain.RankingScores{
		K:            m.k,
		PrecisionAtK: m.PrecisionAtK(flags),
		NDCGAtK:      m.NDCGAtK(flags),
	}
}

func (m RankingMetrics) head(flags []int) []int {
	return flags[:min(m.k, len(flags))]
}
