package evaluation

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRanking(t *testing.T, k int) RankingMetrics {
	t.Helper()
	m, err := NewRankingMetrics(k)
	require.NoError(t, err)
	return m
}

func TestNewRankingMetrics(t *testing.T) {
	for _, k := range []int{0, -1} {
		_, err := NewRankingMetrics(k)
		assert.ErrorIs(t, err, ErrInvalidCutoff, "k=%d", k)
	}

	m := mustRanking(t, 10)
	assert.Equal(t, 10, m.K())
}

func TestPrecisionAtK(t *testing.T) {
	tests := []struct {
		name  string
		k     int
		flags []int
		want  float64
	}{
		{name: "mixed full list", k: 5, flags: []int{1, 1, 0, 0, 1}, want: 0.6},
		{name: "short list keeps k denominator", k: 5, flags: []int{1, 1}, want: 0.4},
		{name: "empty list", k: 3, flags: nil, want: 0},
		{name: "only first k counted", k: 2, flags: []int{0, 1, 1, 1}, want: 0.5},
		{name: "all relevant", k: 3, flags: []int{1, 1, 1}, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, mustRanking(t, tt.k).PrecisionAtK(tt.flags), 1e-9)
		})
	}
}

func TestDCGAtK(t *testing.T) {
	m := mustRanking(t, 3)

	// 1/log2(2) + 0 + 1/log2(4)
	assert.InDelta(t, 1.5, m.DCGAtK([]int{1, 0, 1}), 1e-9)
	assert.InDelta(t, 0, m.DCGAtK(nil), 1e-9)
	// Graded relevance uses 2^rel - 1.
	assert.InDelta(t, 3, m.DCGAtK([]int{2}), 1e-9)
	// Positions past k are ignored.
	assert.InDelta(t, 0, m.DCGAtK([]int{0, 0, 0, 1}), 1e-9)
}

func TestNDCGAtK(t *testing.T) {
	tests := []struct {
		name  string
		k     int
		flags []int
		want  float64
	}{
		{name: "ideal ordering", k: 3, flags: []int{1, 1, 1}, want: 1},
		{name: "no relevant chunks", k: 3, flags: []int{0, 0, 0}, want: 0},
		{name: "empty", k: 3, flags: nil, want: 0},
		{name: "relevant first", k: 3, flags: []int{1, 0, 0}, want: 1},
		{
			name:  "relevant last",
			k:     3,
			flags: []int{0, 0, 1},
			want:  (1 / math.Log2(4)) / 1,
		},
		{
			name:  "mixed",
			k:     3,
			flags: []int{0, 1, 1},
			want:  (1/math.Log2(3) + 1/math.Log2(4)) / (1 + 1/math.Log2(3)),
		},
		{name: "short list", k: 10, flags: []int{1, 1}, want: 1},
		{name: "relevance past cutoff ignored", k: 2, flags: []int{0, 0, 1}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, mustRanking(t, tt.k).NDCGAtK(tt.flags), 1e-9)
		})
	}
}

func TestNDCGAtK_Bounded(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for range 500 {
		k := rng.IntN(12) + 1
		flags := make([]int, rng.IntN(15))
		for i := range flags {
			flags[i] = rng.IntN(2)
		}

		m := mustRanking(t, k)
		got := m.NDCGAtK(flags)
		assert.GreaterOrEqual(t, got, 0.0, "k=%d flags=%v", k, flags)
		assert.LessOrEqual(t, got, 1.0+1e-12, "k=%d flags=%v", k, flags)

		p := m.PrecisionAtK(flags)
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
	}
}

func TestRankingMetrics_Deterministic(t *testing.T) {
	m := mustRanking(t, 5)
	flags := []int{0, 1, 0, 1, 1, 0}

	first := m.Score(flags)
	for range 10 {
		assert.Equal(t, first, m.Score(flags))
	}
	assert.Equal(t, []int{0, 1, 0, 1, 1, 0}, flags, "metrics must not reorder the caller's flags")
	assert.Equal(t, 5, first.K)
}
