package similarity

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/experience-mcp/pkg/types"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b types.Vector
		want float64
	}{
		{name: "identical", a: types.Vector{1, 2, 3}, b: types.Vector{1, 2, 3}, want: 1},
		{name: "orthogonal", a: types.Vector{1, 0}, b: types.Vector{0, 1}, want: 0},
		{name: "opposite", a: types.Vector{1, 1}, b: types.Vector{-1, -1}, want: -1},
		{name: "scaled", a: types.Vector{1, 2}, b: types.Vector{2, 4}, want: 1},
		{name: "zero vector", a: types.Vector{0, 0, 0}, b: types.Vector{1, 2, 3}, want: 0},
		{name: "both zero", a: types.Vector{0, 0}, b: types.Vector{0, 0}, want: 0},
		{name: "empty", a: types.Vector{}, b: types.Vector{}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CosineSimilarity(tt.a, tt.b)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestCosineSimilarityDimensionMismatch(t *testing.T) {
	_, err := CosineSimilarity(types.Vector{1, 2}, types.Vector{1, 2, 3})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestCosineSimilarityProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		n := 1 + rng.Intn(64)
		a := make(types.Vector, n)
		b := make(types.Vector, n)
		for k := range a {
			a[k] = rng.NormFloat64()
			b[k] = rng.NormFloat64()
		}

		ab, err := CosineSimilarity(a, b)
		require.NoError(t, err)
		ba, err := CosineSimilarity(b, a)
		require.NoError(t, err)
		assert.InDelta(t, ab, ba, 1e-12, "symmetry")
		assert.GreaterOrEqual(t, ab, -1.0)
		assert.LessOrEqual(t, ab, 1.0)

		aa, err := CosineSimilarity(a, a)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, aa, 1e-9, "self-similarity")
	}
}

func TestRankByVector(t *testing.T) {
	query := types.Vector{1, 0, 0}
	candidates := []Candidate{
		{ID: "c", Embedding: types.Vector{1, 0, 0}},
		{ID: "a", Embedding: types.Vector{1, 0, 0}},
		{ID: "b", Embedding: types.Vector{1, 1, 0}},
		{ID: "low", Embedding: types.Vector{0.2, 1, 0}},
		{ID: "none"},
		{ID: "wrongdim", Embedding: types.Vector{1, 0}},
	}

	r := RankByVector(query, candidates, DefaultThreshold)

	ids := make([]string, len(r.Matches))
	for i, m := range r.Matches {
		ids[i] = m.ID
	}
	assert.Equal(t, []string{"a", "c", "b"}, ids, "sorted desc with ties by id")
	assert.Equal(t, []string{"wrongdim"}, r.Mismatched)
	assert.InDelta(t, 0.7071, r.Scores()["b"], 1e-3)
}

func TestRankByVectorThresholdIsExclusive(t *testing.T) {
	query := types.Vector{1, 0}
	candidates := []Candidate{{ID: "x", Embedding: types.Vector{1, 0}}}

	assert.Empty(t, RankByVector(query, candidates, 1.0).Matches)
	assert.Len(t, RankByVector(query, candidates, 0.99).Matches, 1)
}
