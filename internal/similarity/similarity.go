// Package similarity ranks experience records by cosine similarity to a query vector.
//
// The scan is exact and in-process: every candidate carrying an embedding is
// compared against the query. Candidates whose stored dimensionality differs
// from the query are excluded and reported rather than failing the ranking.
package similarity

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/dshills/experience-mcp/pkg/types"
)

// DefaultThreshold is the minimum similarity a candidate must exceed
const DefaultThreshold = 0.3

// ErrDimensionMismatch is returned when two vectors have different lengths
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Candidate is a record identifier with its stored embedding, if any
type Candidate struct {
	ID        string
	Embedding types.Vector
}

// Match is a candidate that passed the threshold
type Match struct {
	ID         string
	Similarity float64
}

// Ranking is the result of RankByVector
type Ranking struct {
	Matches    []Match  // Sorted by similarity desc, ties by id asc
	Mismatched []string // Candidates excluded for dimension mismatch
}

// Scores returns the matches keyed by id
func (r Ranking) Scores() map[string]float64 {
	out := make(map[string]float64, len(r.Matches))
	for _, m := range r.Matches {
		out[m.ID] = m.Similarity
	}
	return out
}

// CosineSimilarity computes dot(a,b) / (|a|·|b|).
// It returns 0 when either vector has zero magnitude.
func CosineSimilarity(a, b types.Vector) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(sim) {
		return 0, nil
	}
	// Rounding can push identical vectors slightly past 1
	return math.Max(-1, math.Min(1, sim)), nil
}

// RankByVector scores every candidate that has an embedding and keeps those
// strictly above threshold.
func RankByVector(query types.Vector, candidates []Candidate, threshold float64) Ranking {
	var r Ranking
	for _, c := range candidates {
		if len(c.Embedding) == 0 {
			continue
		}
		sim, err := CosineSimilarity(query, c.Embedding)
		if err != nil {
			r.Mismatched = append(r.Mismatched, c.ID)
			continue
		}
		if sim <= threshold {
			continue
		}
		r.Matches = append(r.Matches, Match{ID: c.ID, Similarity: sim})
	}

	sort.Slice(r.Matches, func(i, j int) bool {
		if r.Matches[i].Similarity != r.Matches[j].Similarity {
			return r.Matches[i].Similarity > r.Matches[j].Similarity
		}
		return r.Matches[i].ID < r.Matches[j].ID
	})
	return r
}
