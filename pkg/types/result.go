package types

// SortMode selects the ordering of a query result
type SortMode string

const (
	SortRelevance  SortMode = "relevance"
	SortQueryCount SortMode = "query_count"
	SortCreatedAt  SortMode = "created_at"
)

// ParseSortMode converts a string into a SortMode; empty means relevance
func ParseSortMode(s string) (SortMode, error) {
	switch SortMode(s) {
	case "", SortRelevance:
		return SortRelevance, nil
	case SortQueryCount:
		return SortQueryCount, nil
	case SortCreatedAt:
		return SortCreatedAt, nil
	default:
		return "", ErrInvalidSortMode
	}
}

// ScoredExperience is a single entry of a query result
type ScoredExperience struct {
	Experience *Experience

	// Scoring
	Relevance    float64  // Fused score used for relevance ordering
	VectorScore  *float64 // Nil when not vector-ranked
	LexicalScore *float64 // Nil when no lexical scoring ran
}
