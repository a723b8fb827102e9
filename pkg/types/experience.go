package types

import (
	"strings"
	"time"
)

// PublishStatus is the publication state of an experience
type PublishStatus string

const (
	StatusDraft     PublishStatus = "draft"
	StatusPublished PublishStatus = "published"
)

// Valid reports whether the status is a known value
func (s PublishStatus) Valid() bool {
	return s == StatusDraft || s == StatusPublished
}

// Vector is a fixed-length embedding vector
type Vector []float64

// Clone returns a copy that does not share the backing array
func (v Vector) Clone() Vector {
	if v == nil {
		return nil
	}
	out := make(Vector, len(v))
	copy(out, v)
	return out
}

// Experience represents a recorded troubleshooting write-up
type Experience struct {
	// Identification
	ID string

	// Content
	Title     string
	Problem   string
	RootCause string // Optional
	Solution  string
	Context   string // Optional
	Keywords  []string

	// Retrieval state
	Embedding      Vector // Nil when no embedding has been generated
	HasEmbedding   bool
	EmbeddingModel string
	EmbeddingDim   int
	PublishStatus  PublishStatus
	IsDeleted      bool

	// Popularity
	QueryCount int64
	ViewCount  int64

	// Timestamps
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// Eligible reports whether the record may appear in retrieval results
func (e *Experience) Eligible() bool {
	return e.PublishStatus == StatusPublished && !e.IsDeleted
}

// CanonicalText returns the text an embedding is derived from.
// Segments are joined with a blank line and empty segments are omitted.
func (e *Experience) CanonicalText() string {
	segments := []string{e.Title, e.Problem, e.RootCause, e.Solution, e.Context}
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, "\n\n")
}

// ValidateContent checks the user-supplied content fields
func (e *Experience) ValidateContent() error {
	if strings.TrimSpace(e.Title) == "" {
		return ErrMissingTitle
	}
	if strings.TrimSpace(e.Problem) == "" {
		return ErrMissingProblem
	}
	if strings.TrimSpace(e.Solution) == "" {
		return ErrMissingSolution
	}
	return nil
}

// Validate checks the record invariants that must hold on every write
func (e *Experience) Validate() error {
	if err := e.ValidateContent(); err != nil {
		return err
	}
	if !e.PublishStatus.Valid() {
		return ErrInvalidPublishStatus
	}
	return ValidateEmbeddingState(e.Embedding, e.HasEmbedding)
}

// ValidateEmbeddingState checks that the flag and the payload agree
func ValidateEmbeddingState(v Vector, has bool) error {
	if has != (len(v) > 0) {
		return ErrEmbeddingFlagMismatch
	}
	return nil
}

// NormalizeKeywords trims, lower-cases and de-duplicates keywords, preserving order
func NormalizeKeywords(keywords []string) []string {
	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
