package types

import "errors"

// Domain errors for type validation
var (
	ErrMissingTitle          = errors.New("title is required")
	ErrMissingProblem        = errors.New("problem description is required")
	ErrMissingSolution       = errors.New("solution is required")
	ErrInvalidPublishStatus  = errors.New("invalid publish status")
	ErrEmbeddingFlagMismatch = errors.New("has_embedding disagrees with embedding payload")
	ErrInvalidSortMode       = errors.New("invalid sort mode")
)
