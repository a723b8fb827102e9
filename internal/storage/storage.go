package storage

import (
	"context"

	"github.com/dshills/experience-mcp/pkg/types"
)

// Storage defines the record store consumed by the retrieval engine
type Storage interface {
	// Experience operations
	CreateExperience(ctx context.Context, exp *types.Experience) error
	GetExperience(ctx context.Context, id string) (*types.Experience, error)
	UpdateContent(ctx context.Context, exp *types.Experience) error
	SetPublishStatus(ctx context.Context, id string, status types.PublishStatus) error
	SoftDelete(ctx context.Context, id string) error
	Restore(ctx context.Context, id string) error

	// Retrieval operations
	ListEligible(ctx context.Context) ([]*types.Experience, error)
	ListMissingEmbeddings(ctx context.Context, limit, offset int) ([]*types.Experience, error)

	// Embedding operations. Both are conditional on the current has_embedding
	// value and report whether a row was written.
	SetEmbedding(ctx context.Context, id string, vector types.Vector, model string) (bool, error)
	ClearEmbedding(ctx context.Context, id string) (bool, error)

	// Counter operations
	IncrementQueryCount(ctx context.Context, ids ...string) error
	IncrementViewCount(ctx context.Context, id string) error

	// Status operations
	GetStatus(ctx context.Context) (*Status, error)

	// Database operations
	Close() error
}

// Status contains statistics about the record store
type Status struct {
	Total             int
	Published         int
	Drafts            int
	Deleted           int
	Eligible          int
	Embedded          int
	MissingEmbeddings int            // Eligible records without an embedding
	Models            map[string]int // Embedded records per model
	SchemaVersion     string
	Driver            string
	BuildMode         string
}
