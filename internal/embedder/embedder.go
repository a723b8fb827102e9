package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/experience-mcp/pkg/types"
)

// Common errors
var (
	ErrEmbeddingUnavailable   = errors.New("embedding provider not configured")
	ErrEmbeddingRequestFailed = errors.New("embedding request failed")
	ErrEmptyInput             = errors.New("text cannot be empty")
	ErrUnsupportedProvider    = errors.New("unsupported embedding provider")
)

// Embedder turns text into fixed-length vectors and reports readiness
type Embedder interface {
	// IsAvailable performs a cheap readiness check. It never fails; any
	// problem is reported as false.
	IsAvailable(ctx context.Context) bool

	// GenerateEmbedding returns a vector of Dimension() length for text
	GenerateEmbedding(ctx context.Context, text string) (types.Vector, error)

	// Dimension returns the embedding dimension for this provider
	Dimension() int

	// Provider returns the provider name
	Provider() string

	// Model returns the model name
	Model() string

	// Close releases any resources held by the embedder
	Close() error
}

// Cache provides in-memory LRU caching of vectors by content hash
type Cache struct {
	cache *lru.Cache[string, types.Vector]
}

// NewCache creates a new embedding cache with LRU eviction
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = DefaultCacheSize
	}
	cache, err := lru.New[string, types.Vector](maxLen)
	if err != nil {
		cache, _ = lru.New[string, types.Vector](DefaultCacheSize)
	}
	return &Cache{
		cache: cache,
	}
}

// Get retrieves a copy of a cached vector
func (c *Cache) Get(hash string) (types.Vector, bool) {
	v, ok := c.cache.Get(hash)
	if !ok {
		return nil, false
	}
	return v.Clone(), true
}

// Set stores a copy of the vector
func (c *Cache) Set(hash string, v types.Vector) {
	c.cache.Add(hash, v.Clone())
}

// Size returns the current cache size
func (c *Cache) Size() int {
	return c.cache.Len()
}

// Clear empties the cache
func (c *Cache) Clear() {
	c.cache.Purge()
}

// ComputeHash computes SHA-256 hash of text for caching
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
