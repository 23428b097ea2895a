package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Common errors
var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrProviderFailed = errors.New("embedding provider failed")
	ErrNoProvider     = errors.New("no embedding provider configured")
)

// Embedder generates vector embeddings for batches of text.
//
// EmbedBatch degrades rather than fails: texts whose embedding could not be
// produced after retries come back as empty (zero-length) vectors, aligned
// by position with the input. The only errors returned are input validation
// failures and context cancellation.
type Embedder interface {
	// EmbedBatch returns one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// CheckAvailability performs one lightweight probe call. Used as a
	// pre-flight gate before a bulk indexing run.
	CheckAvailability(ctx context.Context) bool

	// Dimension returns the embedding dimension for this provider
	Dimension() int

	// Provider returns the provider name
	Provider() string

	// Model returns the model name
	Model() string

	// Close releases any resources held by the embedder
	Close() error
}

// Credentials selects the external embedding provider. Provider selection is
// host configuration, not this subsystem's concern.
type Credentials struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Cache provides in-memory LRU caching of embeddings keyed by content hash
type Cache struct {
	cache *lru.Cache[string, []float32]
}

// NewCache creates an embedding cache with LRU eviction
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = 10000
	}
	cache, err := lru.New[string, []float32](maxLen)
	if err != nil {
		// Only possible with a non-positive size
		cache, _ = lru.New[string, []float32](10000)
	}
	return &Cache{cache: cache}
}

// Get retrieves a copy of a cached vector. A copy is returned so caller
// mutations cannot pollute the cache.
func (c *Cache) Get(hash string) ([]float32, bool) {
	vec, ok := c.cache.Get(hash)
	if !ok {
		return nil, false
	}

	cp := make([]float32, len(vec))
	copy(cp, vec)
	return cp, true
}

// Set stores a vector, evicting the least recently used entry at capacity
func (c *Cache) Set(hash string, vec []float32) {
	c.cache.Add(hash, vec)
}

// Size returns the current cache size
func (c *Cache) Size() int {
	return c.cache.Len()
}

// Clear empties the cache
func (c *Cache) Clear() {
	c.cache.Purge()
}

// ComputeHash computes the SHA-256 hash of text for cache keying
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// validateBatch rejects batches the provider contract cannot serve
func validateBatch(texts []string) error {
	if len(texts) == 0 {
		return fmt.Errorf("%w: no texts provided", ErrInvalidInput)
	}
	return nil
}
