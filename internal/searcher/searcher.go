// Package searcher answers retrieval queries, embedding the query text and
// degrading to keyword search when no provider can serve it.
package searcher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/quarrydev/quarry/internal/store"
	"github.com/quarrydev/quarry/pkg/types"
)

const (
	// DefaultLimit is the result count when the caller does not specify one
	DefaultLimit = 10

	// MaxLimit caps the result count
	MaxLimit = 50
)

// Mode selects the retrieval strategy
type Mode string

const (
	// ModeAuto uses vectors when a provider is configured and reachable,
	// falling back to keyword search otherwise
	ModeAuto Mode = "auto"
	// ModeVector forces semantic search
	ModeVector Mode = "vector"
	// ModeKeyword forces keyword search
	ModeKeyword Mode = "keyword"
)

// ErrVectorUnavailable is returned when vector search is forced but no
// embedding provider is configured or the query could not be embedded.
var ErrVectorUnavailable = errors.New("vector search unavailable")

// Embedder is the slice of the embedding client needed to embed queries
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Searcher answers retrieval queries against the store. embedder may be nil,
// which pins every query to keyword mode.
type Searcher struct {
	store    *store.Store
	embedder Embedder
}

// New creates a Searcher
func New(st *store.Store, embedder Embedder) *Searcher {
	return &Searcher{store: st, embedder: embedder}
}

// Search runs a query in the given mode. A blank query is rejected, a
// non-positive limit takes the default, and limits above MaxLimit are
// clamped.
func (s *Searcher) Search(ctx context.Context, query string, mode Mode, limit int) ([]types.ScoredDocument, error) {
	if strings.TrimSpace(query) == "" {
		return nil, types.ErrEmptyQuery
	}

	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if mode == "" {
		mode = ModeAuto
	}

	switch mode {
	case ModeKeyword:
		return s.store.KeywordSearch(ctx, query, limit), nil

	case ModeVector:
		vector, err := s.embedQuery(ctx, query)
		if err != nil {
			return nil, err
		}
		return s.store.Search(ctx, vector, limit), nil

	case ModeAuto:
		if s.embedder == nil {
			return s.store.KeywordSearch(ctx, query, limit), nil
		}
		vector, err := s.embedQuery(ctx, query)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			// Provider trouble degrades the query, not the request
			return s.store.KeywordSearch(ctx, query, limit), nil
		}
		return s.store.Search(ctx, vector, limit), nil

	default:
		return nil, fmt.Errorf("unknown search mode %q", mode)
	}
}

// embedQuery embeds a single query string
func (s *Searcher) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if s.embedder == nil {
		return nil, ErrVectorUnavailable
	}

	vectors, err := s.embedder.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, ErrVectorUnavailable
	}
	return vectors[0], nil
}
