// Package types provides shared type definitions for the Quarry indexing engine.
//
// This package defines the domain types passed between the chunker, embedder,
// vector store and indexing coordinator.
//
// # Core Types
//
// Document is one indexed chunk: a bounded span of file text plus its
// embedding vector and provenance metadata:
//
//	doc := &types.Document{
//	    ID:        "internal/server.go::2400",
//	    Text:      windowText,
//	    Vector:    embedding,
//	    FilePath:  "internal/server.go",
//	    StartLine: 81,
//	    EndLine:   112,
//	}
//
// A Document with an empty Vector is excluded from vector search but remains
// eligible for keyword search. This is the degraded ("text-only") mode used
// when the embedding provider is unavailable.
//
// FileRecord tracks per-file indexing metadata. A file is re-chunked and
// re-embedded iff its newly computed content hash differs from the stored
// ContentHash; this is the sole correctness gate for incremental indexing.
//
// # Results
//
// IndexResult summarizes one indexing run with the minimum information a
// caller needs to explain the outcome: indexed/skipped/error counts plus
// whether embeddings were available for the run.
//
// ScoredDocument pairs a Document with its search score. Vector scores are
// cosine similarities in [-1, 1]; keyword scores are distinct-term presence
// counts.
package types
