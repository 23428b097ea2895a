package types

import (
	"errors"
	"fmt"
	"time"
)

// ChunkType describes how a document's span was derived
type ChunkType string

// ChunkWindow is a fixed-size sliding window over file text
const ChunkWindow ChunkType = "window"

// Document is one indexed chunk of a workspace file
type Document struct {
	// Identification. Derived from file path and byte offset so the id is
	// stable across re-indexing of unchanged content.
	ID string

	// Content. Used for both embedding and keyword scoring.
	Text string

	// Vector is the embedding. Empty when embeddings were unavailable at
	// indexing time; such documents are skipped by vector search but stay
	// eligible for keyword search.
	Vector []float32

	// Provenance
	FilePath  string
	StartLine int
	EndLine   int
	ChunkType ChunkType
	Language  string
}

// DocumentID builds the canonical document id for a chunk at the given
// byte offset within a file.
func DocumentID(filePath string, offset int) string {
	return fmt.Sprintf("%s::%d", filePath, offset)
}

// HasVector reports whether the document participates in vector search
func (d *Document) HasVector() bool {
	return len(d.Vector) > 0
}

// Validate performs basic integrity checks on the document
func (d *Document) Validate() error {
	if d.ID == "" {
		return errors.New("document id cannot be empty")
	}

	if d.Text == "" {
		return errors.New("document text cannot be empty")
	}

	if d.FilePath == "" {
		return errors.New("document file path cannot be empty")
	}

	if d.StartLine <= 0 || d.EndLine <= 0 {
		return errors.New("line numbers must be positive")
	}

	if d.StartLine > d.EndLine {
		return errors.New("start line must be before or equal to end line")
	}

	return nil
}

// FileRecord tracks indexing metadata for one workspace file
type FileRecord struct {
	FilePath      string
	ContentHash   string
	ChunkCount    int
	LastIndexedAt time.Time
}
