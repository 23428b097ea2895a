package types

import "time"

// ScoredDocument pairs a document with its search score
type ScoredDocument struct {
	Document *Document
	Score    float64
}

// IndexResult summarizes one indexing run
type IndexResult struct {
	// RunID uniquely identifies the run in progress reports and logs
	RunID string

	// Counts accumulated over the run. Indexed counts files whose chunks
	// were replaced; Skipped counts files whose fingerprint was unchanged;
	// Errors counts files that failed to read, chunk or store.
	Indexed int
	Skipped int
	Errors  int

	// EmbeddingsAvailable records the pre-flight decision for the run.
	// When false the run proceeded in text-only mode and every stored
	// document has an empty vector.
	EmbeddingsAvailable bool

	// Cancelled is set when the run was stopped cooperatively; counts
	// reflect the files completed before the stop.
	Cancelled bool

	Duration      time.Duration
	ErrorMessages []string
}
