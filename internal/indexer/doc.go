// Package indexer coordinates workspace indexing runs.
//
// A run is a small state machine: scanning enumerates the workspace,
// preflight probes the embedding provider once to decide between vector and
// text-only mode, and indexing fans file reads out to a bounded worker pool.
// Workers only read, fingerprint, and chunk; everything that mutates the
// store or talks to the embedding provider happens on the single
// coordinating goroutine, which keeps the write path strictly ordered
// (remove stale chunks, upsert replacements, then record the file's
// fingerprint).
//
// Unchanged files are skipped by comparing content fingerprints against a
// snapshot taken at the start of the run. Per-file read errors are counted
// and reported but never abort the run; only a failed workspace scan does.
// Cancellation is cooperative at file granularity and preserves everything
// already committed.
package indexer
