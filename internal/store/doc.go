// Package store is the durable vector store behind the retrieval engine.
//
// The in-memory document map is the source of truth; SQLite is a write-
// behind journal of it. Mutations mark documents and file records dirty and
// arm a debounce timer, so bulk indexing coalesces into a handful of
// transactions instead of one write per chunk. Close flushes synchronously,
// and a corrupt database on startup is logged and discarded rather than
// crashing the host.
//
// Search is a brute-force cosine scan over the resident documents, walked
// in fixed-size slices with a cooperative yield between them. KeywordSearch
// provides the text-only fallback used when no embedding provider is
// configured.
//
// The SQLite driver is selected at build time: the cgosqlite tag picks
// mattn/go-sqlite3, the default build the pure Go modernc.org/sqlite.
package store
