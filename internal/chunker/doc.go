// Package chunker splits file text into overlapping fixed-size windows for
// embedding and search.
//
// The chunker is the documented fallback splitter: it makes no attempt at
// language-aware chunk boundaries. Each window carries its byte-offset
// derived id, start/end line numbers and a language tag inferred from the
// file extension.
//
// # Usage
//
//	c := chunker.New(chunker.WithChunkSize(1000), chunker.WithOverlap(200))
//	docs := c.Chunk(fileText, "internal/server.go")
//
// Windows advance by chunkSize - overlap characters. Windows shorter than
// MinChunkLen are dropped as noise, so empty and near-empty files yield zero
// chunks. Chunking is a pure function of its input: re-running it over
// unchanged text produces documents with identical ids, which keeps upserts
// into the vector store idempotent.
package chunker
