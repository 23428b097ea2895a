// Package mcp exposes the retrieval engine to agents over the Model Context
// Protocol.
//
// Four tools are registered on a stdio server: index_workspace runs the
// indexing coordinator, search_code answers queries in auto, vector, or
// keyword mode, get_status reports index size and indexer state, and
// clear_index drops the corpus. Responses are indented JSON; protocol
// failures are MCPError values carrying JSON-RPC error codes.
//
// search_code accepts an optional session_id. Sessions live in a bounded
// TTL cache, and an identical query repeated within a live session is
// answered from it without touching the store.
//
// Stdout belongs to the protocol; all logging must go to stderr.
package mcp
