// Package embedder generates vector embeddings through an external,
// rate-limited provider.
//
// The package exposes a single Embedder interface backed by HTTPProvider,
// which speaks the OpenAI-compatible /embeddings wire format. Which endpoint
// is used is decided entirely by injected Credentials (API key, base URL,
// model); the engine itself has no opinion about providers.
//
// # Degradation over failure
//
// EmbedBatch never lets a provider failure escape the batch boundary. Each
// sub-batch is retried with exponential backoff; when retries are exhausted
// the affected texts come back as empty vectors and the caller stores them
// anyway, keeping the chunks keyword-searchable. CheckAvailability gives
// bulk callers a one-shot probe so an entire indexing run can commit to
// vector or text-only mode up front instead of failing file by file.
//
// # Pacing and caching
//
// Calls are paced by a token-bucket limiter derived from a requests-per-
// minute cap, and results are cached in a bounded LRU keyed by the SHA-256
// of the text, so re-indexing unchanged content rarely reaches the network.
package embedder
