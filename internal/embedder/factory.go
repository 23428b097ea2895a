package embedder

import (
	"os"
	"strconv"
)

// Environment variables consulted by NewFromEnv
const (
	EnvAPIKey    = "QUARRY_EMBEDDING_API_KEY"
	EnvBaseURL   = "QUARRY_EMBEDDING_BASE_URL"
	EnvModel     = "QUARRY_EMBEDDING_MODEL"
	EnvBatchSize = "QUARRY_EMBEDDING_BATCH"
	EnvRPM       = "QUARRY_EMBEDDING_RPM"

	// Fallback provider keys checked when no QUARRY_ variables are set
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
)

// CredentialsFromEnv reads provider selection from the environment.
// Returns ok=false when nothing is configured; the caller then runs in
// text-only mode.
func CredentialsFromEnv() (Credentials, bool) {
	creds := Credentials{
		APIKey:  os.Getenv(EnvAPIKey),
		BaseURL: os.Getenv(EnvBaseURL),
		Model:   os.Getenv(EnvModel),
	}

	if creds.APIKey == "" && creds.BaseURL == "" {
		creds.APIKey = os.Getenv(EnvOpenAIAPIKey)
	}

	return creds, creds.APIKey != "" || creds.BaseURL != ""
}

// NewFromEnv creates an embedder from environment configuration. Returns
// (nil, nil) when no provider is configured: a nil embedder is not an
// error, it selects text-only indexing.
func NewFromEnv() (Embedder, error) {
	creds, ok := CredentialsFromEnv()
	if !ok {
		return nil, nil
	}

	opts := []ProviderOption{WithCache(NewCache(10000))}

	if v := os.Getenv(EnvBatchSize); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts = append(opts, WithBatchSize(n))
		}
	}

	if v := os.Getenv(EnvRPM); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts = append(opts, WithRequestsPerMinute(n))
		}
	}

	return NewHTTPProvider(creds, opts...)
}
