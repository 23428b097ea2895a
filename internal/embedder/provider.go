package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Provider defaults
const (
	DefaultBaseURL   = "https://api.openai.com/v1"
	DefaultModel     = "text-embedding-3-small"
	DefaultDimension = 1536

	// Batch limits
	DefaultBatchSize = 5
	MaxBatchSize     = 100

	// Rate limiting
	DefaultRequestsPerMinute = 60

	// Retry configuration
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0
)

// HTTPProvider implements Embedder against any endpoint speaking the
// OpenAI-compatible /embeddings wire format (OpenAI, Jina, Ollama gateways).
type HTTPProvider struct {
	creds      Credentials
	httpClient *http.Client
	cache      *Cache
	limiter    *rate.Limiter
	batchSize  int
	retry      RetryConfig
	dimension  int
}

// ProviderOption configures an HTTPProvider
type ProviderOption func(*HTTPProvider)

// WithBatchSize sets the number of texts sent per provider call
func WithBatchSize(n int) ProviderOption {
	return func(p *HTTPProvider) {
		if n > 0 && n <= MaxBatchSize {
			p.batchSize = n
		}
	}
}

// WithRequestsPerMinute derives the inter-call pacing from an RPM cap
func WithRequestsPerMinute(rpm int) ProviderOption {
	return func(p *HTTPProvider) {
		if rpm > 0 {
			p.limiter = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1)
		}
	}
}

// WithCache attaches an embedding cache
func WithCache(c *Cache) ProviderOption {
	return func(p *HTTPProvider) {
		p.cache = c
	}
}

// WithHTTPClient overrides the HTTP client, mainly for tests
func WithHTTPClient(client *http.Client) ProviderOption {
	return func(p *HTTPProvider) {
		if client != nil {
			p.httpClient = client
		}
	}
}

// WithRetryConfig overrides the retry/backoff behavior
func WithRetryConfig(cfg RetryConfig) ProviderOption {
	return func(p *HTTPProvider) {
		p.retry = cfg
	}
}

// WithDimension records the expected embedding dimension
func WithDimension(d int) ProviderOption {
	return func(p *HTTPProvider) {
		if d > 0 {
			p.dimension = d
		}
	}
}

// NewHTTPProvider creates an embedding client for the given credentials.
// At least one of APIKey or BaseURL must be set; a bare BaseURL is valid for
// local gateways that need no authentication.
func NewHTTPProvider(creds Credentials, opts ...ProviderOption) (*HTTPProvider, error) {
	if creds.APIKey == "" && creds.BaseURL == "" {
		return nil, ErrNoProvider
	}

	if creds.BaseURL == "" {
		creds.BaseURL = DefaultBaseURL
	}
	creds.BaseURL = strings.TrimRight(creds.BaseURL, "/")

	if creds.Model == "" {
		creds.Model = DefaultModel
	}

	p := &HTTPProvider{
		creds: creds,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter:   rate.NewLimiter(rate.Limit(float64(DefaultRequestsPerMinute)/60.0), 1),
		batchSize: DefaultBatchSize,
		retry:     DefaultRetryConfig(),
		dimension: DefaultDimension,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// EmbedBatch returns one vector per input text, in input order. Texts are
// sent to the provider in sub-batches of batchSize, paced by the rate
// limiter. A sub-batch that still fails after retries yields empty vectors
// for its texts; the error never crosses the batch boundary.
func (p *HTTPProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := validateBatch(texts); err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(texts))

	// Serve what we can from cache
	missing := make([]int, 0, len(texts))
	for i, text := range texts {
		if p.cache != nil {
			if vec, ok := p.cache.Get(ComputeHash(text)); ok {
				vectors[i] = vec
				continue
			}
		}
		missing = append(missing, i)
	}

	for start := 0; start < len(missing); start += p.batchSize {
		end := start + p.batchSize
		if end > len(missing) {
			end = len(missing)
		}
		batch := missing[start:end]

		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		batchTexts := make([]string, len(batch))
		for i, idx := range batch {
			batchTexts[i] = texts[idx]
		}

		embedded, err := retryWithBackoff(ctx, p.retry, func() ([][]float32, error) {
			return p.callAPI(ctx, batchTexts)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Degrade: the chunks in this batch keep empty vectors and
			// stay keyword-searchable
			continue
		}

		for i, idx := range batch {
			vectors[idx] = embedded[i]
			if p.cache != nil {
				p.cache.Set(ComputeHash(texts[idx]), embedded[i])
			}
		}
	}

	return vectors, nil
}

// CheckAvailability probes the provider with a single short request. It uses
// one attempt with a tight deadline so a bulk run can decide its mode up
// front without waiting through the retry schedule.
func (p *HTTPProvider) CheckAvailability(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := p.callAPI(probeCtx, []string{"ping"})
	return err == nil
}

// embeddingRequest is the OpenAI-compatible request body
type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

// embeddingResponse is the OpenAI-compatible response body
type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

// callAPI performs one provider call for a single sub-batch
func (p *HTTPProvider) callAPI(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embeddingRequest{
		Input: texts,
		Model: p.creds.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.creds.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if p.creds.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.creds.APIKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: api error %d: %s", ErrProviderFailed, resp.StatusCode, string(bodyBytes))
	}

	var apiResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	// Order preservation is a required contract with the provider
	if len(apiResp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrProviderFailed, len(apiResp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for i, data := range apiResp.Data {
		pos := data.Index
		if pos < 0 || pos >= len(vectors) {
			pos = i
		}
		vectors[pos] = data.Embedding
	}

	return vectors, nil
}

// Dimension returns the expected embedding dimension
func (p *HTTPProvider) Dimension() int {
	return p.dimension
}

// Provider returns the provider base URL's host as its name
func (p *HTTPProvider) Provider() string {
	return strings.TrimPrefix(strings.TrimPrefix(p.creds.BaseURL, "https://"), "http://")
}

// Model returns the configured model name
func (p *HTTPProvider) Model() string {
	return p.creds.Model
}

// Close releases idle connections
func (p *HTTPProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}
