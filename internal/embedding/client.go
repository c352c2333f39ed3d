// Package embedding provides a client for OpenAI-compatible embedding APIs.
// Enrichment workers use it to turn paper titles and abstracts into dense
// vectors for the Qdrant index.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/paperscope/discovery-service/internal/domain"
)

// Default values for the embedding client.
const (
	DefaultBaseURL    = "https://api.openai.com/v1"
	DefaultModel      = "text-embedding-3-small"
	DefaultDimensions = 1536
	DefaultTimeout    = 60 * time.Second
	DefaultMaxRetries = 3
	DefaultRetryDelay = 2 * time.Second

	// maxBatchSize is the largest input batch a single request may carry.
	maxBatchSize = 2048
)

// Embedder produces embedding vectors for batches of texts.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Model returns the embedding model identifier.
	Model() string
	// Dimensions returns the dimensionality of produced vectors.
	Dimensions() int
}

// Config holds the parameters for the embedding client.
type Config struct {
	// APIKey authenticates against the embedding API. Loaded from the
	// environment, never from config files.
	APIKey string
	// BaseURL is the API base URL (empty means the OpenAI default).
	BaseURL string
	// Model is the embedding model identifier.
	Model string
	// Dimensions is the expected vector dimensionality.
	Dimensions int
	// Timeout bounds each HTTP request.
	Timeout time.Duration
	// MaxRetries is the number of retries for transient errors.
	MaxRetries int
	// RetryDelay is the base delay between retries.
	RetryDelay time.Duration
}

// applyDefaults fills in zero values with defaults.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Dimensions <= 0 {
		c.Dimensions = DefaultDimensions
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	// MaxRetries of 0 means default; use a negative value to disable retries.
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
}

// embedRequest is the OpenAI embeddings API request body.
type embedRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	EncodingFormat string   `json:"encoding_format"`
}

// embedResponse is the OpenAI embeddings API response body.
type embedResponse struct {
	Data  []embedDatum `json:"data"`
	Model string       `json:"model"`
	Usage embedUsage   `json:"usage"`
}

// embedDatum is a single embedding in the response.
type embedDatum struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

// embedUsage contains token usage information.
type embedUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// apiErrorResponse is the OpenAI-style error envelope.
type apiErrorResponse struct {
	Error apiErrorDetail `json:"error"`
}

type apiErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// Compile-time check that Client implements Embedder.
var _ Embedder = (*Client)(nil)

// Client calls an OpenAI-compatible /embeddings endpoint over HTTP.
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	model      string
	dimensions int
	maxRetries int
	retryDelay time.Duration
}

// NewClient creates a new embedding client.
func NewClient(cfg Config) *Client {
	cfg.applyDefaults()

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
	}
}

// Model returns the embedding model identifier.
func (c *Client) Model() string {
	return c.model
}

// Dimensions returns the dimensionality of produced vectors.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// Embed returns one vector per input text, in input order. Transient errors
// (429, 5xx, network failures) are retried up to MaxRetries times with
// linearly increasing backoff.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, domain.NewValidationError("texts", "at least one input text is required")
	}
	if len(texts) > maxBatchSize {
		return nil, domain.NewValidationError("texts", fmt.Sprintf("batch of %d exceeds maximum of %d", len(texts), maxBatchSize))
	}

	req := embedRequest{
		Model:          c.model,
		Input:          texts,
		EncodingFormat: "float",
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("embedding: context cancelled during retry wait: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		vectors, err := c.doRequest(ctx, req)
		if err == nil {
			return vectors, nil
		}

		if !isTransient(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("embedding: exhausted %d retries: %w", c.maxRetries, lastErr)
}

// doRequest performs a single API request to the embeddings endpoint.
func (c *Client) doRequest(ctx context.Context, req embedRequest) ([][]float32, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("embedding: failed to marshal request: %w", err)
	}

	endpoint := c.baseURL + "/embeddings"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embedding: failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, domain.NewExternalAPIError("embedding", 0, "request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 100<<20))
	if err != nil {
		return nil, fmt.Errorf("embedding: failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseAPIError(resp.StatusCode, respBody)
	}

	var embedResp embedResponse
	if err := json.Unmarshal(respBody, &embedResp); err != nil {
		return nil, fmt.Errorf("embedding: failed to unmarshal response: %w", err)
	}

	if len(embedResp.Data) != len(req.Input) {
		return nil, fmt.Errorf("embedding: got %d vectors for %d inputs", len(embedResp.Data), len(req.Input))
	}

	// The API may return data out of order; index restores input alignment.
	sort.Slice(embedResp.Data, func(i, j int) bool {
		return embedResp.Data[i].Index < embedResp.Data[j].Index
	})

	vectors := make([][]float32, len(embedResp.Data))
	for i, d := range embedResp.Data {
		if c.dimensions > 0 && len(d.Embedding) != c.dimensions {
			return nil, fmt.Errorf("embedding: vector %d has %d dimensions, expected %d", d.Index, len(d.Embedding), c.dimensions)
		}
		vectors[i] = d.Embedding
	}

	return vectors, nil
}

// parseAPIError converts an error response into a domain ExternalAPIError.
func parseAPIError(statusCode int, body []byte) error {
	message := string(body)

	var errResp apiErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}

	if statusCode == http.StatusTooManyRequests {
		return domain.NewRateLimitError("embedding", 0)
	}

	return domain.NewExternalAPIError("embedding", statusCode, message, nil)
}

// isTransient reports whether the error may succeed on retry.
func isTransient(err error) bool {
	if errors.Is(err, domain.ErrRateLimited) {
		return true
	}
	var apiErr *domain.ExternalAPIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 0 || apiErr.StatusCode >= 500
	}
	return false
}
