package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrProviderFailed wraps embedding provider errors.
var ErrProviderFailed = errors.New("embedding provider failed")

const defaultEmbeddingsPath = "/v1/embeddings"

// HTTPEmbedder calls an OpenAI-compatible embeddings endpoint. It performs no
// retries; failure handling lives in the batcher and synchronizer so this
// stays a stateless adapter.
type HTTPEmbedder struct {
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	httpClient *http.Client
	cache      *Cache
}

// NewHTTPEmbedder creates an embedder against baseURL (e.g.
// "https://api.openai.com"). cacheSize <= 0 selects the default cache size.
func NewHTTPEmbedder(baseURL, apiKey, model string, dimensions, cacheSize int, timeout time.Duration) *HTTPEmbedder {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPEmbedder{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		dimensions: dimensions,
		httpClient: &http.Client{Timeout: timeout},
		cache:      NewCache(cacheSize),
	}
}

// Embed returns the embedding for a single text.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch returns embeddings for texts in input order. Cached texts are
// served locally; only misses are sent to the provider.
func (e *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors := make([][]float32, len(texts))
	missing := make([]int, 0, len(texts))
	for i, text := range texts {
		if vec, ok := e.cache.Get(HashText(text)); ok {
			vectors[i] = vec
		} else {
			missing = append(missing, i)
		}
	}
	if len(missing) == 0 {
		return vectors, nil
	}

	request := make([]string, len(missing))
	for i, idx := range missing {
		request[i] = texts[idx]
	}
	fetched, err := e.callAPI(ctx, request)
	if err != nil {
		return nil, err
	}
	if len(fetched) != len(missing) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrProviderFailed, len(fetched), len(missing))
	}
	for i, idx := range missing {
		vectors[idx] = fetched[i]
		e.cache.Set(HashText(texts[idx]), fetched[i])
	}
	return vectors, nil
}

func (e *HTTPEmbedder) callAPI(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(map[string]interface{}{
		"input": texts,
		"model": e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+defaultEmbeddingsPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", ErrProviderFailed, resp.StatusCode, string(b))
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	vectors := make([][]float32, len(texts))
	for _, data := range apiResp.Data {
		if data.Index < 0 || data.Index >= len(texts) {
			return nil, fmt.Errorf("%w: out-of-range index %d in response", ErrProviderFailed, data.Index)
		}
		vectors[data.Index] = data.Embedding
	}
	for i, vec := range vectors {
		if vec == nil {
			return nil, fmt.Errorf("%w: missing embedding for input %d", ErrProviderFailed, i)
		}
	}
	return vectors, nil
}

// Dimensions returns the configured embedding dimension.
func (e *HTTPEmbedder) Dimensions() int {
	return e.dimensions
}

// Close releases idle connections.
func (e *HTTPEmbedder) Close() error {
	e.httpClient.CloseIdleConnections()
	return nil
}

// Ping verifies the provider is reachable by embedding a trivial input.
func (e *HTTPEmbedder) Ping(ctx context.Context) error {
	_, err := e.Embed(ctx, "ping")
	return err
}
