package vecindex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hyperjump/soroe/internal/models"
)

// ErrIndexUnavailable wraps vector index provider errors.
var ErrIndexUnavailable = errors.New("vector index unavailable")

// HTTPIndex is a JSON REST adapter for a hosted vector index. It performs no
// retries; the synchronizer owns retry and backoff policy.
type HTTPIndex struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPIndex creates an adapter against baseURL.
func NewHTTPIndex(baseURL, apiKey string, timeout time.Duration) *HTTPIndex {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPIndex{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Upsert writes documents to the index in one provider call.
func (x *HTTPIndex) Upsert(ctx context.Context, docs []*models.VectorDocument) error {
	if len(docs) == 0 {
		return nil
	}
	return x.post(ctx, "/vectors/upsert", map[string]interface{}{"vectors": docs}, nil)
}

// Delete removes the given vector IDs in one provider call.
func (x *HTTPIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return x.post(ctx, "/vectors/delete", map[string]interface{}{"ids": ids}, nil)
}

// Stats describes the remote index.
func (x *HTTPIndex) Stats(ctx context.Context) (*IndexStats, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, x.baseURL+"/stats", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	x.setHeaders(req)
	resp, err := x.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", ErrIndexUnavailable, resp.StatusCode, string(b))
	}
	var stats IndexStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("decode stats: %w", err)
	}
	return &stats, nil
}

func (x *HTTPIndex) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, x.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	x.setHeaders(req)

	resp, err := x.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: status %d: %s", ErrIndexUnavailable, resp.StatusCode, string(b))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (x *HTTPIndex) setHeaders(req *http.Request) {
	if x.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+x.apiKey)
	}
}

// Close releases idle connections.
func (x *HTTPIndex) Close() error {
	x.httpClient.CloseIdleConnections()
	return nil
}
