package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hyperjump/soroe/internal/models"
)

// ErrSourceUnavailable wraps record source transport failures.
var ErrSourceUnavailable = errors.New("record source unavailable")

// HTTPSource fetches the order snapshot from a JSON endpoint returning an
// array of orders.
type HTTPSource struct {
	url        string
	httpClient *http.Client
}

// NewHTTPSource creates a source reading from url.
func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPSource{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// FetchAll retrieves the full snapshot and stamps each order's FetchedAt.
func (s *HTTPSource) FetchAll(ctx context.Context) ([]*models.Order, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", ErrSourceUnavailable, resp.StatusCode, string(b))
	}

	var orders []*models.Order
	if err := json.NewDecoder(resp.Body).Decode(&orders); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	now := time.Now()
	for _, o := range orders {
		o.FetchedAt = now
	}
	return orders, nil
}
