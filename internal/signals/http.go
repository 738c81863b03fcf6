package signals

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// HTTPProvider reads a score from an external endpoint. The endpoint gets the
// symbol as a query parameter and answers {"score": <float>}; bounds are
// enforced by the Set and availability by Guard, so this stays a thin client.
type HTTPProvider struct {
	endpoint string
	client   *http.Client
}

func NewHTTPProvider(endpoint string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPProvider{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (p *HTTPProvider) Score(ctx context.Context, symbol string) (float64, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return 0, fmt.Errorf("invalid provider endpoint: %w", err)
	}
	q := u.Query()
	q.Set("symbol", symbol)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("provider returned %s", resp.Status)
	}

	var body struct {
		Score float64 `json:"score"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body); err != nil {
		return 0, fmt.Errorf("malformed provider response: %w", err)
	}
	return body.Score, nil
}
