package ref

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultIndexerURL = "https://indexer.ref.finance"

// IndexerClient reads cached pool state from the Ref indexer
type IndexerClient struct {
	BaseURL string
	HTTP    *http.Client
}

func NewIndexerClient(baseURL string, timeout time.Duration) *IndexerClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultIndexerURL
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &IndexerClient{
		BaseURL: baseURL,
		HTTP: &http.Client{
			Timeout: timeout,
		},
	}
}

type HTTPError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	b := strings.TrimSpace(string(e.Body))
	if b == "" {
		return fmt.Sprintf("indexer http %d", e.StatusCode)
	}
	return fmt.Sprintf("indexer http %d: %s", e.StatusCode, b)
}

// GetPool fetches one pool as the indexer last saw it
func (c *IndexerClient) GetPool(ctx context.Context, poolID string) (*RawPool, error) {
	if strings.TrimSpace(poolID) == "" {
		return nil, fmt.Errorf("pool_id is required")
	}

	q := url.Values{}
	q.Set("pool_id", poolID)

	u := c.BaseURL + "/get-pool?" + q.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("accept", "application/json")

	res, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(res.Body)
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: res.StatusCode, Body: body}
	}

	var out RawPool
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode indexer pool response: %w", err)
	}
	if out.ID == "" {
		out.ID = PoolIDString(poolID)
	}
	return &out, nil
}
