package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const defaultPriceURL = "https://indexer.ref.finance"

// Client fetches USD token prices from the price indexer
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultPriceURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
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
		return fmt.Sprintf("price indexer http %d", e.StatusCode)
	}
	return fmt.Sprintf("price indexer http %d: %s", e.StatusCode, b)
}

type tokenPrice struct {
	Price   string `json:"price"`
	Symbol  string `json:"symbol"`
	Decimal int    `json:"decimal"`
}

// ListPrices returns the USD price of every token the indexer tracks.
// Entries with an unparseable price are skipped.
func (c *Client) ListPrices(ctx context.Context) (map[string]decimal.Decimal, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/list-token-price", nil)
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

	var raw map[string]tokenPrice
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode price response: %w", err)
	}

	out := make(map[string]decimal.Decimal, len(raw))
	for id, p := range raw {
		d, err := decimal.NewFromString(strings.TrimSpace(p.Price))
		if err != nil || d.IsNegative() {
			continue
		}
		out[id] = d
	}
	return out, nil
}
