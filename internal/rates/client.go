package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// HTTPClient talks to the free-currency API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type ratePayload struct {
	Data map[string]decimal.Decimal `json:"data"`
}

func (c *HTTPClient) Latest(ctx context.Context, baseCurrency string) (map[string]decimal.Decimal, error) {
	return c.fetch(ctx, "/v1/latest", url.Values{"base_currency": {baseCurrency}})
}

func (c *HTTPClient) Historical(ctx context.Context, baseCurrency string, date time.Time) (map[string]decimal.Decimal, error) {
	return c.fetch(ctx, "/v1/historical", url.Values{
		"base_currency": {baseCurrency},
		"date":          {date.UTC().Format("2006-01-02")},
	})
}

func (c *HTTPClient) fetch(ctx context.Context, path string, query url.Values) (map[string]decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rate provider returned %d", resp.StatusCode)
	}

	var payload ratePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	return payload.Data, nil
}
