// Package provider implements the market-data client used by the poller:
// current quotes, option snapshots, and daily historical bars.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// APIError represents a provider error with status code and response body
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// Client is an HTTP market-data client. Every call is best-effort: callers
// are expected to treat failures as "no data" rather than retrying.
type Client struct {
	client  *http.Client
	apiKey  string
	baseURL string
	sandbox bool
	timeout time.Duration
}

const defaultTimeout = 6 * time.Second

// NewClient creates a market-data client with default settings.
func NewClient(apiKey string, sandbox bool) *Client {
	return NewClientWithBaseURL(apiKey, sandbox, "")
}

// NewClientWithBaseURL creates a client with an optional custom baseURL
// (tests, proxies).
func NewClientWithBaseURL(apiKey string, sandbox bool, baseURL string) *Client {
	if baseURL == "" {
		if sandbox {
			baseURL = "https://sandbox.tradier.com/v1"
		} else {
			baseURL = "https://api.tradier.com/v1"
		}
	}
	// Normalize once
	baseURL = strings.TrimRight(baseURL, "/")

	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		sandbox: sandbox,
		client:  &http.Client{Timeout: defaultTimeout},
		timeout: defaultTimeout,
	}
}

// WithHTTPClient allows overriding the HTTP client (tests, custom transport).
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.client = hc
	}
	return c
}

// WithTimeout sets the per-request timeout duration.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	if timeout > 0 {
		c.timeout = timeout
		if c.client != nil {
			c.client.Timeout = timeout
		}
	}
	return c
}

// ============ API response structures ============

// Handle single-object vs array responses from the provider
type singleOrArray[T any] []T

func (s *singleOrArray[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '[' {
		return json.Unmarshal(b, (*[]T)(s))
	}
	var one T
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	*s = append(*s, one)
	return nil
}

// Quote is a current quote for an underlying ticker.
type Quote struct {
	Symbol string  `json:"symbol"`
	Last   float64 `json:"last"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Volume int64   `json:"volume"`
}

// OptionSnapshot is a current quote for a fully-qualified option contract.
type OptionSnapshot struct {
	Symbol       string  `json:"symbol"`
	Bid          float64 `json:"bid"`
	Ask          float64 `json:"ask"`
	Last         float64 `json:"last"`
	OpenInterest int64   `json:"open_interest"`
	Volume       int64   `json:"volume"`
}

// Mid returns the bid/ask midpoint, the contract's mark price.
func (o *OptionSnapshot) Mid() float64 {
	return (o.Bid + o.Ask) / 2
}

type quotesResponse struct {
	Quotes struct {
		Quote singleOrArray[Quote] `json:"quote"`
	} `json:"quotes"`
}

type optionQuotesResponse struct {
	Quotes struct {
		Quote singleOrArray[OptionSnapshot] `json:"quote"`
	} `json:"quotes"`
}

// DailyBar is one day of aggregate price history.
type DailyBar struct {
	Date  string  `json:"date"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

type historyResponse struct {
	History struct {
		Day singleOrArray[DailyBar] `json:"day"`
	} `json:"history"`
}

// GetQuote returns the current quote for a ticker.
func (c *Client) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	params := url.Values{}
	params.Set("symbols", symbol)

	var resp quotesResponse
	if err := c.get(ctx, "/markets/quotes", params, &resp); err != nil {
		return nil, err
	}
	if len(resp.Quotes.Quote) == 0 {
		return nil, fmt.Errorf("no quote returned for %s", symbol)
	}
	q := resp.Quotes.Quote[0]
	return &q, nil
}

// GetOptionSnapshot returns the current snapshot for an OCC option symbol.
func (c *Client) GetOptionSnapshot(ctx context.Context, occSymbol string) (*OptionSnapshot, error) {
	params := url.Values{}
	params.Set("symbols", occSymbol)

	var resp optionQuotesResponse
	if err := c.get(ctx, "/markets/quotes", params, &resp); err != nil {
		return nil, err
	}
	if len(resp.Quotes.Quote) == 0 {
		return nil, fmt.Errorf("no snapshot returned for %s", occSymbol)
	}
	s := resp.Quotes.Quote[0]
	return &s, nil
}

// GetDailyHistory returns daily bars for a ticker over [start, end].
func (c *Client) GetDailyHistory(ctx context.Context, symbol string, start, end time.Time) ([]DailyBar, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", "daily")
	params.Set("start", start.Format("2006-01-02"))
	params.Set("end", end.Format("2006-01-02"))

	var resp historyResponse
	if err := c.get(ctx, "/markets/history", params, &resp); err != nil {
		return nil, err
	}
	return resp.History.Day, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}
