// Package usvendor implements the US-market provider: a raw net/http
// client against Yahoo Finance's public v8/v7 JSON endpoints, manual
// struct decode, no HTTP client library.
package usvendor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/seenimoa/tradingagents/internal/dataprovider"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// Vendor fetches US-market data from Yahoo Finance's public endpoints.
type Vendor struct {
	client *http.Client
}

// New creates the US vendor adapter.
func New() *Vendor {
	return &Vendor{client: &http.Client{Timeout: 15 * time.Second}}
}

func (v *Vendor) Name() string          { return "yfinance" }
func (v *Vendor) MarketScope() []string { return []string{"US"} }

func (v *Vendor) Fetch(ctx context.Context, cap dataprovider.Capability, params dataprovider.QueryParams) (json.RawMessage, error) {
	switch cap {
	// The v7 quote document doubles as the company profile: name,
	// exchange, currency, and listing metadata ride along with the price.
	case dataprovider.CapQuote, dataprovider.CapProfile:
		return v.fetchQuote(ctx, params.Ticker)
	case dataprovider.CapHistorical:
		return v.fetchChart(ctx, params.Ticker)
	default:
		return nil, fmt.Errorf("usvendor: capability %s not supported", cap)
	}
}

func (v *Vendor) fetchQuote(ctx context.Context, ticker string) (json.RawMessage, error) {
	u := fmt.Sprintf("https://query1.finance.yahoo.com/v7/finance/quote?symbols=%s", url.QueryEscape(ticker))
	return v.doGet(ctx, u)
}

func (v *Vendor) fetchChart(ctx context.Context, ticker string) (json.RawMessage, error) {
	u := fmt.Sprintf("https://query1.finance.yahoo.com/v8/finance/chart/%s?range=1y&interval=1d", url.QueryEscape(ticker))
	return v.doGet(ctx, u)
}

func (v *Vendor) doGet(ctx context.Context, u string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("usvendor GET %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("usvendor: HTTP %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return json.RawMessage(body), nil
}
