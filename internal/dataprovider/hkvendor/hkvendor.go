// Package hkvendor implements the HK-market provider. Like cnvendor, it
// targets a documented minimal JSON shape — real HK vendor schemas are
// out of scope — using resty for request construction.
package hkvendor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	resty "github.com/go-resty/resty/v2"

	"github.com/seenimoa/tradingagents/internal/dataprovider"
)

// Vendor fetches HK market data from a configured aggregator endpoint.
type Vendor struct {
	baseURL string
	client  *resty.Client
}

// New creates the HK vendor adapter.
func New(baseURL string) *Vendor {
	return &Vendor{
		baseURL: baseURL,
		client:  resty.New().SetTimeout(15 * time.Second),
	}
}

func (v *Vendor) Name() string          { return "hk-aggregator" }
func (v *Vendor) MarketScope() []string { return []string{"HK"} }

func (v *Vendor) Fetch(ctx context.Context, cap dataprovider.Capability, params dataprovider.QueryParams) (json.RawMessage, error) {
	path, ok := endpointFor(cap)
	if !ok {
		return nil, fmt.Errorf("hkvendor: capability %s not supported", cap)
	}

	resp, err := v.client.R().
		SetContext(ctx).
		SetQueryParam("code", params.Ticker).
		Get(v.baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("hkvendor GET %s: %w", path, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("hkvendor: HTTP %d", resp.StatusCode())
	}
	return json.RawMessage(resp.Body()), nil
}

func endpointFor(cap dataprovider.Capability) (string, bool) {
	switch cap {
	case dataprovider.CapQuote:
		return "/hk/quote", true
	case dataprovider.CapHistorical:
		return "/hk/history", true
	case dataprovider.CapFundamentals:
		return "/hk/fundamentals", true
	case dataprovider.CapProfile:
		return "/hk/info", true
	case dataprovider.CapNews:
		return "/hk/news", true
	default:
		return "", false
	}
}
