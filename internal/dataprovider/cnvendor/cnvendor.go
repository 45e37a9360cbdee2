// Package cnvendor implements CN-A market providers standing in for the
// tushare/akshare/baostock/tdx data sources referenced by
// internal/config's data_sources.default table. Concrete vendor HTTP
// schemas for these services are out of scope; this adapter implements
// the abstract Provider contract against a minimal documented JSON shape
// so the registry's dispatch, cache, and retry/breaker wrapping can be
// exercised end to end. Built with resty.
package cnvendor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	resty "github.com/go-resty/resty/v2"

	"github.com/seenimoa/tradingagents/internal/dataprovider"
)

// Source names the concrete CN-A data vendor being proxied.
type Source string

const (
	SourceTushare  Source = "tushare"
	SourceAkshare  Source = "akshare"
	SourceBaostock Source = "baostock"
	SourceTDX      Source = "tdx"
)

// Vendor fetches CN-A market data from one configured upstream.
type Vendor struct {
	source  Source
	baseURL string
	client  *resty.Client
}

// New creates a CN-A vendor adapter for the given source and base URL.
func New(source Source, baseURL string) *Vendor {
	return &Vendor{
		source:  source,
		baseURL: baseURL,
		client:  resty.New().SetTimeout(15 * time.Second),
	}
}

func (v *Vendor) Name() string          { return string(v.source) }
func (v *Vendor) MarketScope() []string { return []string{"CN-A"} }

func (v *Vendor) Fetch(ctx context.Context, cap dataprovider.Capability, params dataprovider.QueryParams) (json.RawMessage, error) {
	path, ok := endpointFor(cap)
	if !ok {
		return nil, fmt.Errorf("cnvendor(%s): capability %s not supported", v.source, cap)
	}

	req := v.client.R().
		SetContext(ctx).
		SetQueryParam("symbol", params.Ticker)
	for k, val := range params.Extra {
		req.SetQueryParam(k, val)
	}
	resp, err := req.Get(v.baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("cnvendor(%s) GET %s: %w", v.source, path, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("cnvendor(%s): HTTP %d", v.source, resp.StatusCode())
	}
	return json.RawMessage(resp.Body()), nil
}

func endpointFor(cap dataprovider.Capability) (string, bool) {
	switch cap {
	case dataprovider.CapQuote:
		return "/quote", true
	case dataprovider.CapHistorical:
		return "/history", true
	case dataprovider.CapFundamentals, dataprovider.CapBalanceSheet:
		return "/fundamentals", true
	case dataprovider.CapProfile:
		return "/info", true
	case dataprovider.CapNews:
		return "/news", true
	case dataprovider.CapCapitalFlowRealtime:
		return "/capital_flow/realtime", true
	case dataprovider.CapCapitalFlowDaily:
		return "/capital_flow/daily", true
	case dataprovider.CapConceptList:
		return "/concept/list", true
	case dataprovider.CapConceptStocks:
		return "/concept/stocks", true
	case dataprovider.CapConceptCapitalFlow:
		return "/concept/capital_flow", true
	case dataprovider.CapDividendHistory:
		return "/dividend", true
	default:
		return "", false
	}
}
