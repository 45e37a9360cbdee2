package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/seenimoa/tradingagents/internal/agent/prompts"
	"github.com/seenimoa/tradingagents/internal/dataprovider"
	"github.com/seenimoa/tradingagents/internal/llm"
	"github.com/seenimoa/tradingagents/internal/state"
	"github.com/seenimoa/tradingagents/internal/tool"
)

// maxPayloadChars bounds how much of a raw vendor payload a tool handler
// returns to the model; the registry's providers return whole JSON
// documents, far more than one turn needs.
const maxPayloadChars = 8000

func truncate(payload string) string {
	if len(payload) <= maxPayloadChars {
		return payload
	}
	return payload[:maxPayloadChars] + "...(truncated)"
}

func argString(args map[string]any, name, fallback string) string {
	if v, ok := args[name].(string); ok && v != "" {
		return v
	}
	return fallback
}

// RegisterMarketTools binds the Market Analyst's data-fetch tools onto
// reg against the data provider registry, each returning the raw
// vendor payload as the tool result body — analyst prompts reason over
// the raw document rather than a normalized OHLCV struct.
func RegisterMarketTools(reg *tool.Registry, dp *dataprovider.Registry) {
	reg.Register(tool.Descriptor{
		Name:        "get_historical_prices",
		Description: "Fetch historical OHLCV candles for a ticker over the vendor's default window; from_date and to_date are accepted but not forwarded to the vendor.",
		ArgSpec: []tool.ArgSpec{
			{Name: "ticker", Type: tool.TypeString, Required: true, IsTicker: true},
			{Name: "from_date", Type: tool.TypeString},
			{Name: "to_date", Type: tool.TypeString},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			ticker := args["ticker"].(string)
			res := dp.Fetch(ctx, dataprovider.CapHistorical, ticker)
			if len(res.Payload) == 0 {
				return fmt.Sprintf("no historical data available for %s", ticker), nil
			}
			return truncate(string(res.Payload)), nil
		},
	})

	reg.Register(tool.Descriptor{
		Name:        "get_quote",
		Description: "Fetch the latest quote for a ticker.",
		ArgSpec: []tool.ArgSpec{
			{Name: "ticker", Type: tool.TypeString, Required: true, IsTicker: true},
		},
		Concurrent: true,
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			ticker := args["ticker"].(string)
			res := dp.Fetch(ctx, dataprovider.CapQuote, ticker)
			if len(res.Payload) == 0 {
				return fmt.Sprintf("no quote available for %s", ticker), nil
			}
			return truncate(string(res.Payload)), nil
		},
	})

	reg.Register(tool.Descriptor{
		Name:        "get_capital_flow",
		Description: "Fetch intraday and daily net capital-flow data for a ticker, where the ticker's market exposes it.",
		ArgSpec: []tool.ArgSpec{
			{Name: "ticker", Type: tool.TypeString, Required: true, IsTicker: true},
			{Name: "horizon", Type: tool.TypeString, Description: "\"realtime\" or \"daily\""},
		},
		Concurrent: true,
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			ticker := args["ticker"].(string)
			cap := dataprovider.CapCapitalFlowDaily
			if strings.EqualFold(argString(args, "horizon", "daily"), "realtime") {
				cap = dataprovider.CapCapitalFlowRealtime
			}
			res := dp.Fetch(ctx, cap, ticker)
			if len(res.Payload) == 0 {
				return fmt.Sprintf("no capital-flow data available for %s in this market", ticker), nil
			}
			return truncate(string(res.Payload)), nil
		},
	})

	// concept_list/concept_stocks/concept_capital_flow key on a
	// concept_code rather than a ticker — concept boards are a CN-A-only
	// construct, so these dispatch through FetchByKey against the CN-A
	// market directly instead of classifying a ticker argument.
	reg.Register(tool.Descriptor{
		Name:        "get_concept_list",
		Description: "List CN-A concept/theme boards tracked by the data vendor.",
		Concurrent:  true,
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			res := dp.FetchByKey(ctx, dataprovider.CapConceptList, "CN-A", "", nil)
			if len(res.Payload) == 0 {
				return "no concept list available", nil
			}
			return truncate(string(res.Payload)), nil
		},
	})

	reg.Register(tool.Descriptor{
		Name:        "get_concept_stocks",
		Description: "List the CN-A tickers belonging to a concept/theme board.",
		ArgSpec: []tool.ArgSpec{
			{Name: "concept_code", Type: tool.TypeString, Required: true},
		},
		Concurrent: true,
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			code := argString(args, "concept_code", "")
			if code == "" {
				return "concept_code is required", nil
			}
			res := dp.FetchByKey(ctx, dataprovider.CapConceptStocks, "CN-A", code, nil)
			if len(res.Payload) == 0 {
				return fmt.Sprintf("no constituent stocks available for concept %s", code), nil
			}
			return truncate(string(res.Payload)), nil
		},
	})

	reg.Register(tool.Descriptor{
		Name:        "get_concept_capital_flow",
		Description: "Fetch net capital-flow data for a CN-A concept/theme board over 1, 5, or 10 days.",
		ArgSpec: []tool.ArgSpec{
			{Name: "concept_code", Type: tool.TypeString, Required: true},
			{Name: "days_type", Type: tool.TypeInteger, Description: "1, 5, or 10"},
		},
		Concurrent: true,
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			code := argString(args, "concept_code", "")
			if code == "" {
				return "concept_code is required", nil
			}
			days := "1"
			if v, ok := args["days_type"].(float64); ok {
				days = fmt.Sprintf("%d", int(v))
			}
			res := dp.FetchByKey(ctx, dataprovider.CapConceptCapitalFlow, "CN-A", code, map[string]string{"days_type": days})
			if len(res.Payload) == 0 {
				return fmt.Sprintf("no capital-flow data available for concept %s", code), nil
			}
			return truncate(string(res.Payload)), nil
		},
	})
}

// MarketNodeConfig returns the analyst-node configuration for the Market
// Analyst role, bound against reg and invoked through provider.
func MarketNodeConfig(reg *tool.Registry, provider llm.LLMProvider, maxIterations int) NodeConfig {
	toolNames := []string{
		"get_historical_prices", "get_quote", "get_capital_flow",
		"get_concept_list", "get_concept_stocks", "get_concept_capital_flow",
	}
	return NodeConfig{
		Role:          state.RoleMarket,
		Registry:      reg,
		ToolNames:     toolNames,
		Provider:      provider,
		MaxIterations: maxIterations,
		SystemPrompt: func(t state.Ticker, tradeDate string, tools []string) string {
			return prompts.MarketSystemPrompt(t.Symbol, t.Market, t.Currency, tradeDate, tools)
		},
		PrimaryTool: "get_historical_prices",
		PrimaryArgs: func(t state.Ticker, tradeDate string) map[string]any {
			return map[string]any{"ticker": t.Symbol, "to_date": tradeDate}
		},
	}
}
