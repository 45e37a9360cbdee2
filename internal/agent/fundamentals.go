package agent

import (
	"context"
	"fmt"

	"github.com/seenimoa/tradingagents/internal/agent/prompts"
	"github.com/seenimoa/tradingagents/internal/dataprovider"
	"github.com/seenimoa/tradingagents/internal/llm"
	"github.com/seenimoa/tradingagents/internal/state"
	"github.com/seenimoa/tradingagents/internal/tool"
)

// RegisterFundamentalsTools binds the Fundamentals Analyst's data-fetch
// tools onto the provider registry's fundamentals, balance-sheet, and
// dividend-history capabilities.
func RegisterFundamentalsTools(reg *tool.Registry, dp *dataprovider.Registry) {
	reg.Register(tool.Descriptor{
		Name:        "get_fundamentals",
		Description: "Fetch income statement, margin, and valuation-ratio data for a ticker.",
		ArgSpec: []tool.ArgSpec{
			{Name: "ticker", Type: tool.TypeString, Required: true, IsTicker: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			ticker := args["ticker"].(string)
			res := dp.Fetch(ctx, dataprovider.CapFundamentals, ticker)
			if len(res.Payload) == 0 {
				return fmt.Sprintf("no fundamentals data available for %s", ticker), nil
			}
			return truncate(string(res.Payload)), nil
		},
	})

	reg.Register(tool.Descriptor{
		Name:        "get_stock_info",
		Description: "Fetch company profile metadata (name, industry, listing market, list date) for a ticker.",
		ArgSpec: []tool.ArgSpec{
			{Name: "ticker", Type: tool.TypeString, Required: true, IsTicker: true},
		},
		Concurrent: true,
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			ticker := args["ticker"].(string)
			res := dp.Fetch(ctx, dataprovider.CapProfile, ticker)
			if len(res.Payload) == 0 {
				return fmt.Sprintf("no company profile available for %s", ticker), nil
			}
			return truncate(string(res.Payload)), nil
		},
	})

	reg.Register(tool.Descriptor{
		Name:        "get_balance_sheet",
		Description: "Fetch balance sheet data (assets, liabilities, leverage) for a ticker.",
		ArgSpec: []tool.ArgSpec{
			{Name: "ticker", Type: tool.TypeString, Required: true, IsTicker: true},
		},
		Concurrent: true,
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			ticker := args["ticker"].(string)
			res := dp.Fetch(ctx, dataprovider.CapBalanceSheet, ticker)
			if len(res.Payload) == 0 {
				return fmt.Sprintf("no balance sheet data available for %s", ticker), nil
			}
			return truncate(string(res.Payload)), nil
		},
	})

	reg.Register(tool.Descriptor{
		Name:        "get_dividend_history",
		Description: "Fetch dividend payout history for a ticker.",
		ArgSpec: []tool.ArgSpec{
			{Name: "ticker", Type: tool.TypeString, Required: true, IsTicker: true},
		},
		Concurrent: true,
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			ticker := args["ticker"].(string)
			res := dp.Fetch(ctx, dataprovider.CapDividendHistory, ticker)
			if len(res.Payload) == 0 {
				return fmt.Sprintf("no dividend history available for %s", ticker), nil
			}
			return truncate(string(res.Payload)), nil
		},
	})
}

// FundamentalsNodeConfig returns the analyst-node configuration for the
// Fundamentals Analyst role.
func FundamentalsNodeConfig(reg *tool.Registry, provider llm.LLMProvider, maxIterations int) NodeConfig {
	toolNames := []string{"get_fundamentals", "get_stock_info", "get_balance_sheet", "get_dividend_history"}
	return NodeConfig{
		Role:          state.RoleFundamentals,
		Registry:      reg,
		ToolNames:     toolNames,
		Provider:      provider,
		MaxIterations: maxIterations,
		SystemPrompt: func(t state.Ticker, tradeDate string, tools []string) string {
			return prompts.FundamentalsSystemPrompt(t.Symbol, t.Market, t.Currency, tradeDate, tools)
		},
		PrimaryTool: "get_fundamentals",
		PrimaryArgs: func(t state.Ticker, tradeDate string) map[string]any {
			return map[string]any{"ticker": t.Symbol}
		},
	}
}
