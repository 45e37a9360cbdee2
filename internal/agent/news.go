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

// RegisterNewsTools binds the News Analyst's headline-fetch tool against
// the provider registry's news capability — served by cnvendor for CN-A
// tickers and hkvendor for HK tickers, with the market-agnostic
// globalvendor RSS sweep as the fallback everywhere (usvendor carries no
// news endpoint).
func RegisterNewsTools(reg *tool.Registry, dp *dataprovider.Registry) {
	reg.Register(tool.Descriptor{
		Name:        "get_news",
		Description: "Fetch recent headlines mentioning a ticker.",
		ArgSpec: []tool.ArgSpec{
			{Name: "ticker", Type: tool.TypeString, Required: true, IsTicker: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			ticker := args["ticker"].(string)
			res := dp.Fetch(ctx, dataprovider.CapNews, ticker)
			if len(res.Payload) == 0 {
				return fmt.Sprintf("no recent headlines found for %s", ticker), nil
			}
			return truncate(string(res.Payload)), nil
		},
	})
}

// NewsNodeConfig returns the analyst-node configuration for the News
// Analyst role.
func NewsNodeConfig(reg *tool.Registry, provider llm.LLMProvider, maxIterations int) NodeConfig {
	toolNames := []string{"get_news"}
	return NodeConfig{
		Role:          state.RoleNews,
		Registry:      reg,
		ToolNames:     toolNames,
		Provider:      provider,
		MaxIterations: maxIterations,
		SystemPrompt: func(t state.Ticker, tradeDate string, tools []string) string {
			return prompts.NewsSystemPrompt(t.Symbol, t.Market, t.Currency, tradeDate, tools)
		},
		PrimaryTool: "get_news",
		PrimaryArgs: func(t state.Ticker, tradeDate string) map[string]any {
			return map[string]any{"ticker": t.Symbol}
		},
	}
}
